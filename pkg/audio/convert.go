package audio

import (
	"encoding/binary"
	"log/slog"
	"sync"
)

// Converter converts frames to a target format. Recognizers usually want
// 16 kHz mono while capture devices deliver 44.1 or 48 kHz, often stereo.
// Create one per stream; it is not designed for shared use across goroutines.
type Converter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns frame in the target format. Frames that already match are
// returned unchanged. Channels are downmixed before resampling so only one
// channel is interpolated. Misaligned PCM yields a frame without data.
func (c *Converter) Convert(frame Frame) Frame {
	if len(frame.Data)%(BytesPerSample*max(frame.Channels, 1)) != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: misaligned pcm data, dropping frame",
				"bytes", len(frame.Data),
				"format", frame.Format.String(),
			)
		})
		return Frame{Format: c.Target, Timestamp: frame.Timestamp}
	}
	if frame.Format == c.Target {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Info("audio converter: converting capture format",
			"from", frame.Format.String(),
			"to", c.Target.String(),
		)
	})

	pcm := frame.Data
	channels := frame.Channels
	if channels > 1 && c.Target.Channels == 1 {
		pcm = ToMono(pcm, channels)
		channels = 1
	}
	if channels == 1 && frame.SampleRate != c.Target.SampleRate {
		pcm = ResampleMono16(pcm, frame.SampleRate, c.Target.SampleRate)
	}
	return Frame{
		Data:      pcm,
		Format:    Format{SampleRate: c.Target.SampleRate, Channels: channels},
		Timestamp: frame.Timestamp,
	}
}

// ConvertStream wraps in with a conversion goroutine. The returned channel is
// closed when in closes. Frames that convert to no data are dropped.
func ConvertStream(in <-chan Frame, target Format) <-chan Frame {
	out := make(chan Frame, cap(in))
	go func() {
		defer close(out)
		conv := Converter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// ToMono averages interleaved 16-bit samples of the given channel count into
// a single channel.
func ToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	stride := channels * BytesPerSample
	frames := len(pcm) / stride
	out := make([]byte, frames*BytesPerSample)
	for i := range frames {
		var sum int32
		for c := range channels {
			off := i*stride + c*BytesPerSample
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		avg := sum / int32(channels)
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(int16(avg)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. Equal or invalid rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < BytesPerSample {
		return pcm
	}
	srcSamples := len(pcm) / BytesPerSample
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:])))
	}
	out := make([]byte, dstSamples*BytesPerSample)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := sample(idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample(idx + 1)
		}
		v := int16(s0*(1-frac) + s1*frac)
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(v))
	}
	return out
}
