// Package audio carries microphone audio from a capture source to the
// recorder and the speech recognizer.
//
// Audio is always 16-bit signed little-endian PCM. A [Source] produces
// [Frame] values on a channel; a [Broadcaster] fans that channel out so the
// on-disk recording and the transcription stream see the same frames; the WAV
// helpers write the recording and [RMS] measures frame energy for speech
// activity.
package audio

import (
	"fmt"
	"time"
)

// BytesPerSample is the size of one 16-bit PCM sample.
const BytesPerSample = 2

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Valid reports whether the format can describe PCM audio.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// BytesPerSecond returns the PCM data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BytesPerSample
}

// Duration returns how long n bytes of PCM in this format play for.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// FrameBytes returns the byte size of a frame of duration d.
func (f Format) FrameBytes(d time.Duration) int {
	samples := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return samples * f.Channels * BytesPerSample
}

// Frame is a chunk of captured PCM audio.
type Frame struct {
	Data []byte
	Format

	// Timestamp is the offset of the first sample from the start of capture.
	Timestamp time.Duration
}

// Duration returns the playing time of the frame.
func (f Frame) Duration() time.Duration {
	return f.Format.Duration(len(f.Data))
}
