package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// wavHeaderSize is the size of a canonical 44-byte PCM WAV header.
const wavHeaderSize = 44

// ErrNotWAV is returned by [ReadWAVHeader] for input without a RIFF/WAVE
// header.
var ErrNotWAV = errors.New("audio: not a wav stream")

// putWAVHeader writes a canonical PCM header for dataSize bytes into buf.
func putWAVHeader(buf []byte, f Format, dataSize int) {
	blockAlign := f.Channels * BytesPerSample
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 8*BytesPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
}

// EncodeWAV wraps pcm in a WAV container.
func EncodeWAV(pcm []byte, f Format) []byte {
	buf := make([]byte, wavHeaderSize+len(pcm))
	putWAVHeader(buf, f, len(pcm))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}

// ReadWAVHeader consumes a canonical 44-byte header from r and returns the
// stream format.
func ReadWAVHeader(r io.Reader) (Format, error) {
	var hdr [wavHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Format{}, fmt.Errorf("audio: read wav header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return Format{}, ErrNotWAV
	}
	if format := binary.LittleEndian.Uint16(hdr[20:22]); format != 1 {
		return Format{}, fmt.Errorf("audio: wav format %d is not pcm", format)
	}
	if bits := binary.LittleEndian.Uint16(hdr[34:36]); bits != 8*BytesPerSample {
		return Format{}, fmt.Errorf("audio: wav has %d bits per sample, want 16", bits)
	}
	return Format{
		SampleRate: int(binary.LittleEndian.Uint32(hdr[24:28])),
		Channels:   int(binary.LittleEndian.Uint16(hdr[22:24])),
	}, nil
}

// WAVWriter streams PCM into a WAV file. A placeholder header is written up
// front and patched with the final sizes on Close.
//
// WAVWriter is safe for concurrent use.
type WAVWriter struct {
	mu     sync.Mutex
	w      io.WriteSeeker
	format Format
	data   int
	closed bool
}

// NewWAVWriter writes a placeholder header to w and returns a writer for PCM
// data in format f.
func NewWAVWriter(w io.WriteSeeker, f Format) (*WAVWriter, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("audio: invalid wav format %s", f)
	}
	var hdr [wavHeaderSize]byte
	putWAVHeader(hdr[:], f, 0)
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("audio: write wav header: %w", err)
	}
	return &WAVWriter{w: w, format: f}, nil
}

// Write appends PCM bytes.
func (ww *WAVWriter) Write(pcm []byte) (int, error) {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return 0, errors.New("audio: write to closed wav writer")
	}
	n, err := ww.w.Write(pcm)
	ww.data += n
	return n, err
}

// DataBytes returns the number of PCM bytes written so far.
func (ww *WAVWriter) DataBytes() int {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	return ww.data
}

// Close patches the header with the final sizes. It does not close the
// underlying writer. Calling Close more than once is a no-op.
func (ww *WAVWriter) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true

	var hdr [wavHeaderSize]byte
	putWAVHeader(hdr[:], ww.format, ww.data)
	if _, err := ww.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("audio: seek wav header: %w", err)
	}
	if _, err := ww.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("audio: patch wav header: %w", err)
	}
	if _, err := ww.w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("audio: seek wav end: %w", err)
	}
	return nil
}
