package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	// ErrPermissionDenied is returned when the capture device refuses access.
	ErrPermissionDenied = errors.New("audio: capture permission denied")

	// ErrNoInput is returned when no capture device or input file exists.
	ErrNoInput = errors.New("audio: no input available")

	// ErrAlreadyOpen is returned when a source is opened twice.
	ErrAlreadyOpen = errors.New("audio: source already open")
)

// DefaultFrameDuration is the capture frame length used by sources.
const DefaultFrameDuration = 20 * time.Millisecond

// closeWait bounds how long Close waits for a blocked read to return.
const closeWait = time.Second

// Source is a capture device or stream of PCM audio.
//
// Open starts capture and returns the frame channel, which is closed when
// capture ends. Close stops capture; it is safe to call more than once.
type Source interface {
	Open(ctx context.Context) (<-chan Frame, error)
	Format() Format
	Close() error
}

// SourceOption is a functional option for configuring a [ReaderSource].
type SourceOption func(*ReaderSource)

// WithFrameDuration sets the frame length. Default: 20ms.
func WithFrameDuration(d time.Duration) SourceOption {
	return func(s *ReaderSource) {
		if d > 0 {
			s.frame = d
		}
	}
}

// WithRealtime paces frame delivery to wall-clock time, which makes a file
// behave like a live microphone.
func WithRealtime(on bool) SourceOption {
	return func(s *ReaderSource) {
		s.realtime = on
	}
}

// ReaderSource captures raw PCM from an [io.Reader], such as the stdout of
// arecord, a named pipe or a file.
type ReaderSource struct {
	r        io.Reader
	closer   io.Closer
	format   Format
	frame    time.Duration
	realtime bool

	mu      sync.Mutex
	opened  bool
	cancel  context.CancelFunc
	done    chan struct{}
	closeMu sync.Once
	closeEr error
}

// Compile-time interface assertion.
var _ Source = (*ReaderSource)(nil)

// NewReaderSource returns a source reading PCM in format f from r. When r
// implements [io.Closer] it is closed by [ReaderSource.Close].
func NewReaderSource(r io.Reader, f Format, opts ...SourceOption) *ReaderSource {
	s := &ReaderSource{
		r:      bufio.NewReader(r),
		format: f,
		frame:  DefaultFrameDuration,
		done:   make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OpenFile returns a source for the file at path. WAV files supply their own
// format; anything else is read as raw PCM in format raw.
func OpenFile(path string, raw Format, opts ...SourceOption) (*ReaderSource, error) {
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrNoInput, path)
	case err != nil:
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}

	format, err := ReadWAVHeader(f)
	if err != nil {
		if _, serr := f.Seek(0, io.SeekStart); serr != nil {
			f.Close()
			return nil, fmt.Errorf("audio: rewind %q: %w", path, serr)
		}
		format = raw
	}
	if !format.Valid() {
		f.Close()
		return nil, fmt.Errorf("audio: %q: invalid format %s", path, format)
	}
	return NewReaderSource(f, format, opts...), nil
}

// Format returns the PCM format of the source.
func (s *ReaderSource) Format() Format { return s.format }

// Open starts reading frames. The channel is closed at end of input, on
// Close or when ctx is cancelled.
func (s *ReaderSource) Open(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil, ErrAlreadyOpen
	}
	if !s.format.Valid() {
		return nil, fmt.Errorf("%w: invalid format %s", ErrNoInput, s.format)
	}
	s.opened = true

	ctx, s.cancel = context.WithCancel(ctx)
	out := make(chan Frame, 16)
	go s.readLoop(ctx, out)
	return out, nil
}

func (s *ReaderSource) readLoop(ctx context.Context, out chan<- Frame) {
	defer close(s.done)
	defer close(out)

	size := s.format.FrameBytes(s.frame)
	var (
		offset time.Duration
		ticker *time.Ticker
	)
	if s.realtime {
		ticker = time.NewTicker(s.frame)
		defer ticker.Stop()
	}

	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(s.r, buf)
		n -= n % (BytesPerSample * s.format.Channels)
		if n > 0 {
			frame := Frame{Data: buf[:n], Format: s.format, Timestamp: offset}
			offset += frame.Duration()
			if ticker != nil {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Close stops capture and closes the underlying reader if it is closable.
func (s *ReaderSource) Close() error {
	s.closeMu.Do(func() {
		s.mu.Lock()
		opened, cancel := s.opened, s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if s.closer != nil {
			s.closeEr = s.closer.Close()
		}
		if opened {
			select {
			case <-s.done:
			case <-time.After(closeWait):
			}
		}
	})
	return s.closeEr
}
