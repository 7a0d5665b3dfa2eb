// Package recorder captures a performance to a WAV file while reporting
// speech activity.
//
// [WAVRecorder] reads frames from an [audio.Source], writes them to disk in
// the source format and emits one [LevelSample] per level interval. Each
// sample carries the peak RMS of the interval and whether the VAD engine
// considered any of it speech. Other consumers, such as the recognizer, get
// the same frames through [WAVRecorder.Tap].
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/cuecard/pkg/audio"
	"github.com/MrWong99/cuecard/pkg/provider/vad"
	"github.com/MrWong99/cuecard/pkg/provider/vad/energy"
)

// DefaultLevelInterval is how often level samples are emitted.
const DefaultLevelInterval = 100 * time.Millisecond

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("recorder: already started")

	// ErrNotStarted is returned by Stop on a recorder that never started.
	ErrNotStarted = errors.New("recorder: not started")
)

// LevelSample summarises the input level over one interval.
type LevelSample struct {
	// At is the recorded offset at the end of the interval. Paused time is
	// not counted.
	At     time.Duration
	RMS    float64
	Speech bool
}

// Info describes a finished recording.
type Info struct {
	Path     string
	Duration time.Duration
	Bytes    int64
}

// Option configures a [WAVRecorder].
type Option func(*WAVRecorder)

// WithVAD sets the speech detector. Default: the energy engine.
func WithVAD(e vad.Engine) Option {
	return func(r *WAVRecorder) { r.vad = e }
}

// WithLevelInterval sets how often level samples are emitted.
func WithLevelInterval(d time.Duration) Option {
	return func(r *WAVRecorder) {
		if d > 0 {
			r.levelEvery = d
		}
	}
}

type tap struct {
	name   string
	buffer int
	ch     chan audio.Frame
}

// WAVRecorder records one take. It is single use: after Stop it cannot be
// started again.
type WAVRecorder struct {
	source     audio.Source
	vad        vad.Engine
	levelEvery time.Duration

	mu      sync.Mutex
	taps    []*tap
	started bool
	file    *os.File
	writer  *audio.WAVWriter
	path    string
	done    chan struct{}
	writeEr error

	paused   atomic.Bool
	resumed  atomic.Bool
	dropped  atomic.Int64
	stopOnce sync.Once
	info     Info
	stopErr  error
}

// New returns a recorder reading from source.
func New(source audio.Source, opts ...Option) *WAVRecorder {
	r := &WAVRecorder{
		source:     source,
		vad:        energy.New(),
		levelEvery: DefaultLevelInterval,
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Tap returns a channel that receives every captured frame once recording
// starts. Taps must be requested before Start; a slow tap drops frames rather
// than stalling the recording. The channel closes when capture ends or when
// Start fails.
func (r *WAVRecorder) Tap(name string, buffer int) <-chan audio.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &tap{name: name, buffer: buffer, ch: make(chan audio.Frame, buffer)}
	if r.started {
		close(t.ch)
		return t.ch
	}
	r.taps = append(r.taps, t)
	return t.ch
}

// Start creates the file at path and begins recording. Missing parent
// directories are created. Permission problems wrap
// [audio.ErrPermissionDenied]; source failures are returned as the source
// reported them.
func (r *WAVRecorder) Start(ctx context.Context, path string) (<-chan LevelSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil, ErrAlreadyStarted
	}
	r.started = true

	fail := func(err error) (<-chan LevelSample, error) {
		for _, t := range r.taps {
			close(t.ch)
		}
		close(r.done)
		return nil, err
	}

	format := r.source.Format()
	file, err := createFile(path)
	if err != nil {
		return fail(err)
	}
	writer, err := audio.NewWAVWriter(file, format)
	if err != nil {
		file.Close()
		os.Remove(path)
		return fail(fmt.Errorf("recorder: %w", err))
	}
	frames, err := r.source.Open(ctx)
	if err != nil {
		file.Close()
		os.Remove(path)
		return fail(fmt.Errorf("recorder: open input: %w", err))
	}
	r.file, r.writer, r.path = file, writer, path

	var b audio.Broadcaster
	wav := b.Subscribe("wav", 256)
	for _, t := range r.taps {
		// Tap channels were handed out already, so forward from a fresh
		// subscription into them.
		go forwardTap(b.Subscribe(t.name, t.buffer), t.ch)
	}
	go b.Run(frames)

	levels := make(chan LevelSample, 64)
	go r.writeLoop(wav, writer, format, levels)

	slog.Info("recording started", "path", path, "format", format.String())
	return levels, nil
}

func forwardTap(in <-chan audio.Frame, out chan<- audio.Frame) {
	defer close(out)
	for f := range in {
		select {
		case out <- f:
		default:
		}
	}
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, mapFileErr(path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, mapFileErr(path, err)
	}
	return f, nil
}

func mapFileErr(path string, err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %s", audio.ErrPermissionDenied, path)
	}
	return fmt.Errorf("recorder: create %q: %w", path, err)
}

// writeLoop owns the writer and the VAD session until the frame stream ends.
func (r *WAVRecorder) writeLoop(frames <-chan audio.Frame, w *audio.WAVWriter, format audio.Format, levels chan<- LevelSample) {
	defer close(r.done)
	defer close(levels)

	sess, err := r.vad.NewSession(energy.DefaultConfig(format.SampleRate, audio.DefaultFrameDuration))
	if err != nil {
		slog.Warn("recorder: vad unavailable, speech marks use energy only", "err", err)
		sess = nil
	} else {
		defer sess.Close()
	}

	var (
		recorded time.Duration
		window   time.Duration
		peak     float64
		speech   bool
	)
	for frame := range frames {
		if r.paused.Load() {
			continue
		}
		if r.resumed.CompareAndSwap(true, false) && sess != nil {
			sess.Reset()
		}
		if _, err := w.Write(frame.Data); err != nil {
			r.mu.Lock()
			if r.writeEr == nil {
				r.writeEr = err
				slog.Error("recorder: write failed", "path", r.path, "err", err)
			}
			r.mu.Unlock()
			continue
		}

		mono := audio.ToMono(frame.Data, frame.Channels)
		level := audio.RMS(mono)
		peak = max(peak, level)
		if sess != nil {
			if ev, err := sess.ProcessFrame(mono); err == nil && ev.Speaking() {
				speech = true
			}
		} else if level >= energy.DefaultSpeechThreshold {
			speech = true
		}

		d := frame.Duration()
		recorded += d
		window += d
		if window < r.levelEvery {
			continue
		}
		select {
		case levels <- LevelSample{At: recorded, RMS: peak, Speech: speech}:
		default:
			r.dropped.Add(1)
		}
		window, peak, speech = 0, 0, false
	}
}

// Pause stops writing frames until Resume. Frames captured while paused are
// discarded.
func (r *WAVRecorder) Pause() { r.paused.Store(true) }

// Resume continues writing after Pause.
func (r *WAVRecorder) Resume() {
	if r.paused.Swap(false) {
		r.resumed.Store(true)
	}
}

// Stop ends capture, finalizes the WAV header and reports the result. It is
// idempotent: later calls return the first call's outcome.
func (r *WAVRecorder) Stop() (Info, error) {
	r.stopOnce.Do(func() {
		r.info, r.stopErr = r.stop()
	})
	return r.info, r.stopErr
}

func (r *WAVRecorder) stop() (Info, error) {
	r.mu.Lock()
	started, file, writer, path := r.started, r.file, r.writer, r.path
	r.mu.Unlock()
	if !started || file == nil {
		return Info{}, ErrNotStarted
	}

	closeErr := r.source.Close()
	<-r.done

	var errs []error
	if closeErr != nil {
		errs = append(errs, fmt.Errorf("recorder: close input: %w", closeErr))
	}
	r.mu.Lock()
	if r.writeEr != nil {
		errs = append(errs, fmt.Errorf("recorder: write: %w", r.writeEr))
	}
	r.mu.Unlock()
	if err := writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: sync: %w", err))
	}
	if err := file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: close: %w", err))
	}

	info := Info{Path: path, Duration: r.source.Format().Duration(writer.DataBytes())}
	st, err := os.Stat(path)
	if err != nil {
		errs = append(errs, fmt.Errorf("recorder: stat: %w", err))
	} else {
		info.Bytes = st.Size()
	}
	if n := r.dropped.Load(); n > 0 {
		slog.Warn("recorder: level samples dropped", "count", n)
	}
	slog.Info("recording stopped", "path", path, "duration", info.Duration, "bytes", info.Bytes)
	return info, errors.Join(errs...)
}
