// Package mock provides test doubles for the session package interfaces.
//
// Recorder implements session.AudioRecorder and session.Pauser. On Start it
// writes Data to the requested path so finalization can stat a real file,
// then reports level samples pushed with Level. Source implements
// session.TranscriptSource; tests push events with Emit or Say and end the
// stream with Fail or End.
//
// Both channels are unbuffered: Emit and Level return once the session has
// received the value, so any command issued afterwards is handled after it.
//
// Example:
//
//	rec := &mock.Recorder{Data: []byte("RIFF")}
//	src := mock.NewSource()
//	s, _ := session.New(plan, rec, src)
//	_ = s.Start(ctx)
//	src.Say("so anyway")
package mock

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/cuecard/internal/recorder"
	"github.com/MrWong99/cuecard/internal/transcript"
)

// feed is an unbuffered channel that can be closed while senders wait.
type feed[T any] struct {
	mu      sync.Mutex
	ch      chan T
	done    chan struct{}
	closed  bool
	sending sync.WaitGroup
}

func newFeed[T any]() *feed[T] {
	return &feed[T]{ch: make(chan T), done: make(chan struct{})}
}

func (f *feed[T]) send(v T) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.sending.Add(1)
	f.mu.Unlock()
	defer f.sending.Done()

	select {
	case f.ch <- v:
	case <-f.done:
	}
}

func (f *feed[T]) close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.done)
	f.mu.Unlock()

	f.sending.Wait()
	close(f.ch)
}

// Recorder is a mock implementation of session.AudioRecorder.
type Recorder struct {
	mu sync.Mutex

	// Data is written to the recording path on Start.
	Data []byte

	// StartErr, if non-nil, is returned by Start and no file is written.
	StartErr error

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// StartDelay delays Start, to exercise asynchronous start.
	StartDelay time.Duration

	// Paths records the path of every Start call.
	Paths []string

	StopCallCount   int
	PauseCallCount  int
	ResumeCallCount int

	levels  *feed[recorder.LevelSample]
	paused  bool
	stopped bool
}

// Start records the call, writes Data to path and returns the level channel.
func (r *Recorder) Start(ctx context.Context, path string) (<-chan recorder.LevelSample, error) {
	if r.StartDelay > 0 {
		select {
		case <-time.After(r.StartDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Paths = append(r.Paths, path)
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	if err := os.WriteFile(path, r.Data, 0o644); err != nil {
		return nil, err
	}
	r.levels = newFeed[recorder.LevelSample]()
	return r.levels.ch, nil
}

// Level delivers a level sample. It is a no-op before Start or after Stop.
func (r *Recorder) Level(s recorder.LevelSample) {
	r.mu.Lock()
	levels := r.levels
	r.mu.Unlock()
	if levels != nil {
		levels.send(s)
	}
}

// Stop records the call, closes the level channel and reports the file.
func (r *Recorder) Stop() (recorder.Info, error) {
	r.mu.Lock()
	r.StopCallCount++
	r.stopped = true
	levels := r.levels
	path := ""
	if n := len(r.Paths); n > 0 {
		path = r.Paths[n-1]
	}
	r.mu.Unlock()

	if levels != nil {
		levels.close()
	}
	if r.StopErr != nil {
		return recorder.Info{}, r.StopErr
	}
	return recorder.Info{Path: path, Bytes: int64(len(r.Data))}, nil
}

// Pause records the call.
func (r *Recorder) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PauseCallCount++
	r.paused = true
}

// Resume records the call.
func (r *Recorder) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResumeCallCount++
	r.paused = false
}

// Paused reports whether the recorder is paused.
func (r *Recorder) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Stops returns the number of Stop calls.
func (r *Recorder) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.StopCallCount
}

// Source is a mock implementation of session.TranscriptSource.
type Source struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	StartCallCount int
	StopCallCount  int

	events *feed[transcript.Event]
}

// NewSource returns a ready Source.
func NewSource() *Source {
	return &Source{events: newFeed[transcript.Event]()}
}

// Start records the call and returns the event channel.
func (s *Source) Start(context.Context) (<-chan transcript.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCallCount++
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	return s.events.ch, nil
}

// Emit delivers ev and returns once it was received. It is a no-op after the
// stream ended.
func (s *Source) Emit(ev transcript.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.events.send(ev)
}

// Say emits a final event with text.
func (s *Source) Say(text string) {
	s.Emit(transcript.Event{Text: text, Final: true})
}

// Fail ends the stream with an error event.
func (s *Source) Fail(err error) {
	s.events.send(transcript.Event{Err: err, At: time.Now()})
	s.events.close()
}

// End closes the stream without an error.
func (s *Source) End() {
	s.events.close()
}

// Stop records the call and closes the stream.
func (s *Source) Stop() error {
	s.mu.Lock()
	s.StopCallCount++
	s.mu.Unlock()
	s.events.close()
	return nil
}

// Calls returns the Start and Stop call counts.
func (s *Source) Calls() (start, stop int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StartCallCount, s.StopCallCount
}
