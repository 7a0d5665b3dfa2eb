// Package energy implements a pure-Go [vad.Engine] that classifies frames by
// RMS energy with hysteresis.
//
// Scores are normalised RMS values in [0,1] as returned by [audio.RMS]. A
// session enters speech after StartFrames consecutive frames at or above the
// speech threshold and leaves it after the hangover of frames below the
// silence threshold, which keeps short gaps between words inside one segment.
package energy

import (
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/cuecard/pkg/audio"
	"github.com/MrWong99/cuecard/pkg/provider/vad"
)

// Default thresholds for a close-talking microphone.
const (
	DefaultSpeechThreshold  = 0.015
	DefaultSilenceThreshold = 0.008
	DefaultStart            = 60 * time.Millisecond
	DefaultHangover         = 600 * time.Millisecond
)

// ErrClosed is returned by ProcessFrame after Close.
var ErrClosed = errors.New("energy vad: session closed")

// Option configures an [Engine].
type Option func(*Engine)

// WithStart sets how long energy must stay above the speech threshold before
// a segment starts.
func WithStart(d time.Duration) Option {
	return func(e *Engine) { e.start = d }
}

// WithHangover sets how long energy must stay below the silence threshold
// before a segment ends.
func WithHangover(d time.Duration) Option {
	return func(e *Engine) { e.hangover = d }
}

// WithThresholds overrides the speech and silence thresholds of every
// session. Zero keeps the value of the session config.
func WithThresholds(speech, silence float64) Option {
	return func(e *Engine) {
		e.speech = speech
		e.silence = silence
	}
}

// Engine creates energy-based VAD sessions. It is stateless and safe for
// concurrent use.
type Engine struct {
	start    time.Duration
	hangover time.Duration
	speech   float64
	silence  float64
}

var _ vad.Engine = (*Engine)(nil)

// New returns an Engine with the given options applied over the defaults.
func New(opts ...Option) *Engine {
	e := &Engine{start: DefaultStart, hangover: DefaultHangover}
	for _, o := range opts {
		o(e)
	}
	return e
}

// DefaultConfig returns a session config for mono PCM at sampleRate with
// frames of frame duration.
func DefaultConfig(sampleRate int, frame time.Duration) vad.Config {
	return vad.Config{
		SampleRate:       sampleRate,
		FrameSizeMs:      max(int(frame/time.Millisecond), 1),
		SpeechThreshold:  DefaultSpeechThreshold,
		SilenceThreshold: DefaultSilenceThreshold,
	}
}

// NewSession validates cfg and returns a new session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if e.speech > 0 {
		cfg.SpeechThreshold = e.speech
	}
	if e.silence > 0 {
		cfg.SilenceThreshold = e.silence
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	frame := time.Duration(cfg.FrameSizeMs) * time.Millisecond
	return &Session{
		speech:      cfg.SpeechThreshold,
		silence:     cfg.SilenceThreshold,
		startFrames: frames(e.start, frame),
		endFrames:   frames(e.hangover, frame),
	}, nil
}

func frames(d, frame time.Duration) int {
	n := int((d + frame - 1) / frame)
	return max(n, 1)
}

// Session tracks speech state for one stream. It is safe for concurrent use.
type Session struct {
	mu          sync.Mutex
	speech      float64
	silence     float64
	startFrames int
	endFrames   int

	inSpeech     bool
	speechCount  int
	silenceCount int
	closed       bool
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame scores frame and advances the hysteresis state.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, ErrClosed
	}
	level := audio.RMS(frame)
	ev := vad.VADEvent{Probability: level}

	if s.inSpeech {
		if level < s.silence {
			s.silenceCount++
			if s.silenceCount >= s.endFrames {
				s.inSpeech = false
				s.silenceCount = 0
				ev.Type = vad.VADSpeechEnd
				return ev, nil
			}
		} else {
			s.silenceCount = 0
		}
		ev.Type = vad.VADSpeechContinue
		return ev, nil
	}

	if level >= s.speech {
		s.speechCount++
		if s.speechCount >= s.startFrames {
			s.inSpeech = true
			s.speechCount = 0
			ev.Type = vad.VADSpeechStart
			return ev, nil
		}
	} else {
		s.speechCount = 0
	}
	ev.Type = vad.VADSilence
	return ev, nil
}

// Reset returns the session to silence.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.speechCount = 0
	s.silenceCount = 0
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
