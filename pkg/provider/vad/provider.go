// Package vad defines the Engine interface for voice activity detection.
//
// A VAD engine surfaces a frame-level speech detector as a stateful,
// per-stream session. Each session keeps its own smoothing state so that
// independent streams (a live capture and a replayed take, say) never
// influence each other.
//
// VAD is synchronous: ProcessFrame returns immediately with a detection
// result. The recorder calls it once per captured frame to mark level samples
// as speech or silence, and the rehearsal insights are derived from those
// marks.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import "fmt"

// Config holds the parameters for a VAD session. Thresholds are expressed in
// the engine's native scale; see each Engine's documentation.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Engines
	// that need fixed frames reject others; energy-based engines use it only to
	// convert hangover durations into frame counts.
	FrameSizeMs int

	// SpeechThreshold is the score above which a frame is classified as speech.
	SpeechThreshold float64

	// SilenceThreshold is the score below which an active speech segment is
	// considered ended. Must be ≤ SpeechThreshold.
	SilenceThreshold float64
}

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate)
	case c.FrameSizeMs <= 0:
		return fmt.Errorf("vad: frame size must be positive, got %dms", c.FrameSizeMs)
	case c.SpeechThreshold <= 0 || c.SpeechThreshold > 1:
		return fmt.Errorf("vad: speech threshold %v out of range (0,1]", c.SpeechThreshold)
	case c.SilenceThreshold < 0 || c.SilenceThreshold > c.SpeechThreshold:
		return fmt.Errorf("vad: silence threshold %v must be in [0, %v]", c.SilenceThreshold, c.SpeechThreshold)
	}
	return nil
}

// SessionHandle represents an active VAD session for a single audio stream.
// Reset clears the detection state without closing the session.
type SessionHandle interface {
	// ProcessFrame analyses a single frame of 16-bit little-endian mono PCM at
	// the configured sample rate and returns the detection result. It must not
	// block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears all accumulated detection state. Use this when the stream
	// is paused or restarted.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// ProcessFrame returns an error. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
