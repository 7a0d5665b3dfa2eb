// Package stt defines the Provider interface for streaming speech-to-text
// backends.
//
// A provider wraps a real-time transcription service (Deepgram, or a local
// whisper.cpp server) and exposes a uniform streaming interface. Once opened,
// a session accepts raw PCM audio and emits an ordered stream of Transcript
// values: low-latency partials that later results supersede, and finals the
// recognizer has committed to. Partials and finals share one channel so a
// consumer always sees them in the order the service produced them.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized is returned by StartStream when the service rejects the
	// credentials or the caller lacks permission to use it.
	ErrUnauthorized = errors.New("stt: unauthorized")

	// ErrClosed is returned by SendAudio after Close.
	ErrClosed = errors.New("stt: session closed")
)

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Zero selects the provider
	// default.
	SampleRate int

	// Channels is the number of audio channels. Zero means mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string selects the provider default.
	Language string

	// Keywords are vocabulary hints that raise the recognition probability of
	// unusual words, such as the trigger phrases of a setlist.
	Keywords []KeywordBoost
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit little-endian PCM in the format
	// agreed in StreamConfig. Calling SendAudio after Close returns ErrClosed.
	SendAudio(chunk []byte) error

	// Results returns the ordered stream of partial and final transcripts.
	// The channel is closed when the session ends.
	Results() <-chan Transcript

	// Err returns the error that ended the stream, or nil if it ended because
	// of Close or is still running.
	Err() error

	// Close flushes pending audio and releases all resources. After Close
	// returns the Results channel is closed. Calling Close more than once is
	// safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately. Credential failures
	// wrap ErrUnauthorized.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
