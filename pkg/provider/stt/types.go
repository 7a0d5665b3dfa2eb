package stt

import "time"

// Transcript is one recognition result. Partial and final results share this
// type.
type Transcript struct {
	// Text is the transcribed speech.
	Text string

	// IsFinal reports whether the recognizer committed to Text.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// Words carries per-word timing when the provider supports it.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to stream start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a keyword to bias recognition towards.
type KeywordBoost struct {
	// Keyword is the text to boost.
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
