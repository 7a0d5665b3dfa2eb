// Package config provides the configuration schema, loader, hot-reload watcher
// and provider registry for cuecard.
package config

import (
	"time"

	"github.com/MrWong99/cuecard/internal/navigator"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Matching    MatchingConfig    `yaml:"matching"`
	Navigation  NavigationConfig  `yaml:"navigation"`
	Recording   RecordingConfig   `yaml:"recording"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Insights    InsightsConfig    `yaml:"insights"`
	Storage     StorageConfig     `yaml:"storage"`
}

// ServerConfig holds logging and the metrics endpoint.
type ServerConfig struct {
	LogLevel LogLevel `yaml:"log_level"`

	// ListenAddr is the address of the metrics and health endpoint
	// (e.g., ":9464"). Empty disables it.
	ListenAddr string `yaml:"listen_addr"`
}

// MatchingConfig tunes trigger phrase recognition. These values are picked up
// by the next session when the file changes.
type MatchingConfig struct {
	// AnchorSensitivity and ExitSensitivity are confidence thresholds in
	// [0, 1]. Lower is more eager.
	AnchorSensitivity float64 `yaml:"anchor_sensitivity"`
	ExitSensitivity   float64 `yaml:"exit_sensitivity"`

	// Cooldown is the minimum time between two fires of the same phrase.
	Cooldown time.Duration `yaml:"cooldown"`

	// WindowWords is the number of recent words kept for matching.
	WindowWords int `yaml:"window_words"`

	// PhraseWords is the length of generated phrases and MinPhraseWords the
	// shortest phrase that is matched at all.
	PhraseWords    int `yaml:"phrase_words"`
	MinPhraseWords int `yaml:"min_phrase_words"`
}

// NavigationConfig selects how the cursor moves through a script.
type NavigationConfig struct {
	Mode navigator.Mode `yaml:"mode"`

	// BackwardJumps lets a spoken anchor jump back to an earlier block in
	// teleprompter mode.
	BackwardJumps bool `yaml:"backward_jumps"`

	// SegmentMinWords and SegmentMaxWords bound teleprompter chunks.
	SegmentMinWords int `yaml:"segment_min_words"`
	SegmentMaxWords int `yaml:"segment_max_words"`
}

// RecordingConfig describes where audio comes from and where it is written.
type RecordingConfig struct {
	// Directory receives the recordings and their sidecars.
	Directory string `yaml:"directory"`

	// Input is a raw 16-bit PCM file or named pipe, or "-" for stdin.
	Input string `yaml:"input"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// Realtime paces file input at playback speed.
	Realtime bool `yaml:"realtime"`
}

// RecognitionConfig selects the speech-to-text and voice activity providers.
type RecognitionConfig struct {
	STT ProviderEntry `yaml:"stt"`
	VAD ProviderEntry `yaml:"vad"`

	// Fallbacks are tried in order when the primary STT provider fails to
	// start a stream or its circuit is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Language is the BCP-47 recognition language (e.g., "en-US").
	Language string `yaml:"language"`

	// KeywordBoost biases recognition toward trigger phrases. Zero uses the
	// provider default; negative disables keywords.
	KeywordBoost float64 `yaml:"keyword_boost"`

	// FailureThreshold and ResetTimeout configure the circuit breaker of
	// each STT provider.
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// ProviderEntry is the configuration block shared by all provider types.
// Name is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider (e.g., "deepgram", "energy").
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// InsightsConfig holds the thresholds for post-session insights.
type InsightsConfig struct {
	LongPause   time.Duration `yaml:"long_pause"`
	RushedWPM   float64       `yaml:"rushed_wpm"`
	SlowWPM     float64       `yaml:"slow_wpm"`
	DwellFactor float64       `yaml:"dwell_factor"`
	MinDwell    time.Duration `yaml:"min_dwell"`
}

// Storage drivers.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageNone     = "none"
)

// StorageConfig selects where finalized results are kept.
type StorageConfig struct {
	// Driver is one of "sqlite", "postgres" or "none".
	Driver string `yaml:"driver"`

	// DSN is the sqlite file path or the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// Sidecar writes each result as JSON next to its recording.
	Sidecar *bool `yaml:"sidecar"`
}

// SidecarEnabled reports whether sidecars are written. The default is true.
func (s StorageConfig) SidecarEnabled() bool {
	return s.Sidecar == nil || *s.Sidecar
}
