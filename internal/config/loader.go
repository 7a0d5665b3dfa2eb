package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/MrWong99/cuecard/internal/insight"
	"github.com/MrWong99/cuecard/internal/matcher"
	"github.com/MrWong99/cuecard/internal/navigator"
	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/pkg/script"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper"},
	"vad": {"energy"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultSQLitePath = "cuecard.db"
	DefaultVAD        = "energy"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	m := &cfg.Matching
	if m.AnchorSensitivity == 0 {
		m.AnchorSensitivity = matcher.DefaultAnchorSensitivity
	}
	if m.ExitSensitivity == 0 {
		m.ExitSensitivity = matcher.DefaultExitSensitivity
	}
	if m.Cooldown == 0 {
		m.Cooldown = matcher.DefaultCooldown
	}
	if m.WindowWords == 0 {
		m.WindowWords = matcher.DefaultWindowSize
	}
	if m.PhraseWords == 0 {
		m.PhraseWords = script.DefaultPhraseWords
	}
	if m.MinPhraseWords == 0 {
		m.MinPhraseWords = script.DefaultMinPhraseWords
	}

	if cfg.Navigation.Mode == "" {
		cfg.Navigation.Mode = navigator.ModeCueCard
	}

	rec := &cfg.Recording
	if rec.Directory == "" {
		rec.Directory = "."
	}
	if rec.SampleRate == 0 {
		rec.SampleRate = DefaultSampleRate
	}
	if rec.Channels == 0 {
		rec.Channels = DefaultChannels
	}

	if cfg.Recognition.VAD.Name == "" {
		cfg.Recognition.VAD.Name = DefaultVAD
	}
	if cfg.Recognition.FailureThreshold == 0 {
		cfg.Recognition.FailureThreshold = 3
	}
	if cfg.Recognition.ResetTimeout == 0 {
		cfg.Recognition.ResetTimeout = 30 * time.Second
	}

	d := insight.DefaultConfig()
	ins := &cfg.Insights
	if ins.LongPause == 0 {
		ins.LongPause = d.LongPause
	}
	if ins.RushedWPM == 0 {
		ins.RushedWPM = d.RushedWPM
	}
	if ins.SlowWPM == 0 {
		ins.SlowWPM = d.SlowWPM
	}
	if ins.DwellFactor == 0 {
		ins.DwellFactor = d.DwellFactor
	}
	if ins.MinDwell == 0 {
		ins.MinDwell = d.MinDwell
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageSQLite
	}
	if cfg.Storage.Driver == StorageSQLite && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = DefaultSQLitePath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	m := cfg.Matching
	if err := (matcher.Sensitivity{Anchor: m.AnchorSensitivity, Exit: m.ExitSensitivity}).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("matching: %w", err))
	}
	if m.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("matching.cooldown %s must not be negative", m.Cooldown))
	}
	if m.WindowWords < 0 || m.PhraseWords < 0 || m.MinPhraseWords < 0 {
		errs = append(errs, errors.New("matching word counts must not be negative"))
	}
	if m.PhraseWords > 0 && m.MinPhraseWords > m.PhraseWords {
		errs = append(errs, fmt.Errorf("matching.min_phrase_words %d exceeds phrase_words %d", m.MinPhraseWords, m.PhraseWords))
	}

	nav := cfg.Navigation
	if nav.Mode != "" && !nav.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("navigation.mode %q is invalid; valid values: cue-card, teleprompter", nav.Mode))
	}
	if nav.BackwardJumps && nav.Mode == navigator.ModeCueCard {
		slog.Warn("navigation.backward_jumps has no effect in cue-card mode")
	}
	if nav.SegmentMinWords < 0 || nav.SegmentMaxWords < 0 {
		errs = append(errs, errors.New("navigation segment word counts must not be negative"))
	}
	if nav.SegmentMaxWords > 0 && nav.SegmentMinWords > nav.SegmentMaxWords {
		errs = append(errs, fmt.Errorf("navigation.segment_min_words %d exceeds segment_max_words %d", nav.SegmentMinWords, nav.SegmentMaxWords))
	}

	rec := cfg.Recording
	if rec.SampleRate < 0 || rec.Channels < 0 {
		errs = append(errs, errors.New("recording sample_rate and channels must not be negative"))
	}
	if rec.Channels > 2 {
		errs = append(errs, fmt.Errorf("recording.channels %d is unsupported; use 1 or 2", rec.Channels))
	}

	validateProviderName("stt", cfg.Recognition.STT.Name)
	for i, fb := range cfg.Recognition.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("recognition.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}
	if len(cfg.Recognition.Fallbacks) > 0 && cfg.Recognition.STT.Name == "" {
		errs = append(errs, errors.New("recognition.fallbacks require recognition.stt"))
	}
	validateProviderName("vad", cfg.Recognition.VAD.Name)
	if cfg.Recognition.FailureThreshold < 0 {
		errs = append(errs, errors.New("recognition.failure_threshold must not be negative"))
	}

	ins := cfg.Insights
	if ins.RushedWPM > 0 && ins.SlowWPM > 0 && ins.SlowWPM >= ins.RushedWPM {
		errs = append(errs, fmt.Errorf("insights.slow_wpm %.0f must be below rushed_wpm %.0f", ins.SlowWPM, ins.RushedWPM))
	}
	if ins.LongPause < 0 || ins.MinDwell < 0 {
		errs = append(errs, errors.New("insights durations must not be negative"))
	}

	switch cfg.Storage.Driver {
	case "", StorageNone, StorageSQLite:
	case StoragePostgres:
		if cfg.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: sqlite, postgres, none", cfg.Storage.Driver))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// SessionConfig builds the per-session configuration for sl.
func (c *Config) SessionConfig(sl *script.Setlist) session.Config {
	return session.Config{
		Script:         sl.Script,
		Resolver:       sl.Materials,
		Phrases:        sl.Phrases,
		Mode:           c.Navigation.Mode,
		BackwardJumps:  c.Navigation.BackwardJumps,
		ChunkMinWords:  c.Navigation.SegmentMinWords,
		ChunkMaxWords:  c.Navigation.SegmentMaxWords,
		PhraseWords:    c.Matching.PhraseWords,
		MinPhraseWords: c.Matching.MinPhraseWords,
		Sensitivity: matcher.Sensitivity{
			Anchor: c.Matching.AnchorSensitivity,
			Exit:   c.Matching.ExitSensitivity,
		},
		Cooldown:     c.Matching.Cooldown,
		WindowSize:   c.Matching.WindowWords,
		RecordingDir: c.Recording.Directory,
		Insights: insight.Config{
			LongPause:   c.Insights.LongPause,
			RushedWPM:   c.Insights.RushedWPM,
			SlowWPM:     c.Insights.SlowWPM,
			DwellFactor: c.Insights.DwellFactor,
			MinDwell:    c.Insights.MinDwell,
		},
	}
}
