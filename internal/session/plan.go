package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/cuecard/internal/insight"
	"github.com/MrWong99/cuecard/internal/matcher"
	"github.com/MrWong99/cuecard/internal/navigator"
	"github.com/MrWong99/cuecard/pkg/script"
)

// Config holds everything one session needs. It is passed explicitly to
// each session; nothing is read from global settings.
type Config struct {
	Script   script.Script
	Resolver script.MaterialResolver

	// Phrases are user-configured trigger phrases. They replace the
	// generated phrase for the same unit and role.
	Phrases []script.PhraseConfig

	Mode navigator.Mode

	// BackwardJumps lets a spoken anchor of an earlier block jump back.
	// Only teleprompter mode honours it.
	BackwardJumps bool

	// ChunkMinWords and ChunkMaxWords bound chunk size in teleprompter mode.
	ChunkMinWords, ChunkMaxWords int

	// PhraseWords is the length of generated anchor and exit phrases and
	// MinPhraseWords the minimum length of a valid phrase.
	PhraseWords, MinPhraseWords int

	Sensitivity matcher.Sensitivity
	Cooldown    time.Duration
	WindowSize  int

	// RecordingDir is where the recording is written. Empty means the
	// working directory.
	RecordingDir string

	Insights insight.Config
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs []error
	if c.Mode != "" && !c.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("session: unknown mode %q", c.Mode))
	}
	if c.Sensitivity != (matcher.Sensitivity{}) {
		if err := c.Sensitivity.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("session: cooldown %s is negative", c.Cooldown))
	}
	if c.ChunkMinWords < 0 || c.ChunkMaxWords < 0 || c.PhraseWords < 0 || c.MinPhraseWords < 0 || c.WindowSize < 0 {
		errs = append(errs, errors.New("session: word counts must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = navigator.ModeCueCard
	}
	if c.Sensitivity == (matcher.Sensitivity{}) {
		c.Sensitivity = matcher.DefaultSensitivity()
	}
	if c.Cooldown == 0 {
		c.Cooldown = matcher.DefaultCooldown
	}
	if c.Script.Title == "" {
		c.Script.Title = "set"
	}
	return c
}

// Plan is a prepared session: the segmented units and the phrases bound to
// them. Units are produced once and never change during the session.
type Plan struct {
	Config  Config
	Units   []script.Unit
	Phrases []script.TriggerPhrase
	Policy  navigator.Policy
}

// Prepare validates cfg, segments the script and binds trigger phrases.
// Invalid phrases stay in the plan, flagged, and are never matched.
func Prepare(cfg Config) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	policy, err := navigator.PolicyFor(cfg.Mode, cfg.BackwardJumps)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	seg := script.NewSegmenter(cfg.Mode.Segmentation(),
		script.WithChunkWords(cfg.ChunkMinWords, cfg.ChunkMaxWords),
		script.WithResolver(cfg.Resolver),
	)
	units, err := seg.Segment(cfg.Script)
	if err != nil {
		return nil, fmt.Errorf("session: segment %q: %w", cfg.Script.Title, err)
	}

	generated := script.GeneratePhrases(units, cfg.PhraseWords, cfg.MinPhraseWords)
	configured, err := script.BindPhrases(cfg.Phrases, cfg.Script, units, cfg.MinPhraseWords)
	if err != nil {
		return nil, fmt.Errorf("session: bind phrases: %w", err)
	}
	phrases := script.MergePhrases(generated, configured)

	for _, p := range script.InvalidPhrases(phrases) {
		slog.Warn("session: phrase too short, excluded from matching",
			"phrase", p.Text, "role", p.Role, "unit", p.UnitIndex)
	}

	return &Plan{Config: cfg, Units: units, Phrases: phrases, Policy: policy}, nil
}

// Positions returns, per unit index, the 1-based position among content
// units, or 0 for separators.
func (p *Plan) Positions() []int {
	out := make([]int, len(p.Units))
	n := 0
	for i, u := range p.Units {
		if u.Separator {
			continue
		}
		n++
		out[i] = n
	}
	return out
}

// ContentUnits returns the number of units that are not separators.
func (p *Plan) ContentUnits() int {
	n := 0
	for _, u := range p.Units {
		if !u.Separator {
			n++
		}
	}
	return n
}
