package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/cuecard/internal/config"
	"github.com/MrWong99/cuecard/internal/observe"
	"github.com/MrWong99/cuecard/internal/resilience"
	"github.com/MrWong99/cuecard/pkg/provider/stt"
	"github.com/MrWong99/cuecard/pkg/provider/stt/deepgram"
	"github.com/MrWong99/cuecard/pkg/provider/stt/whisper"
	"github.com/MrWong99/cuecard/pkg/provider/vad"
	"github.com/MrWong99/cuecard/pkg/provider/vad/energy"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// newRegistry returns a registry holding every built-in provider.
func newRegistry(cfg *config.Config) *config.Registry {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Recording.SampleRate)
	return reg
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// sampleRate is the capture rate the recognizers are told to expect.
func registerBuiltinProviders(reg *config.Registry, sampleRate int) {
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithSampleRate(sampleRate)}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		p, err := deepgram.New(entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithSampleRate(sampleRate)}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ms := optInt(entry.Options, "silence_threshold_ms"); ms > 0 {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		if ms := optInt(entry.Options, "max_buffer_ms"); ms > 0 {
			opts = append(opts, whisper.WithMaxBufferDurationMs(ms))
		}
		p, err := whisper.New(entry.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if d := optDuration(entry.Options, "start"); d > 0 {
			opts = append(opts, energy.WithStart(d))
		}
		if d := optDuration(entry.Options, "hangover"); d > 0 {
			opts = append(opts, energy.WithHangover(d))
		}
		speech := optFloat(entry.Options, "speech_threshold")
		silence := optFloat(entry.Options, "silence_threshold")
		if speech > 0 || silence > 0 {
			opts = append(opts, energy.WithThresholds(speech, silence))
		}
		return energy.New(opts...), nil
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// buildSTT instantiates the configured recognizer and its fallbacks, each
// behind a circuit breaker. It returns nil when no recognizer is configured.
func buildSTT(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (stt.Provider, error) {
	rc := cfg.Recognition
	if rc.STT.Name == "" {
		return nil, nil
	}

	primary, err := reg.CreateSTT(rc.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", rc.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", rc.STT.Name)

	fb := resilience.NewSTTFallback(meter(primary, rc.STT.Name, m), rc.STT.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  rc.FailureThreshold,
			ResetTimeout: rc.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("stt circuit breaker", "provider", name, "from", from, "to", to)
			},
		},
	})
	for i, entry := range rc.Fallbacks {
		p, err := reg.CreateSTT(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("stt fallback not available, skipping", "index", i, "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
		}
		name := fmt.Sprintf("%s#%d", entry.Name, i+1)
		fb.AddFallback(name, meter(p, name, m))
		slog.Info("provider created", "kind", "stt", "name", entry.Name, "fallback", i+1)
	}
	return fb, nil
}

// buildVAD instantiates the configured voice activity engine.
func buildVAD(cfg *config.Config, reg *config.Registry) (vad.Engine, error) {
	e, err := reg.CreateVAD(cfg.Recognition.VAD)
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", cfg.Recognition.VAD.Name, err)
	}
	return e, nil
}

// meteredSTT counts stream starts per provider.
type meteredSTT struct {
	stt.Provider
	name    string
	metrics *observe.Metrics
}

func meter(p stt.Provider, name string, m *observe.Metrics) stt.Provider {
	if m == nil {
		return p
	}
	return &meteredSTT{Provider: p, name: name, metrics: m}
}

func (p *meteredSTT) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	h, err := p.Provider.StartStream(ctx, cfg)
	status := "ok"
	if err != nil {
		status = "error"
		p.metrics.RecordProviderError(ctx, p.name, "stt")
	}
	p.metrics.RecordProviderRequest(ctx, p.name, "stt", status)
	return h, err
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the key is absent or not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optFloat extracts a number from a provider Options map. YAML decodes
// integers as int, so both are accepted.
func optFloat(opts map[string]any, key string) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// optDuration accepts a Go duration string ("600ms") or a number of
// milliseconds.
func optDuration(opts map[string]any, key string) time.Duration {
	if s := optString(opts, key); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			slog.Warn("invalid duration option, ignoring", "key", key, "value", s, "err", err)
			return 0
		}
		return d
	}
	return time.Duration(optFloat(opts, key) * float64(time.Millisecond))
}
