package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/cuecard/internal/config"
	"github.com/MrWong99/cuecard/internal/navigator"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)
	if d := config.Diff(cfg, mustLoad(t, sampleYAML)); !d.Empty() {
		t.Errorf("Diff of identical configs = %+v, want empty", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*config.Config)
		logLevel    bool
		matching    bool
		insights    bool
		restartWith []string
	}{
		{
			name:     "log level",
			mutate:   func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			logLevel: true,
		},
		{
			name:     "sensitivity",
			mutate:   func(c *config.Config) { c.Matching.ExitSensitivity = 0.9 },
			matching: true,
		},
		{
			name:     "cooldown",
			mutate:   func(c *config.Config) { c.Matching.Cooldown = 5 * time.Second },
			matching: true,
		},
		{
			name:     "long pause",
			mutate:   func(c *config.Config) { c.Insights.LongPause = 20 * time.Second },
			insights: true,
		},
		{
			name:        "mode",
			mutate:      func(c *config.Config) { c.Navigation.Mode = navigator.ModeCueCard },
			restartWith: []string{"navigation"},
		},
		{
			name:        "vad option",
			mutate:      func(c *config.Config) { c.Recognition.VAD.Options = map[string]any{"speech_threshold": 0.05} },
			restartWith: []string{"recognition"},
		},
		{
			name:        "stt fallback added",
			mutate:      func(c *config.Config) { c.Recognition.Fallbacks = []config.ProviderEntry{{Name: "whisper"}} },
			restartWith: []string{"recognition"},
		},
		{
			name: "recording and storage",
			mutate: func(c *config.Config) {
				c.Recording.Directory = "/tmp"
				c.Storage.Sidecar = nil
			},
			restartWith: []string{"recording", "storage"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := mustLoad(t, sampleYAML)
			new := mustLoad(t, sampleYAML)
			tt.mutate(new)

			d := config.Diff(old, new)
			if d.LogLevelChanged != tt.logLevel {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tt.logLevel)
			}
			if tt.logLevel && d.NewLogLevel != new.Server.LogLevel {
				t.Errorf("NewLogLevel = %q, want %q", d.NewLogLevel, new.Server.LogLevel)
			}
			if d.MatchingChanged != tt.matching {
				t.Errorf("MatchingChanged = %v, want %v", d.MatchingChanged, tt.matching)
			}
			if d.InsightsChanged != tt.insights {
				t.Errorf("InsightsChanged = %v, want %v", d.InsightsChanged, tt.insights)
			}
			if !slices.Equal(d.RestartRequired, tt.restartWith) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.restartWith)
			}
		})
	}
}
