package config

import "reflect"

// ConfigDiff describes what changed between two configs. Matching and
// insight thresholds and the log level apply without a restart; everything
// else is only reported.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MatchingChanged is true if sensitivities, cooldown or phrase lengths
	// changed. The next session picks them up.
	MatchingChanged bool

	InsightsChanged bool

	// RestartRequired lists the sections that changed but are only read at
	// startup.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.MatchingChanged && !d.InsightsChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.MatchingChanged = old.Matching != new.Matching
	d.InsightsChanged = old.Insights != new.Insights

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Navigation != new.Navigation {
		d.RestartRequired = append(d.RestartRequired, "navigation")
	}
	if old.Recording != new.Recording {
		d.RestartRequired = append(d.RestartRequired, "recording")
	}
	if !sameRecognition(old.Recognition, new.Recognition) {
		d.RestartRequired = append(d.RestartRequired, "recognition")
	}
	if old.Storage.Driver != new.Storage.Driver || old.Storage.DSN != new.Storage.DSN ||
		old.Storage.SidecarEnabled() != new.Storage.SidecarEnabled() {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	return d
}

func sameRecognition(a, b RecognitionConfig) bool {
	if len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	for i := range a.Fallbacks {
		if !sameProvider(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return sameProvider(a.STT, b.STT) && sameProvider(a.VAD, b.VAD) &&
		a.Language == b.Language &&
		a.KeywordBoost == b.KeywordBoost &&
		a.FailureThreshold == b.FailureThreshold &&
		a.ResetTimeout == b.ResetTimeout
}

func sameProvider(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && reflect.DeepEqual(a.Options, b.Options)
}
