package config

// ConfigDiff describes what changed between two configs. Only the log level
// and the session tuning can be applied to a running server; session changes
// take effect for connections accepted after the reload.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SessionChanged bool
	NewSession     SessionConfig

	// RestartRequired is set when a field that cannot be hot-applied
	// changed (listener address, metrics address, or anything under
	// model:). The running server keeps its old values for those.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session != new.Session {
		d.SessionChanged = true
		d.NewSession = new.Session
	}

	if old.Server.Host != new.Server.Host ||
		old.Server.Port != new.Server.Port ||
		old.Server.MetricsAddr != new.Server.MetricsAddr ||
		old.Model != new.Model {
		d.RestartRequired = true
	}

	return d
}

// Empty reports whether the diff carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.SessionChanged && !d.RestartRequired
}
