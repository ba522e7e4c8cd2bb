package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only the log level
// is applied on the fly; every other changed section is listed in
// RestartRequired so the operator knows the reload did not take effect.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the top-level sections (e.g. "recognition",
	// "providers") whose changes only apply after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"discord", old.Discord, new.Discord},
		{"recognition", old.Recognition, new.Recognition},
		{"providers", old.Providers, new.Providers},
		{"sessions", old.Sessions, new.Sessions},
		{"history", old.History, new.History},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
