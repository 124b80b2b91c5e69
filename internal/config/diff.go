package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AlignmentChanged and SessionChanged apply to sessions created after
	// the reload. Running sessions keep their policy.
	AlignmentChanged bool
	SessionChanged   bool

	// RestartRequired lists changed sections that only take effect after a
	// restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.AlignmentChanged || d.SessionChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.AlignmentChanged = old.Alignment != new.Alignment
	d.SessionChanged = old.Session != new.Session

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !reflect.DeepEqual(old.Passages, new.Passages) {
		d.RestartRequired = append(d.RestartRequired, "passages")
	}
	return d
}
