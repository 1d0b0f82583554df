package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MatchChanged is set when any verification threshold changed. The new
	// policy can be applied to a running engine.
	MatchChanged bool

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart (providers, passages, ...).
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.MatchChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.MatchChanged = old.Match != new.Match

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""

	for _, section := range []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"providers", old.Providers, new.Providers},
		{"resilience", old.Resilience, new.Resilience},
		{"quiz", old.Quiz, new.Quiz},
		{"passages", old.Passages, new.Passages},
		{"voice", old.Voice, new.Voice},
		{"journal", old.Journal, new.Journal},
	} {
		if !reflect.DeepEqual(section.old, section.new) {
			d.RestartRequired = append(d.RestartRequired, section.name)
		}
	}
	return d
}
