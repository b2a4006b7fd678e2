package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoiceChanged is set when the coach voice differs; running sessions
	// keep their voice, new sessions pick up the change.
	VoiceChanged bool
	NewVoice     string

	MaxSessionsChanged bool
	NewMaxSessions     int

	VocabularyChanged bool
}

// Changed reports whether any tracked field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VoiceChanged || d.MaxSessionsChanged || d.VocabularyChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Interview.Voice != new.Interview.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.Interview.Voice
	}

	if old.Interview.MaxSessions != new.Interview.MaxSessions {
		d.MaxSessionsChanged = true
		d.NewMaxSessions = new.Interview.MaxSessions
	}

	if !slices.Equal(old.Interview.SkillVocabulary, new.Interview.SkillVocabulary) {
		d.VocabularyChanged = true
	}

	return d
}
