package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded — without restarting an
// in-progress exploration run — are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     string

	WorkerCountChanged bool
	NewWorkerCount     int

	SimilarityThresholdChanged bool
	NewSimilarityThreshold     float64

	MaxCallsChanged    bool
	NewMaxCalls        int
	MaxWallTimeChanged bool
	NewMaxWallTimeS    int

	PlateauWindowChanged bool
	NewPlateauWindow     int
}

// Changed reports whether any tracked field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.WorkerCountChanged || d.SimilarityThresholdChanged ||
		d.MaxCallsChanged || d.MaxWallTimeChanged || d.PlateauWindowChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart — provider
// selection and target phone number require a fresh run and are ignored
// here.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Run.WorkerCount != new.Run.WorkerCount {
		d.WorkerCountChanged = true
		d.NewWorkerCount = new.Run.WorkerCount
	}
	if old.Run.SimilarityThreshold != new.Run.SimilarityThreshold {
		d.SimilarityThresholdChanged = true
		d.NewSimilarityThreshold = new.Run.SimilarityThreshold
	}
	if old.Run.MaxCalls != new.Run.MaxCalls {
		d.MaxCallsChanged = true
		d.NewMaxCalls = new.Run.MaxCalls
	}
	if old.Run.MaxWallTimeS != new.Run.MaxWallTimeS {
		d.MaxWallTimeChanged = true
		d.NewMaxWallTimeS = new.Run.MaxWallTimeS
	}
	if old.Run.PlateauWindow != new.Run.PlateauWindow {
		d.PlateauWindowChanged = true
		d.NewPlateauWindow = new.Run.PlateauWindow
	}

	return d
}
