package syncengine

import "time"

// State is the observable progress of the engine.
type State struct {
	IsSyncing    bool
	PendingCount int
	LastSyncAt   time.Time
	LastError    string
}

// Report summarizes one pass.
type Report struct {
	// AlreadyRunning is set when the call was a no-op because another pass
	// was in flight.
	AlreadyRunning bool

	Uploaded   int
	Downloaded int
	Deleted    int
	Conflicts  int
	Skipped    int
	Failed     int
}
