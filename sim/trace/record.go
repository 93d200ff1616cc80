// Package trace provides decision-trace recording for engine batches and
// incremental driver decisions.
// It has no dependencies on sim/ or its sub-packages and stores pure data types.
// Times are virtual microseconds.
package trace

// BatchRecord captures one engine batch: every job due at one instant.
type BatchRecord struct {
	Clock      int64
	Jobs       int
	Resumed    int // tasks stepped, spawned children included
	Spawned    int
	Completed  int
	Conditions int // condition predictions recomputed after the batch
	Resampled  int // resources resampled after the batch
}

// ResetRecord captures an incremental driver restart from time zero.
type ResetRecord struct {
	Clock         int64 // session time when the request arrived
	Horizon       int64
	Divergence    int64
	HasDivergence bool
	Reason        string
}

// ExtensionRecord captures a request served by continuing the current session.
type ExtensionRecord struct {
	From    int64
	To      int64
	Changed bool // whether the schedule differed beyond From
}
