// Package model holds the records shared by the store, queue, scheduler and
// RPC layers.
package model

// Status is the lifecycle state of a DownloadTask.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// rank orders statuses along the only permitted path:
// pending -> downloading -> {completed | failed}.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusDownloading:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// IsTerminal reports whether s is completed or failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a task in status s may be saved with status
// to. Rewriting the same status is allowed (progress updates); terminal
// statuses are final, and pending may fail directly (cancelled or
// interrupted before it started) but never complete without downloading.
func (s Status) CanTransition(to Status) bool {
	if !s.Valid() || !to.Valid() {
		return false
	}
	if s == to {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	if s == StatusPending && to == StatusCompleted {
		return false
	}
	return to.rank() > s.rank()
}
