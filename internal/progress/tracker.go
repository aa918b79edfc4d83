package progress

import (
	"sync"
	"sync/atomic"
)

// Tracker holds the upload progress counters for one task.
//
// Counters are guarded by the tracker's own mutex so frequent progress
// updates never contend on the registry's map lock. Cancellation is an
// atomic flag checked cooperatively: an update that races with a stop
// request is dropped, never queued.
type Tracker struct {
	taskID string

	mu       sync.Mutex
	total    int64
	uploaded int64

	cancelled atomic.Bool

	// onUpdate, when set, observes every accepted update. Called outside
	// the counter lock.
	onUpdate UpdateFunc
}

// UpdateFunc observes one accepted progress update.
type UpdateFunc func(taskID string, uploaded, total int64, percentage float64)

// NewTracker creates a progress tracker for one task.
func NewTracker(taskID string, total int64) *Tracker {
	return &Tracker{taskID: taskID, total: total}
}

// SetOnUpdate registers an observer for accepted updates. Must be set
// before the tracker is shared with workers.
func (t *Tracker) SetOnUpdate(fn UpdateFunc) {
	t.onUpdate = fn
}

// TaskID returns the task identifier this tracker belongs to.
func (t *Tracker) TaskID() string {
	return t.taskID
}

// Update adds bytes to the uploaded counter. It is a no-op once the
// tracker has been cancelled, so progress events cannot reappear after a
// stop request.
func (t *Tracker) Update(bytes int64) {
	if t.cancelled.Load() {
		return
	}
	t.mu.Lock()
	t.uploaded += bytes
	t.mu.Unlock()

	if t.onUpdate != nil {
		uploaded, total, percentage := t.Snapshot()
		t.onUpdate(t.taskID, uploaded, total, percentage)
	}
}

// Cancel marks the tracker cancelled. All subsequent updates are dropped.
func (t *Tracker) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether the tracker has been cancelled.
func (t *Tracker) Cancelled() bool {
	return t.cancelled.Load()
}

// Snapshot returns the current uploaded size, total size, and completion
// percentage. A zero total reports zero percent rather than dividing by zero.
func (t *Tracker) Snapshot() (uploaded, total int64, percentage float64) {
	t.mu.Lock()
	uploaded = t.uploaded
	total = t.total
	t.mu.Unlock()

	if total > 0 {
		percentage = float64(uploaded) / float64(total) * 100
	}
	return uploaded, total, percentage
}
