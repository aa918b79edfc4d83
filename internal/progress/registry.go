package progress

import "sync"

// Registry is a shared mapping from task identifier to its progress
// tracker. The map itself is guarded by one mutex; each tracker guards its
// own counters, so registered tasks update without touching the map lock.
type Registry struct {
	mu       sync.Mutex
	trackers map[string]*Tracker

	// onUpdate is attached to every tracker created through Register.
	onUpdate UpdateFunc
}

// NewRegistry creates an empty task progress registry.
func NewRegistry() *Registry {
	return &Registry{trackers: make(map[string]*Tracker)}
}

// SetOnUpdate registers an observer attached to every future tracker.
// Typically wired to the progress telemetry publisher.
func (r *Registry) SetOnUpdate(fn UpdateFunc) {
	r.mu.Lock()
	r.onUpdate = fn
	r.mu.Unlock()
}

// Register creates and stores a tracker for the task. Any existing tracker
// under the same identifier is cancelled and replaced, so workers still
// holding it stop reporting for a task the registry no longer tracks.
func (r *Registry) Register(taskID string, total int64) *Tracker {
	t := NewTracker(taskID, total)
	r.mu.Lock()
	displaced := r.trackers[taskID]
	t.SetOnUpdate(r.onUpdate)
	r.trackers[taskID] = t
	r.mu.Unlock()

	if displaced != nil {
		displaced.Cancel()
	}
	return t
}

// Get returns the tracker for a task, or nil when the task is unknown.
func (r *Registry) Get(taskID string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackers[taskID]
}

// Stop cancels the task's tracker and removes it from the registry.
// Returns false when the task is unknown.
func (r *Registry) Stop(taskID string) bool {
	r.mu.Lock()
	t, ok := r.trackers[taskID]
	if ok {
		delete(r.trackers, taskID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	t.Cancel()
	return true
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}
