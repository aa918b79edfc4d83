package progress

import (
	"sync"
	"testing"
)

func TestUpdateAfterCancelIsNoOp(t *testing.T) {
	tr := NewTracker("task-1", 200)

	tr.Update(50)
	tr.Cancel()
	tr.Update(50)

	uploaded, total, pct := tr.Snapshot()
	if uploaded != 50 {
		t.Errorf("uploaded = %d, want 50", uploaded)
	}
	if total != 200 {
		t.Errorf("total = %d, want 200", total)
	}
	if pct != 25 {
		t.Errorf("percentage = %v, want 25", pct)
	}
}

func TestSnapshotZeroTotal(t *testing.T) {
	tr := NewTracker("task-1", 0)
	tr.Update(50)

	_, _, pct := tr.Snapshot()
	if pct != 0 {
		t.Errorf("percentage with zero total = %v, want 0", pct)
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	tr := r.Register("task-1", 100)
	if got := r.Get("task-1"); got != tr {
		t.Error("Get returned a different tracker than Register")
	}
	if got := r.Get("task-2"); got != nil {
		t.Errorf("Get(unknown) = %v, want nil", got)
	}
}

func TestRegistryStopCancelsAndRemoves(t *testing.T) {
	r := NewRegistry()
	tr := r.Register("task-1", 100)

	if !r.Stop("task-1") {
		t.Fatal("Stop(known task) = false, want true")
	}
	if !tr.Cancelled() {
		t.Error("tracker not cancelled after Stop")
	}
	if r.Get("task-1") != nil {
		t.Error("tracker still registered after Stop")
	}
	if r.Stop("task-1") {
		t.Error("Stop(removed task) = true, want false")
	}
}

func TestRegistryReplaceExisting(t *testing.T) {
	r := NewRegistry()
	first := r.Register("task-1", 100)
	second := r.Register("task-1", 300)

	if first == second {
		t.Fatal("Register did not replace the existing tracker")
	}
	if got := r.Get("task-1"); got != second {
		t.Error("Get returned the stale tracker after replacement")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	// Workers still holding the displaced tracker must stop reporting.
	if !first.Cancelled() {
		t.Error("displaced tracker not cancelled")
	}
	first.Update(10)
	if uploaded, _, _ := first.Snapshot(); uploaded != 0 {
		t.Errorf("displaced tracker uploaded = %d after update, want 0", uploaded)
	}
	if second.Cancelled() {
		t.Error("replacement tracker unexpectedly cancelled")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	tr := NewTracker("task-1", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				tr.Update(1)
			}
		}()
	}
	wg.Wait()

	uploaded, _, pct := tr.Snapshot()
	if uploaded != 100 {
		t.Errorf("uploaded = %d, want 100", uploaded)
	}
	if pct != 10 {
		t.Errorf("percentage = %v, want 10", pct)
	}
}

func TestUpdateNotifiesObserver(t *testing.T) {
	r := NewRegistry()

	type report struct {
		taskID     string
		uploaded   int64
		percentage float64
	}
	var mu sync.Mutex
	var reports []report

	r.SetOnUpdate(func(taskID string, uploaded, _ int64, percentage float64) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, report{taskID, uploaded, percentage})
	})

	tr := r.Register("task-1", 200)
	tr.Update(50)
	tr.Cancel()
	tr.Update(50) // dropped, must not be reported

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	if reports[0].taskID != "task-1" || reports[0].uploaded != 50 || reports[0].percentage != 25 {
		t.Errorf("report = %+v, want task-1/50/25", reports[0])
	}
}
