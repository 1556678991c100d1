package jobs

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"montage/internal/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestAdmitRejectsAtCapacity(t *testing.T) {
	c := NewController(Options{MaxActive: 5})

	var first Job
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("job-%d", i)
		job, err := c.Admit(id, "proj", ModeFlat)
		if err != nil {
			t.Fatalf("Admit(%s) error = %v", id, err)
		}
		if i == 0 {
			first = job
		}
		if _, err := c.SetStatus(id, StateDownloading, Update{Progress: 10}); err != nil {
			t.Fatalf("SetStatus(%s) error = %v", id, err)
		}
	}

	_, err := c.Admit("job-6", "proj", ModeFlat)
	if !errors.IsCapacity(err) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if _, ok := c.Get("job-6"); ok {
		t.Fatal("rejected job must not be recorded")
	}

	c.Release(first.ID, first.Ticket)
	if _, err := c.Admit("job-6", "proj", ModeFlat); err != nil {
		t.Fatalf("expected admission after release, got %v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	c := NewController(Options{MaxActive: 1})
	a, err := c.Admit("a", "", ModeFlat)
	if err != nil {
		t.Fatal(err)
	}
	c.Release("a", a.Ticket)
	c.Release("a", a.Ticket)

	if active, limit := c.Active(); active != 0 || limit != 1 {
		t.Fatalf("Active() = %d/%d, want 0/1", active, limit)
	}
}

func TestReleaseIgnoresStaleTicket(t *testing.T) {
	c := NewController(Options{MaxActive: 1})
	first, err := c.Admit("x", "", ModeFlat)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.SetStatus("x", StateError, Update{Error: "x"}); err != nil {
		t.Fatal(err)
	}
	c.Release("x", first.Ticket)

	second, err := c.Admit("x", "", ModeFlat)
	if err != nil {
		t.Fatalf("resubmission after release: %v", err)
	}
	if second.Ticket == first.Ticket {
		t.Fatal("each admission must get its own ticket")
	}

	c.Release("x", first.Ticket)
	if active, _ := c.Active(); active != 1 {
		t.Fatalf("stale release freed the new slot: active = %d", active)
	}
	if _, err := c.Admit("y", "", ModeFlat); !errors.IsCapacity(err) {
		t.Fatalf("expected capacity error while x runs, got %v", err)
	}
}

func TestAdmitRejectsDuplicateRunningJob(t *testing.T) {
	c := NewController(Options{MaxActive: 3})
	dup, err := c.Admit("dup", "", ModeTimeline)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Admit("dup", "", ModeTimeline); !errors.IsCode(err, errors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if _, err := c.SetStatus("dup", StateError, Update{Error: "boom"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Admit("dup", "", ModeTimeline); !errors.IsCode(err, errors.CodeConflict) {
		t.Fatalf("finished job still holding its slot should conflict, got %v", err)
	}
	c.Release("dup", dup.Ticket)
	if _, err := c.Admit("dup", "", ModeTimeline); err != nil {
		t.Fatalf("finished job id should be reusable, got %v", err)
	}
}

func TestSetStatusMonotonic(t *testing.T) {
	c := NewController(Options{})
	if _, err := c.Admit("j", "p", ModeFlat); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		state    State
		progress int
	}{
		{StateDownloading, 10},
		{StateRendering, 30},
		{StateRendering, 20},
		{StateUploading, 80},
	}
	for _, s := range steps {
		if _, err := c.SetStatus("j", s.state, Update{Progress: s.progress}); err != nil {
			t.Fatalf("SetStatus(%s) error = %v", s.state, err)
		}
	}

	job, _ := c.Get("j")
	if job.Progress != 80 {
		t.Fatalf("progress = %d, want 80", job.Progress)
	}

	if _, err := c.SetStatus("j", StateRendering, Update{}); err == nil {
		t.Fatal("expected backwards transition to be rejected")
	}
	if _, err := c.SetStatus("j", StateFinalizing, Update{}); err == nil {
		t.Fatal("uploading jobs cannot finalize")
	}

	done, err := c.SetStatus("j", StateDone, Update{Result: &Result{URL: "https://cdn/x.mp4"}})
	if err != nil {
		t.Fatal(err)
	}
	if done.Progress != 100 || done.Result.URL != "https://cdn/x.mp4" {
		t.Fatalf("unexpected terminal snapshot %+v", done)
	}
	if _, err := c.SetStatus("j", StateError, Update{Error: "late"}); err == nil {
		t.Fatal("terminal jobs must not change state")
	}
}

func TestSetStatusErrorFromAnyActiveState(t *testing.T) {
	for _, from := range []State{StateQueued, StateDownloading, StateRendering, StateUploading, StateFinalizing} {
		t.Run(string(from), func(t *testing.T) {
			if !isValidTransition(from, StateError) {
				t.Fatalf("%s -> error should be allowed", from)
			}
		})
	}
}

func TestSweepEvictsOldFinishedJobs(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var evicted []string
	c := NewController(Options{
		MaxActive:  10,
		MaxTracked: 2,
		TTL:        time.Minute,
		Now:        clock.Now,
		OnEvict:    func(j Job) { evicted = append(evicted, j.ID) },
	})

	finish := func(id string) {
		job, err := c.Admit(id, "", ModeFlat)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.SetStatus(id, StateError, Update{Error: "x"}); err != nil {
			t.Fatal(err)
		}
		c.Release(id, job.Ticket)
	}

	finish("old-1")
	finish("old-2")
	clock.Advance(2 * time.Minute)

	if _, err := c.Admit("running", "", ModeFlat); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SetStatus("running", StateDownloading, Update{Progress: 10}); err != nil {
		t.Fatal(err)
	}

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after sweep", c.Len())
	}
	if len(evicted) != 2 {
		t.Fatalf("evicted = %v, want both old jobs", evicted)
	}
	if _, ok := c.Get("running"); !ok {
		t.Fatal("running job must survive the sweep")
	}
}

func TestSweepSkipsBelowThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := NewController(Options{MaxTracked: 10, TTL: time.Second, Now: clock.Now})

	a, err := c.Admit("a", "", ModeFlat)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.SetStatus("a", StateError, Update{Error: "x"}); err != nil {
		t.Fatal(err)
	}
	c.Release("a", a.Ticket)
	clock.Advance(time.Hour)

	if _, err := c.Admit("b", "", ModeFlat); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SetStatus("b", StateDownloading, Update{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("sweep must not run below the size threshold")
	}
}
