package daemon

import (
	"sync"
	"testing"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/trigger"
)

type emitRecorder struct {
	mu     sync.Mutex
	events []trigger.Event
	counts []int
}

func (er *emitRecorder) emit(ev trigger.Event, coalesced int) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.events = append(er.events, ev)
	er.counts = append(er.counts, coalesced)
}

func (er *emitRecorder) snapshot() ([]trigger.Event, []int) {
	er.mu.Lock()
	defer er.mu.Unlock()
	return append([]trigger.Event(nil), er.events...), append([]int(nil), er.counts...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	rec := &emitRecorder{}
	d := NewDebouncer(30*time.Millisecond, time.Second, rec.emit)

	d.Request(trigger.Event{Branch: "main", Commit: "aaa"})
	d.Request(trigger.Event{Branch: "main", Commit: "bbb"})
	d.Request(trigger.Event{Branch: "main", Commit: "ccc"})

	waitFor(t, time.Second, func() bool {
		evs, _ := rec.snapshot()
		return len(evs) == 1
	})

	evs, counts := rec.snapshot()
	if counts[0] != 3 {
		t.Errorf("coalesced = %d, want 3", counts[0])
	}
	if evs[0].Commit != "ccc" {
		t.Errorf("emitted commit = %q, want latest %q", evs[0].Commit, "ccc")
	}
	if d.Pending() != 0 {
		t.Errorf("pending = %d after flush, want 0", d.Pending())
	}
}

func TestDebouncerSeparateBranches(t *testing.T) {
	rec := &emitRecorder{}
	d := NewDebouncer(20*time.Millisecond, time.Second, rec.emit)

	d.Request(trigger.Event{Branch: "main"})
	d.Request(trigger.Event{Branch: "release/1.0"})

	waitFor(t, time.Second, func() bool {
		evs, _ := rec.snapshot()
		return len(evs) == 2
	})

	_, counts := rec.snapshot()
	for i, c := range counts {
		if c != 1 {
			t.Errorf("counts[%d] = %d, want 1", i, c)
		}
	}
}

func TestDebouncerMaxDelayBoundsDeferral(t *testing.T) {
	rec := &emitRecorder{}
	// Quiet window longer than max delay: only the max timer can fire
	// while requests keep arriving.
	d := NewDebouncer(500*time.Millisecond, 60*time.Millisecond, rec.emit)

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.Request(trigger.Event{Branch: "main"})
			}
		}
	}()
	defer close(stop)

	d.Request(trigger.Event{Branch: "main"})
	waitFor(t, time.Second, func() bool {
		evs, _ := rec.snapshot()
		return len(evs) >= 1
	})
}

func TestDebouncerDisabledEmitsImmediately(t *testing.T) {
	rec := &emitRecorder{}
	d := NewDebouncer(0, 0, rec.emit)

	d.Request(trigger.Event{Branch: "main"})

	evs, counts := rec.snapshot()
	if len(evs) != 1 || counts[0] != 1 {
		t.Fatalf("expected immediate single emit, got %d events", len(evs))
	}
}

func TestDebouncerStopDropsPending(t *testing.T) {
	rec := &emitRecorder{}
	d := NewDebouncer(time.Hour, 0, rec.emit)

	d.Request(trigger.Event{Branch: "main"})
	if d.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", d.Pending())
	}

	d.Stop()
	if d.Pending() != 0 {
		t.Errorf("pending = %d after Stop, want 0", d.Pending())
	}
	if evs, _ := rec.snapshot(); len(evs) != 0 {
		t.Errorf("Stop emitted %d events, want 0", len(evs))
	}
}
