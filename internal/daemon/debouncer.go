package daemon

import (
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/trigger"
)

// Debouncer coalesces bursts of accepted push events into single run
// requests. Forges often deliver several webhooks in quick succession
// (multi-commit pushes, retried deliveries); starting a run per delivery
// wastes work since each run checks out the branch head anyway.
//
// Events are coalesced per branch. A burst is emitted when no new event
// arrives for the quiet window, or when the oldest event has waited the
// max delay, whichever comes first. The latest event wins: its commit is
// what the run will see at checkout.
type Debouncer struct {
	quiet    time.Duration
	maxDelay time.Duration
	emit     func(ev trigger.Event, coalesced int)

	mu     sync.Mutex
	bursts map[string]*burst
}

type burst struct {
	latest     trigger.Event
	count      int
	firstAt    time.Time
	quietTimer *time.Timer
	maxTimer   *time.Timer
}

// NewDebouncer creates a debouncer. A non-positive quiet window disables
// coalescing: every event is emitted immediately.
func NewDebouncer(quiet, maxDelay time.Duration, emit func(ev trigger.Event, coalesced int)) *Debouncer {
	return &Debouncer{
		quiet:    quiet,
		maxDelay: maxDelay,
		emit:     emit,
		bursts:   make(map[string]*burst),
	}
}

// Request records an accepted event. It returns quickly; the emit callback
// fires later from a timer goroutine.
func (d *Debouncer) Request(ev trigger.Event) {
	if d.quiet <= 0 {
		d.emit(ev, 1)
		return
	}

	d.mu.Lock()
	b, ok := d.bursts[ev.Branch]
	if !ok {
		b = &burst{latest: ev, count: 1, firstAt: time.Now()}
		d.bursts[ev.Branch] = b
		branch := ev.Branch
		b.quietTimer = time.AfterFunc(d.quiet, func() { d.flush(branch, "quiet") })
		if d.maxDelay > 0 {
			b.maxTimer = time.AfterFunc(d.maxDelay, func() { d.flush(branch, "max_delay") })
		}
		d.mu.Unlock()
		return
	}

	b.latest = ev
	b.count++
	b.quietTimer.Reset(d.quiet)
	d.mu.Unlock()
}

// flush emits the pending burst for branch. Both timers route here; the
// first to fire wins and the loser finds the burst already gone.
func (d *Debouncer) flush(branch, cause string) {
	d.mu.Lock()
	b, ok := d.bursts[branch]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.bursts, branch)
	b.quietTimer.Stop()
	if b.maxTimer != nil {
		b.maxTimer.Stop()
	}
	d.mu.Unlock()

	slog.Debug("Debounce window closed",
		logfields.Branch(branch),
		slog.String("cause", cause),
		slog.Int("coalesced", b.count),
		logfields.DurationMS(float64(time.Since(b.firstAt).Milliseconds())))

	d.emit(b.latest, b.count)
}

// Pending returns the number of branches with an open burst.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bursts)
}

// Stop cancels all pending bursts without emitting them. Events dropped
// here never became runs; the next push or scheduled run picks them up.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.bursts) > 0 {
		slog.Info("Dropping pending debounce bursts", slog.Int("count", len(d.bursts)))
	}
	for branch, b := range d.bursts {
		b.quietTimer.Stop()
		if b.maxTimer != nil {
			b.maxTimer.Stop()
		}
		delete(d.bursts, branch)
	}
}
