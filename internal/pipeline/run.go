package pipeline

import (
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pagesmith/internal/publish"
	"git.home.luguber.info/inful/pagesmith/internal/steps"
	"git.home.luguber.info/inful/pagesmith/internal/trigger"
)

// Status is the lifecycle state of a run.
//
//	pending -> running -> succeeded -> published
//	                   \-> failed      \-> failed
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded" // build and checks passed, publish pending
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition can happen.
func (s Status) IsTerminal() bool { return s == StatusPublished || s == StatusFailed }

// Run is one execution of the pipeline, created when the trigger evaluator
// accepts an event.
type Run struct {
	ID              string                   `json:"id"`
	Event           trigger.Event            `json:"event"`
	Status          Status                   `json:"status"`
	Commit          string                   `json:"commit,omitempty"` // checked-out commit
	Steps           []steps.StepResult       `json:"steps,omitempty"`
	FailedStepIndex int                      `json:"failed_step_index"` // -1 while no step has failed
	Error           string                   `json:"error,omitempty"`
	Publish         *publish.Result          `json:"publish,omitempty"`
	PublishedTo     string                   `json:"published_to,omitempty"`
	StageDurations  map[string]time.Duration `json:"stage_durations,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	StartedAt       time.Time                `json:"started_at"`
	FinishedAt      time.Time                `json:"finished_at"`
}

// NewRun creates a pending run for an accepted event.
func NewRun(event trigger.Event) *Run {
	return &Run{
		ID:              uuid.NewString(),
		Event:           event,
		Status:          StatusPending,
		FailedStepIndex: -1,
		StageDurations:  make(map[string]time.Duration),
		CreatedAt:       time.Now(),
	}
}

func (r *Run) start() {
	r.Status = StatusRunning
	r.StartedAt = time.Now()
}

// markSucceeded records that every step and check passed; publish is next.
func (r *Run) markSucceeded() { r.Status = StatusSucceeded }

func (r *Run) markPublished() {
	r.Status = StatusPublished
	r.FinishedAt = time.Now()
}

func (r *Run) markFailed(err error) {
	r.Status = StatusFailed
	r.FinishedAt = time.Now()
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration is the wall time from start to finish; zero while the run is
// still in flight.
func (r *Run) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
