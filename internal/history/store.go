// Package history persists finished runs so the admin API and operators can
// inspect what happened after the fact.
package history

import (
	"context"
	"errors"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/pipeline"
)

// ErrNotFound reports a run ID with no stored record.
var ErrNotFound = errors.New("history: run not found")

// RunSummary is the list projection served by the admin API: one row per
// run, without step output or stage timings.
type RunSummary struct {
	ID              string    `json:"id"`
	Repository      string    `json:"repository"`
	Branch          string    `json:"branch"`
	Commit          string    `json:"commit,omitempty"`
	Trigger         string    `json:"trigger"`
	Status          string    `json:"status"`
	FailedStepIndex int       `json:"failed_step_index"`
	Error           string    `json:"error,omitempty"`
	PublishedTo     string    `json:"published_to,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationMS      int64     `json:"duration_ms"`
}

// RunEvent is one appended lifecycle note for a run (queued, started,
// published, pruned workspace and the like).
type RunEvent struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists runs and their lifecycle events.
type Store interface {
	// RecordRun inserts or replaces the stored state of a run.
	RecordRun(ctx context.Context, run *pipeline.Run) error

	// AppendEvent adds one lifecycle event for a run.
	AppendEvent(ctx context.Context, runID, eventType, message string) error

	// Run returns the full stored run, or ErrNotFound.
	Run(ctx context.Context, id string) (*pipeline.Run, error)

	// Events returns a run's lifecycle events in append order.
	Events(ctx context.Context, runID string) ([]RunEvent, error)

	// RecentRuns returns summaries, newest first.
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// Prune deletes all but the newest keep runs (and their events),
	// returning how many runs were removed.
	Prune(ctx context.Context, keep int) (int, error)

	// Close releases the underlying database.
	Close() error
}
