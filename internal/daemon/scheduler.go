package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// Scheduler wraps gocron for the daemon's periodic work: optional scheduled
// runs from a cron expression, and housekeeping (workspace sweep, history
// pruning) on a fixed interval.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a scheduler instance. Jobs are registered separately
// and start ticking once Start is called.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// ScheduleRuns registers task on the given cron expression. Both 5-field
// and 6-field (leading seconds) expressions are accepted. Returns the job
// ID for logging.
func (s *Scheduler) ScheduleRuns(crontab string, task func()) (string, error) {
	withSeconds := len(strings.Fields(crontab)) == 6
	job, err := s.scheduler.NewJob(
		gocron.CronJob(crontab, withSeconds),
		gocron.NewTask(task),
		gocron.WithName("scheduled-run"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to schedule runs for %q: %w", crontab, err)
	}

	slog.Info("Scheduled periodic runs",
		logfields.ScheduleName(crontab),
		slog.String("job_id", job.ID().String()))
	return job.ID().String(), nil
}

// ScheduleHousekeeping registers task on a fixed interval.
func (s *Scheduler) ScheduleHousekeeping(interval time.Duration, task func()) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName("housekeeping"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to schedule housekeeping: %w", err)
	}
	return job.ID().String(), nil
}

// Start begins executing registered jobs.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}
