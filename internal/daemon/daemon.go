// Package daemon wires the long-running pagesmith service: webhook intake,
// trigger evaluation, the debounced run queue, scheduled runs, run history
// and the admin API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pagesmith/internal/api"
	"git.home.luguber.info/inful/pagesmith/internal/config"
	appgit "git.home.luguber.info/inful/pagesmith/internal/git"
	"git.home.luguber.info/inful/pagesmith/internal/history"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/metrics"
	"git.home.luguber.info/inful/pagesmith/internal/notify"
	"git.home.luguber.info/inful/pagesmith/internal/pipeline"
	"git.home.luguber.info/inful/pagesmith/internal/trigger"
	"git.home.luguber.info/inful/pagesmith/internal/workspace"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

const (
	// housekeepingInterval paces workspace sweeps and history pruning.
	housekeepingInterval = time.Hour

	// staleWorkspaceAge is how old an ephemeral workspace must be before
	// the sweep removes it. Long enough that no live run is that old.
	staleWorkspaceAge = 6 * time.Hour

	// historyKeepRuns bounds the run history database.
	historyKeepRuns = 500
)

// Daemon is the pagesmith service. It owns every long-lived component and
// coordinates their startup and reverse-order shutdown.
type Daemon struct {
	cfg        *config.Config
	configPath string
	storage    config.StorageConfig // fixed at startup, reload never touches it
	status     atomic.Value         // Status
	startTime  time.Time

	// remoteHead probes the remote branch head so scheduled runs can skip
	// unchanged branches. Swappable in tests.
	remoteHead func(repo config.RepositoryConfig, branch string) (string, error)

	evaluator     *trigger.Evaluator
	runner        *pipeline.Runner
	queue         *RunQueue
	debouncer     *Debouncer
	scheduler     *Scheduler
	configWatcher *ConfigWatcher
	store         history.Store
	recorder      metrics.Recorder
	notifier      *notify.Notifier
	webhook       *WebhookServer
	admin         *api.Server

	serverErrs chan error

	mu          sync.RWMutex
	activeRunID string
	lastRun     *history.RunSummary
}

// New creates a daemon from a validated configuration. configPath enables
// config file watching when non-empty.
func New(cfg *config.Config, configPath string) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if cfg.Daemon == nil {
		return nil, fmt.Errorf("daemon configuration is required")
	}

	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		storage:    cfg.Daemon.Storage,
		remoteHead: appgit.RemoteHead,
		serverErrs: make(chan error, 2),
	}
	d.status.Store(StatusStopped)

	registry := prometheus.NewRegistry()
	d.recorder = metrics.NewPrometheusRecorder(registry)

	store, err := history.NewSQLiteStore(cfg.Daemon.Storage.HistoryDB)
	if err != nil {
		return nil, err
	}
	d.store = store

	notifier, err := notify.NewNotifier(cfg.Daemon.NATS)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}
	d.notifier = notifier

	d.evaluator = trigger.NewEvaluator(cfg.Trigger)
	d.runner = pipeline.NewRunner(cfg).
		WithRecorder(d.recorder).
		WithWorkspaceFactory(d.workspaceFactory).
		WithRunStarted(d.noteRunStarted)

	d.queue = NewRunQueue(cfg.Daemon.Queue.Size, cfg.Daemon.Queue.Workers, d.executeRun).
		WithRecorder(d.recorder)

	quiet, maxDelay := debounceDurations(cfg.Daemon.Debounce)
	d.debouncer = NewDebouncer(quiet, maxDelay, d.enqueueRun)

	d.scheduler, err = NewScheduler()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	d.webhook = NewWebhookServer(
		":"+strconv.Itoa(cfg.Daemon.HTTP.WebhookPort),
		cfg.Daemon.WebhookSecret,
		d,
	)

	d.admin = api.NewServer(":" + strconv.Itoa(cfg.Daemon.HTTP.AdminPort)).
		WithStore(d.store).
		WithTrigger(d.TriggerManual).
		WithStatus(d.statusInfo).
		WithMetrics(metrics.HTTPHandler(registry)).
		WithAuthToken(cfg.Daemon.AdminToken)

	if configPath != "" {
		d.configWatcher, err = NewConfigWatcher(configPath, d.applyConfig)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	return d, nil
}

// workspaceFactory builds run workspaces per the daemon storage config:
// persistent when keep_workspaces is set, ephemeral timestamped otherwise.
func (d *Daemon) workspaceFactory() *workspace.Manager {
	if d.storage.KeepWorkspaces {
		return workspace.NewPersistentManager(d.storage.WorkspaceDir, "")
	}
	return workspace.NewManager(d.storage.WorkspaceDir)
}

// snapshot returns the current config pointer. Configs are immutable once
// installed; a reload swaps the pointer, it never mutates the struct.
func (d *Daemon) snapshot() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// debounceDurations parses the validated debounce config. Validation already
// guaranteed parseability, so a parse failure collapses to no coalescing.
func debounceDurations(dc config.DebounceConfig) (quiet, maxDelay time.Duration) {
	quiet, _ = time.ParseDuration(dc.Quiet)
	maxDelay, _ = time.ParseDuration(dc.MaxDelay)
	return quiet, maxDelay
}

// GetStatus returns the daemon's current lifecycle state.
func (d *Daemon) GetStatus() Status {
	return d.status.Load().(Status)
}

// Start brings all components up and returns once the daemon is serving.
// Both HTTP ports are bound before anything starts so conflicts fail fast.
func (d *Daemon) Start(ctx context.Context) error {
	if d.GetStatus() != StatusStopped {
		return fmt.Errorf("daemon is not in stopped state: %s", d.GetStatus())
	}
	d.status.Store(StatusStarting)
	d.startTime = time.Now()

	slog.Info("Starting pagesmith daemon",
		logfields.Repository(d.cfg.Repository.Name),
		slog.Int("webhook_port", d.cfg.Daemon.HTTP.WebhookPort),
		slog.Int("admin_port", d.cfg.Daemon.HTTP.AdminPort))

	webhookLn, err := net.Listen("tcp", ":"+strconv.Itoa(d.cfg.Daemon.HTTP.WebhookPort))
	if err != nil {
		d.status.Store(StatusError)
		return fmt.Errorf("failed to bind webhook port: %w", err)
	}
	adminLn, err := net.Listen("tcp", ":"+strconv.Itoa(d.cfg.Daemon.HTTP.AdminPort))
	if err != nil {
		werr := webhookLn.Close()
		d.status.Store(StatusError)
		return errors.Join(fmt.Errorf("failed to bind admin port: %w", err), werr)
	}

	go d.serve("webhook", func() error { return d.webhook.Serve(webhookLn) })
	go d.serve("admin", func() error { return d.admin.Serve(adminLn) })

	d.queue.Start(ctx)

	if err := d.registerJobs(); err != nil {
		d.status.Store(StatusError)
		return err
	}
	d.scheduler.Start(ctx)

	if d.configWatcher != nil {
		if err := d.configWatcher.Start(ctx); err != nil {
			slog.Warn("Config watcher failed to start", logfields.Error(err))
		}
	}

	d.status.Store(StatusRunning)
	slog.Info("Daemon started")
	return nil
}

// serve runs one HTTP server until shutdown, reporting unexpected exits.
func (d *Daemon) serve(name string, run func() error) {
	if err := run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server exited", slog.String("server", name), logfields.Error(err))
		select {
		case d.serverErrs <- fmt.Errorf("%s server: %w", name, err):
		default:
		}
	}
}

// Errs surfaces fatal server errors to the process runner.
func (d *Daemon) Errs() <-chan error {
	return d.serverErrs
}

// registerJobs installs the scheduled-run and housekeeping jobs.
func (d *Daemon) registerJobs() error {
	if crontab := d.cfg.Daemon.Schedule; crontab != "" {
		if _, err := d.scheduler.ScheduleRuns(crontab, d.scheduledRun); err != nil {
			return err
		}
	}
	_, err := d.scheduler.ScheduleHousekeeping(housekeepingInterval, d.housekeeping)
	return err
}

// Stop shuts components down in reverse start order: stop taking work,
// drain in-flight work, then release storage.
func (d *Daemon) Stop(ctx context.Context) error {
	d.status.Store(StatusStopping)
	slog.Info("Stopping daemon")

	var errs []error

	if d.configWatcher != nil {
		d.configWatcher.Stop()
	}
	if err := d.webhook.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("webhook server: %w", err))
	}
	d.debouncer.Stop()
	if err := d.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := d.queue.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := d.admin.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("admin server: %w", err))
	}
	d.notifier.Close()
	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("history store: %w", err))
	}

	d.status.Store(StatusStopped)
	slog.Info("Daemon stopped")
	return errors.Join(errs...)
}

// HandlePush implements PushSink: evaluate the trigger rule and hand
// accepted events to the debouncer. A rejected event is a silent no-op.
func (d *Daemon) HandlePush(ev trigger.Event) bool {
	d.mu.RLock()
	evaluator := d.evaluator
	d.mu.RUnlock()

	accepted := evaluator.Evaluate(ev)
	d.recorder.IncTriggerDecision(accepted)

	if !accepted {
		slog.Debug("Push event rejected by trigger rule",
			logfields.Repository(ev.Repository),
			logfields.Branch(ev.Branch))
		return false
	}

	slog.Info("Push event accepted",
		logfields.Repository(ev.Repository),
		logfields.Branch(ev.Branch),
		logfields.Commit(ev.Commit),
		logfields.ForgeType(ev.Forge))
	d.debouncer.Request(ev)
	return true
}

// TriggerManual submits an operator-requested run for branch. Manual runs
// bypass the trigger allow-list; the operator asked for exactly this build.
func (d *Daemon) TriggerManual(branch string) error {
	cfg := d.snapshot()
	if branch == "" {
		branch = cfg.Repository.Branch
	}
	return d.queue.Enqueue(&RunRequest{
		Event: trigger.Event{
			Kind:       trigger.KindManual,
			Repository: cfg.Repository.Name,
			Branch:     branch,
			ReceivedAt: time.Now(),
		},
		EnqueuedAt: time.Now(),
	})
}

// scheduledRun enqueues a periodic full run of the configured branch. The
// remote head is probed first so an unchanged branch does not burn a run; a
// failed probe schedules the run anyway rather than silently skipping.
func (d *Daemon) scheduledRun() {
	cfg := d.snapshot()
	branch := cfg.Repository.Branch

	commit := ""
	head, err := d.remoteHead(cfg.Repository, branch)
	switch {
	case err != nil:
		slog.Warn("Remote head probe failed; scheduling run anyway",
			logfields.Branch(branch),
			logfields.Error(err))
	case head != "" && head == d.lastBuiltCommit(branch):
		slog.Info("Scheduled run skipped; branch unchanged",
			logfields.Branch(branch),
			logfields.Commit(head))
		return
	default:
		commit = head
	}

	err = d.queue.Enqueue(&RunRequest{
		Event: trigger.Event{
			Kind:       trigger.KindScheduled,
			Repository: cfg.Repository.Name,
			Branch:     branch,
			Commit:     commit,
			ReceivedAt: time.Now(),
		},
		EnqueuedAt: time.Now(),
	})
	if err != nil {
		slog.Warn("Scheduled run not enqueued", logfields.Error(err))
	}
}

// lastBuiltCommit returns the commit of the most recent recorded run for
// branch, or empty when none exists.
func (d *Daemon) lastBuiltCommit(branch string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summaries, err := d.store.RecentRuns(ctx, 50)
	if err != nil {
		slog.Warn("Failed to read run history", logfields.Error(err))
		return ""
	}
	for _, s := range summaries {
		if s.Branch == branch && s.Commit != "" {
			return s.Commit
		}
	}
	return ""
}

// enqueueRun is the debouncer's emit callback.
func (d *Daemon) enqueueRun(ev trigger.Event, coalesced int) {
	err := d.queue.Enqueue(&RunRequest{
		Event:      ev,
		Coalesced:  coalesced,
		EnqueuedAt: time.Now(),
	})
	if err != nil {
		slog.Warn("Run request dropped",
			logfields.Branch(ev.Branch),
			logfields.Error(err))
	}
}

// noteRunStarted records the in-flight run for the status endpoint.
func (d *Daemon) noteRunStarted(run *pipeline.Run) {
	d.mu.Lock()
	d.activeRunID = run.ID
	d.mu.Unlock()

	queuedCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.AppendEvent(queuedCtx, run.ID, "started", "run started"); err != nil {
		slog.Debug("Failed to append start event", logfields.RunID(run.ID), logfields.Error(err))
	}
}

// executeRun is the queue worker body: run the pipeline, record the result,
// notify. Failures are logged, never propagated — the queue must keep going.
func (d *Daemon) executeRun(ctx context.Context, req *RunRequest) {
	d.mu.Lock()
	runner := d.runner
	d.mu.Unlock()

	run, _ := runner.Execute(ctx, req.Event)

	d.mu.Lock()
	d.activeRunID = ""
	d.lastRun = summarize(run)
	d.mu.Unlock()

	// Recording uses a fresh context: a run aborted by shutdown still
	// deserves a history row.
	recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.store.RecordRun(recordCtx, run); err != nil {
		slog.Error("Failed to record run", logfields.RunID(run.ID), logfields.Error(err))
	} else {
		msg := "run " + string(run.Status)
		if req.Coalesced > 1 {
			msg += fmt.Sprintf(" (coalesced %d pushes)", req.Coalesced)
		}
		if err := d.store.AppendEvent(recordCtx, run.ID, string(run.Status), msg); err != nil {
			slog.Warn("Failed to append run event", logfields.RunID(run.ID), logfields.Error(err))
		}
	}

	if err := d.notifier.NotifyRun(recordCtx, run); err != nil {
		slog.Warn("Run notification failed", logfields.RunID(run.ID), logfields.Error(err))
	}
}

// housekeeping sweeps stale workspaces and prunes run history.
func (d *Daemon) housekeeping() {
	if !d.storage.KeepWorkspaces {
		if removed, err := workspace.SweepStale(d.storage.WorkspaceDir, staleWorkspaceAge); err != nil {
			slog.Warn("Workspace sweep failed", logfields.Error(err))
		} else if removed > 0 {
			slog.Info("Swept stale workspaces", slog.Int("removed", removed))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if pruned, err := d.store.Prune(ctx, historyKeepRuns); err != nil {
		slog.Warn("History prune failed", logfields.Error(err))
	} else if pruned > 0 {
		slog.Info("Pruned run history", slog.Int("pruned", pruned))
	}
}

// applyConfig is the config watcher callback. Only the pipeline definition
// swaps live; daemon-level changes (ports, queue size) need a restart. The
// current config is never mutated: a fresh copy is built and the pointer
// swapped, so an in-flight run keeps reading the config it started with.
func (d *Daemon) applyConfig(cfg *config.Config) {
	if cfg.Daemon == nil {
		slog.Warn("Reloaded config has no daemon block; keeping current configuration")
		return
	}

	d.mu.Lock()
	next := *d.cfg
	next.Repository = cfg.Repository
	next.Trigger = cfg.Trigger
	next.Environment = cfg.Environment
	next.Steps = cfg.Steps
	next.Output = cfg.Output
	next.Publish = cfg.Publish
	next.Retry = cfg.Retry
	next.Verify = cfg.Verify
	d.cfg = &next
	d.evaluator = trigger.NewEvaluator(next.Trigger)
	d.runner = pipeline.NewRunner(&next).
		WithRecorder(d.recorder).
		WithWorkspaceFactory(d.workspaceFactory).
		WithRunStarted(d.noteRunStarted)
	d.mu.Unlock()

	slog.Info("Configuration reloaded",
		logfields.Repository(cfg.Repository.Name),
		slog.Int("steps", len(cfg.Steps)))
}

// statusInfo snapshots the daemon for GET /status.
func (d *Daemon) statusInfo() api.StatusInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return api.StatusInfo{
		Repository:    d.cfg.Repository.Name,
		Branch:        d.cfg.Repository.Branch,
		QueueDepth:    d.queue.Depth(),
		QueueCapacity: d.queue.Capacity(),
		ActiveRunID:   d.activeRunID,
		LastRun:       d.lastRun,
		StartedAt:     d.startTime,
	}
}

// summarize projects a finished run into the status snapshot's shape.
func summarize(run *pipeline.Run) *history.RunSummary {
	if run == nil {
		return nil
	}
	return &history.RunSummary{
		ID:              run.ID,
		Repository:      run.Event.Repository,
		Branch:          run.Event.Branch,
		Commit:          run.Commit,
		Trigger:         string(run.Event.Kind),
		Status:          string(run.Status),
		FailedStepIndex: run.FailedStepIndex,
		Error:           run.Error,
		PublishedTo:     run.PublishedTo,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		DurationMS:      run.Duration().Milliseconds(),
	}
}
