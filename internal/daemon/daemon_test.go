package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/pipeline"
	"git.home.luguber.info/inful/pagesmith/internal/trigger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Repository: config.RepositoryConfig{
			URL:    "https://git.example.com/org/site.git",
			Name:   "org/site",
			Branch: "main",
		},
		Trigger: config.TriggerConfig{Branches: []string{"main"}},
		Output:  config.OutputConfig{Directory: "public"},
		Daemon: &config.DaemonConfig{
			HTTP: config.HTTPConfig{WebhookPort: 0, AdminPort: 0},
			Queue: config.QueueConfig{
				Size:    4,
				Workers: 1,
			},
			// No quiet window: pushes go straight to the queue, which the
			// tests never start, so enqueued work stays observable.
			Debounce: config.DebounceConfig{Quiet: "0s", MaxDelay: "0s"},
			Storage: config.StorageConfig{
				HistoryDB:    filepath.Join(dir, "runs.db"),
				WorkspaceDir: filepath.Join(dir, "workspaces"),
			},
		},
	}
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	d, err := New(testConfig(t), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.store.Close() })
	return d
}

func TestNewRequiresDaemonBlock(t *testing.T) {
	if _, err := New(nil, ""); err == nil {
		t.Error("expected error for nil config")
	}
	cfg := testConfig(t)
	cfg.Daemon = nil
	if _, err := New(cfg, ""); err == nil {
		t.Error("expected error for missing daemon block")
	}
}

func TestHandlePushAcceptsMatchingBranch(t *testing.T) {
	d := newTestDaemon(t)

	ev := trigger.Event{
		Kind:       trigger.KindPush,
		Repository: "org/site",
		Branch:     "main",
		Commit:     "abc123",
		ReceivedAt: time.Now(),
	}
	if !d.HandlePush(ev) {
		t.Fatal("matching push was not accepted")
	}
	if got := d.queue.Depth(); got != 1 {
		t.Errorf("queue depth = %d, want 1", got)
	}
}

func TestHandlePushRejectsOtherBranch(t *testing.T) {
	d := newTestDaemon(t)

	ev := trigger.Event{
		Kind:       trigger.KindPush,
		Repository: "org/site",
		Branch:     "feature/x",
		ReceivedAt: time.Now(),
	}
	if d.HandlePush(ev) {
		t.Fatal("non-matching push was accepted")
	}
	if got := d.queue.Depth(); got != 0 {
		t.Errorf("queue depth = %d, want 0", got)
	}
}

func TestTriggerManualDefaultsToRepositoryBranch(t *testing.T) {
	d := newTestDaemon(t)

	if err := d.TriggerManual(""); err != nil {
		t.Fatalf("TriggerManual: %v", err)
	}
	if got := d.queue.Depth(); got != 1 {
		t.Fatalf("queue depth = %d, want 1", got)
	}

	req := <-d.queue.requests
	if req.Event.Kind != trigger.KindManual {
		t.Errorf("kind = %q, want manual", req.Event.Kind)
	}
	if req.Event.Branch != "main" {
		t.Errorf("branch = %q, want main", req.Event.Branch)
	}
}

func TestTriggerManualBypassesAllowList(t *testing.T) {
	d := newTestDaemon(t)

	if err := d.TriggerManual("feature/x"); err != nil {
		t.Fatalf("TriggerManual: %v", err)
	}
	req := <-d.queue.requests
	if req.Event.Branch != "feature/x" {
		t.Errorf("branch = %q, want feature/x", req.Event.Branch)
	}
}

func TestStatusInfoSnapshot(t *testing.T) {
	d := newTestDaemon(t)

	info := d.statusInfo()
	if info.Repository != "org/site" {
		t.Errorf("repository = %q", info.Repository)
	}
	if info.Branch != "main" {
		t.Errorf("branch = %q", info.Branch)
	}
	if info.QueueCapacity != 4 {
		t.Errorf("queue capacity = %d, want 4", info.QueueCapacity)
	}
	if info.ActiveRunID != "" {
		t.Errorf("active run = %q, want empty", info.ActiveRunID)
	}
	if info.LastRun != nil {
		t.Error("last run set before any run")
	}
}

func TestApplyConfigSwapsTriggerRule(t *testing.T) {
	d := newTestDaemon(t)

	next := testConfig(t)
	next.Trigger.Branches = []string{"release/*"}
	d.applyConfig(next)

	if d.HandlePush(trigger.Event{Kind: trigger.KindPush, Branch: "main"}) {
		t.Error("old branch still accepted after reload")
	}
	if !d.HandlePush(trigger.Event{Kind: trigger.KindPush, Branch: "release/1.0"}) {
		t.Error("new branch pattern not accepted after reload")
	}
}

func TestApplyConfigSwapsSnapshotWithoutMutation(t *testing.T) {
	d := newTestDaemon(t)
	before := d.snapshot()

	next := testConfig(t)
	next.Steps = []config.StepConfig{{Name: "build", Command: "make site"}}
	next.Environment = map[string]string{"CI": "true"}
	d.applyConfig(next)

	// A run started before the reload keeps its config untouched.
	if len(before.Steps) != 0 || len(before.Environment) != 0 {
		t.Errorf("pre-reload config was mutated: steps=%d env=%d",
			len(before.Steps), len(before.Environment))
	}

	after := d.snapshot()
	if before == after {
		t.Fatal("reload did not install a fresh config snapshot")
	}
	if len(after.Steps) != 1 || after.Steps[0].Command != "make site" {
		t.Errorf("reloaded steps = %+v", after.Steps)
	}
}

func TestApplyConfigDuringActiveRun(t *testing.T) {
	// The runs fail fast at checkout (missing local remote); what matters
	// is that pipeline execution and reloads overlap cleanly under -race.
	cfg := testConfig(t)
	cfg.Repository.URL = filepath.Join(t.TempDir(), "missing.git")
	d, err := New(cfg, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.store.Close() })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 4 {
			d.executeRun(context.Background(), &RunRequest{
				Event: trigger.Event{
					Kind:       trigger.KindPush,
					Repository: "org/site",
					Branch:     "main",
					ReceivedAt: time.Now(),
				},
				EnqueuedAt: time.Now(),
			})
		}
	}()

	for i := range 20 {
		next := testConfig(t)
		next.Environment = map[string]string{"RELOAD": strconv.Itoa(i)}
		next.Steps = []config.StepConfig{{Name: "build", Command: "true"}}
		d.applyConfig(next)
	}
	<-done
}

func recordRun(t *testing.T, d *Daemon, id, branch, commit string) {
	t.Helper()
	err := d.store.RecordRun(context.Background(), &pipeline.Run{
		ID: id,
		Event: trigger.Event{
			Kind:       trigger.KindPush,
			Repository: "org/site",
			Branch:     branch,
		},
		Status:          pipeline.StatusPublished,
		Commit:          commit,
		FailedStepIndex: -1,
		StartedAt:       time.Now(),
		FinishedAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
}

func TestScheduledRunSkipsUnchangedBranch(t *testing.T) {
	d := newTestDaemon(t)
	recordRun(t, d, "run-1", "main", "abc123")
	d.remoteHead = func(config.RepositoryConfig, string) (string, error) {
		return "abc123", nil
	}

	d.scheduledRun()

	if got := d.queue.Depth(); got != 0 {
		t.Errorf("queue depth = %d, want 0 (branch unchanged)", got)
	}
}

func TestScheduledRunEnqueuesOnNewCommit(t *testing.T) {
	d := newTestDaemon(t)
	recordRun(t, d, "run-1", "main", "abc123")
	d.remoteHead = func(config.RepositoryConfig, string) (string, error) {
		return "def456", nil
	}

	d.scheduledRun()

	if got := d.queue.Depth(); got != 1 {
		t.Fatalf("queue depth = %d, want 1", got)
	}
	req := <-d.queue.requests
	if req.Event.Kind != trigger.KindScheduled {
		t.Errorf("kind = %q, want scheduled", req.Event.Kind)
	}
	if req.Event.Commit != "def456" {
		t.Errorf("commit = %q, want probed head def456", req.Event.Commit)
	}
}

func TestScheduledRunProceedsWhenProbeFails(t *testing.T) {
	d := newTestDaemon(t)
	recordRun(t, d, "run-1", "main", "abc123")
	d.remoteHead = func(config.RepositoryConfig, string) (string, error) {
		return "", errors.New("remote unreachable")
	}

	d.scheduledRun()

	if got := d.queue.Depth(); got != 1 {
		t.Fatalf("queue depth = %d, want 1 (probe failure must not skip)", got)
	}
	req := <-d.queue.requests
	if req.Event.Commit != "" {
		t.Errorf("commit = %q, want empty (head unknown)", req.Event.Commit)
	}
}

func TestGetStatusLifecycle(t *testing.T) {
	d := newTestDaemon(t)
	if got := d.GetStatus(); got != StatusStopped {
		t.Errorf("status = %q, want stopped", got)
	}
}
