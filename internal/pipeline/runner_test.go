package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
	"git.home.luguber.info/inful/pagesmith/internal/publish"
	"git.home.luguber.info/inful/pagesmith/internal/trigger"
	"git.home.luguber.info/inful/pagesmith/internal/workspace"
)

// initSourceRepo creates a bare repository seeded with files on master and
// returns its path, usable directly as a clone URL.
func initSourceRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	tmp := t.TempDir()
	bare := filepath.Join(tmp, "remote.git")
	_, err := git.PlainInit(bare, true)
	require.NoError(t, err)

	seedPath := filepath.Join(tmp, "seed")
	seed, err := git.PlainInit(seedPath, false)
	require.NoError(t, err)
	_, err = seed.CreateRemote(&ggitcfg.RemoteConfig{Name: "origin", URLs: []string{bare}})
	require.NoError(t, err)

	for name, content := range files {
		p := filepath.Join(seedPath, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	wt, err := seed.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)
	_, err = wt.Commit("seed", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	require.NoError(t, seed.Push(&git.PushOptions{RemoteName: "origin"}))
	return bare
}

// stubPublisher records Publish calls and fails the first failTimes attempts
// with failWith.
type stubPublisher struct {
	target     string
	calls      int
	failTimes  int
	failWith   error
	lastSource string
}

func (s *stubPublisher) Target() string { return s.target }

func (s *stubPublisher) Publish(_ context.Context, sourceDir string) (publish.Result, error) {
	s.calls++
	s.lastSource = sourceDir
	if s.calls <= s.failTimes {
		return publish.Result{}, s.failWith
	}
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return publish.Result{}, err
	}
	return publish.Result{Target: s.target, Files: len(entries), PublishedAt: time.Now()}, nil
}

func testConfig(remote string) *appcfg.Config {
	return &appcfg.Config{
		Repository: appcfg.RepositoryConfig{URL: remote, Name: "example/project", Branch: "master"},
		Trigger:    appcfg.TriggerConfig{Branches: []string{"master"}, Repository: "example/project"},
		Output:     appcfg.OutputConfig{Directory: "public"},
	}
}

// newTestRunner wires a runner with a persistent workspace (so output
// survives the run for assertions) and the given publisher.
func newTestRunner(t *testing.T, cfg *appcfg.Config, pub publish.Publisher) *Runner {
	t.Helper()
	base := t.TempDir()
	return NewRunner(cfg).
		WithWorkspaceFactory(func() *workspace.Manager {
			return workspace.NewPersistentManager(base, "work")
		}).
		WithPublisherFactory(func() (publish.Publisher, error) { return pub, nil })
}

func pushEvent(branch string) trigger.Event {
	return trigger.Event{
		Kind:       trigger.KindPush,
		Repository: "example/project",
		Branch:     branch,
		ReceivedAt: time.Now(),
	}
}

func TestExecute_StepsAndPublish(t *testing.T) {
	remote := initSourceRepo(t, map[string]string{
		"README.md": "# Example\n",
	})
	cfg := testConfig(remote)
	cfg.Steps = []appcfg.StepConfig{
		{Name: "prepare", Command: "mkdir -p public"},
		{Name: "build", Command: "printf '<!DOCTYPE html><html><body><h1>built</h1></body></html>' > public/index.html"},
	}
	stub := &stubPublisher{target: "stub:test"}

	run, err := newTestRunner(t, cfg, stub).Execute(context.Background(), pushEvent("master"))
	require.NoError(t, err)

	assert.Equal(t, StatusPublished, run.Status)
	assert.True(t, run.Status.IsTerminal())
	assert.Equal(t, -1, run.FailedStepIndex)
	assert.Len(t, run.Commit, 40)
	require.Len(t, run.Steps, 2)
	assert.Equal(t, "prepare", run.Steps[0].Name)
	assert.Equal(t, 0, run.Steps[1].ExitCode)

	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "stub:test", run.PublishedTo)
	require.NotNil(t, run.Publish)
	assert.FileExists(t, filepath.Join(stub.lastSource, "index.html"))

	assert.Len(t, run.StageDurations, 5)
	assert.Contains(t, run.StageDurations, string(StagePublish))
	assert.Greater(t, run.Duration(), time.Duration(0))
}

func TestExecute_FailFastSkipsPublish(t *testing.T) {
	remote := initSourceRepo(t, map[string]string{"file.txt": "x\n"})
	cfg := testConfig(remote)
	cfg.Steps = []appcfg.StepConfig{
		{Name: "ok", Command: "printf first-ran"},
		{Name: "boom", Command: "exit 3"},
		{Name: "never", Command: "printf must-not-run"},
	}
	stub := &stubPublisher{target: "stub:test"}

	run, err := newTestRunner(t, cfg, stub).Execute(context.Background(), pushEvent("master"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryStep))

	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, 1, run.FailedStepIndex)
	require.Len(t, run.Steps, 2) // third step never ran
	assert.Equal(t, 0, run.Steps[0].ExitCode)
	assert.Equal(t, 3, run.Steps[1].ExitCode)
	assert.NotEmpty(t, run.Error)

	assert.Equal(t, 0, stub.calls)
	assert.Contains(t, run.StageDurations, string(StageSteps))
	assert.NotContains(t, run.StageDurations, string(StageVerify))
	assert.NotContains(t, run.StageDurations, string(StagePublish))
}

func TestExecute_RenderFallback(t *testing.T) {
	remote := initSourceRepo(t, map[string]string{
		"README.md": "# Demo Site\n\nPlain fallback output.\n",
	})
	cfg := testConfig(remote)
	cfg.Output.Directory = "site"
	stub := &stubPublisher{target: "stub:test"}

	run, err := newTestRunner(t, cfg, stub).Execute(context.Background(), pushEvent("master"))
	require.NoError(t, err)

	assert.Equal(t, StatusPublished, run.Status)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, "render", run.Steps[0].Name)
	assert.Equal(t, 0, run.Steps[0].ExitCode)
	assert.Equal(t, "pages=1 assets=0", run.Steps[0].Output)

	page, err := os.ReadFile(filepath.Join(stub.lastSource, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "Demo Site")
}

func TestExecute_PublishRetries(t *testing.T) {
	remote := initSourceRepo(t, map[string]string{
		"README.md": "# Retry\n",
	})
	cfg := testConfig(remote)
	cfg.Output.Directory = "site"
	retries := 3
	cfg.Retry = appcfg.RetryConfig{
		Backoff:      appcfg.RetryBackoffFixed,
		InitialDelay: "1ms",
		MaxDelay:     "5ms",
		MaxRetries:   &retries,
	}
	stub := &stubPublisher{
		target:    "stub:flaky",
		failTimes: 2,
		failWith:  apperrors.PublishUnreachable("stub:flaky", errors.New("connection refused")),
	}

	run, err := newTestRunner(t, cfg, stub).Execute(context.Background(), pushEvent("master"))
	require.NoError(t, err)

	assert.Equal(t, StatusPublished, run.Status)
	assert.Equal(t, 3, stub.calls)
	assert.Equal(t, "stub:flaky", run.PublishedTo)
}

func TestExecute_PublishPreconditionFailsRun(t *testing.T) {
	remote := initSourceRepo(t, map[string]string{
		"README.md": "# Precondition\n",
	})
	cfg := testConfig(remote)
	cfg.Output.Directory = "site"
	retries := 3
	cfg.Retry = appcfg.RetryConfig{
		Backoff:      appcfg.RetryBackoffFixed,
		InitialDelay: "1ms",
		MaxDelay:     "5ms",
		MaxRetries:   &retries,
	}
	stub := &stubPublisher{
		target:    "stub:test",
		failTimes: 3,
		failWith:  apperrors.PublishPrecondition("source directory is empty"),
	}

	run, err := newTestRunner(t, cfg, stub).Execute(context.Background(), pushEvent("master"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryPublish))

	// Not retryable: one attempt, then the run fails even though the build
	// half had already succeeded.
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Empty(t, run.PublishedTo)
	assert.Nil(t, run.Publish)
}

func TestExecute_StrictVerifyFails(t *testing.T) {
	remote := initSourceRepo(t, map[string]string{
		"README.md": "# Home\n\nSee [gone](missing.md).\n",
	})
	cfg := testConfig(remote)
	cfg.Output.Directory = "site"
	cfg.Verify = appcfg.VerifyConfig{Links: true, Strict: true}
	stub := &stubPublisher{target: "stub:test"}

	run, err := newTestRunner(t, cfg, stub).Execute(context.Background(), pushEvent("master"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, -1, run.FailedStepIndex) // the render step itself passed
	assert.Equal(t, 0, stub.calls)
	assert.NotContains(t, run.StageDurations, string(StagePublish))
}

func TestExecute_CancelledContext(t *testing.T) {
	remote := initSourceRepo(t, map[string]string{"README.md": "# X\n"})
	cfg := testConfig(remote)
	stub := &stubPublisher{target: "stub:test"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := newTestRunner(t, cfg, stub).Execute(ctx, pushEvent("master"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, 0, stub.calls)
	assert.Empty(t, run.StageDurations)
}

func TestNewRunDefaults(t *testing.T) {
	run := NewRun(pushEvent("master"))

	assert.Equal(t, StatusPending, run.Status)
	assert.Equal(t, -1, run.FailedStepIndex)
	assert.Len(t, run.ID, 36)
	assert.False(t, run.CreatedAt.IsZero())
	assert.NotNil(t, run.StageDurations)
	assert.Zero(t, run.Duration())
}

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusSucceeded, false},
		{StatusPublished, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsTerminal(), "status %s", tt.status)
	}
}
