package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
	appgit "git.home.luguber.info/inful/pagesmith/internal/git"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/metrics"
	"git.home.luguber.info/inful/pagesmith/internal/publish"
	"git.home.luguber.info/inful/pagesmith/internal/render"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
	"git.home.luguber.info/inful/pagesmith/internal/steps"
	"git.home.luguber.info/inful/pagesmith/internal/trigger"
	"git.home.luguber.info/inful/pagesmith/internal/verify"
	"git.home.luguber.info/inful/pagesmith/internal/workspace"
)

// renderStepName is the synthetic step recorded for step-less pipelines.
const renderStepName = "render"

// Runner executes runs for a single pipeline configuration. The factories
// exist so tests and the daemon can substitute workspaces, git clients and
// publish targets without changing the stage order.
type Runner struct {
	cfg              *appcfg.Config
	workspaceFactory func() *workspace.Manager
	gitClientFactory func(checkoutDir string) *appgit.Client
	publisherFactory func() (publish.Publisher, error)
	stepRunner       steps.CommandRunner
	recorder         metrics.Recorder
	policy           retry.Policy
	runStarted       func(*Run)
}

// NewRunner wires a runner with production defaults for cfg.
func NewRunner(cfg *appcfg.Config) *Runner {
	policy := retry.FromConfig(cfg.Retry)
	r := &Runner{
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
		policy:   policy,
	}
	r.workspaceFactory = func() *workspace.Manager {
		return workspace.NewManager("")
	}
	r.gitClientFactory = func(checkoutDir string) *appgit.Client {
		return appgit.NewClient(checkoutDir).WithRetryPolicy(policy)
	}
	r.publisherFactory = func() (publish.Publisher, error) {
		return publish.FromConfig(cfg)
	}
	return r
}

// WithWorkspaceFactory injects a custom workspace factory.
func (r *Runner) WithWorkspaceFactory(factory func() *workspace.Manager) *Runner {
	if factory != nil {
		r.workspaceFactory = factory
	}
	return r
}

// WithGitClientFactory injects a custom git client factory.
func (r *Runner) WithGitClientFactory(factory func(checkoutDir string) *appgit.Client) *Runner {
	if factory != nil {
		r.gitClientFactory = factory
	}
	return r
}

// WithPublisherFactory injects a custom publisher factory.
func (r *Runner) WithPublisherFactory(factory func() (publish.Publisher, error)) *Runner {
	if factory != nil {
		r.publisherFactory = factory
	}
	return r
}

// WithStepRunner swaps shell execution for the configured steps.
func (r *Runner) WithStepRunner(sr steps.CommandRunner) *Runner {
	r.stepRunner = sr
	return r
}

// WithRecorder attaches a metrics recorder.
func (r *Runner) WithRecorder(rec metrics.Recorder) *Runner {
	if rec != nil {
		r.recorder = rec
	}
	return r
}

// WithRunStarted registers a hook invoked once per run, right after the run
// enters the running state. The daemon uses it to expose the active run ID.
func (r *Runner) WithRunStarted(fn func(*Run)) *Runner {
	r.runStarted = fn
	return r
}

// runState is the mutable context shared by the stages of one run.
type runState struct {
	run       *Run
	workspace *workspace.Manager
	checkout  appgit.CheckoutResult
	outputDir string
}

// Execute runs the full pipeline for an accepted event and returns the
// terminal Run. The error mirrors Run.Error for callers that branch on
// failure.
func (r *Runner) Execute(ctx context.Context, event trigger.Event) (*Run, error) {
	run := NewRun(event)
	run.start()
	if r.runStarted != nil {
		r.runStarted(run)
	}
	rs := &runState{run: run}

	slog.Info("Run started",
		logfields.RunID(run.ID),
		logfields.Repository(r.cfg.Repository.Name),
		logfields.Branch(event.Branch),
		logfields.Trigger(string(event.Kind)))

	err := r.runStages(ctx, rs, []stageDef{
		{StageWorkspace, r.prepareWorkspace},
		{StageCheckout, r.checkoutSource},
		{StageSteps, r.executeSteps},
		{StageVerify, r.verifyOutput},
		{StagePublish, r.publishOutput},
	})

	if rs.workspace != nil {
		if cerr := rs.workspace.Cleanup(); cerr != nil {
			slog.Warn("Workspace cleanup failed",
				logfields.RunID(run.ID),
				logfields.Error(cerr))
		}
	}

	if err != nil {
		run.markFailed(err)
	} else {
		run.markPublished()
	}
	r.recorder.ObserveRunDuration(run.Duration())
	r.recorder.IncRunOutcome(string(run.Status))

	if err != nil {
		slog.Error("Run failed",
			logfields.RunID(run.ID),
			logfields.RunStatus(string(run.Status)),
			logfields.Error(err))
		return run, err
	}

	slog.Info("Run published",
		logfields.RunID(run.ID),
		logfields.Target(run.PublishedTo),
		logfields.DurationMS(float64(run.Duration().Milliseconds())))
	return run, nil
}

func (r *Runner) prepareWorkspace(_ context.Context, rs *runState) error {
	ws := r.workspaceFactory()
	if err := ws.Create(); err != nil {
		return apperrors.WorkspaceError("create", err)
	}
	rs.workspace = ws
	return nil
}

func (r *Runner) checkoutSource(ctx context.Context, rs *runState) error {
	client := r.gitClientFactory(rs.workspace.CheckoutDir())
	res, err := client.Checkout(ctx, r.cfg.Repository, rs.run.Event.Branch, rs.run.Event.Commit)
	if err != nil {
		return err
	}
	rs.checkout = res
	rs.run.Commit = res.Commit
	rs.outputDir = filepath.Join(res.Path, r.cfg.Output.Directory)
	return nil
}

func (r *Runner) executeSteps(ctx context.Context, rs *runState) error {
	if len(r.cfg.Steps) == 0 {
		return r.renderFallback(ctx, rs)
	}

	list, err := steps.FromConfig(r.cfg.Steps)
	if err != nil {
		return err
	}

	ex := steps.NewExecutor(rs.checkout.Path, r.cfg.Environment).WithRunner(r.stepRunner)
	res, err := ex.Run(ctx, list)
	rs.run.Steps = res.Steps
	rs.run.FailedStepIndex = res.FailedStepIndex
	for _, sr := range res.Steps {
		r.recorder.ObserveStepDuration(sr.Name, sr.Duration)
	}
	return err
}

// renderFallback is the step-less path: build the site from the checkout's
// markdown, recorded as one synthetic render step.
func (r *Runner) renderFallback(ctx context.Context, rs *runState) error {
	start := time.Now()
	builder := render.NewBuilder().WithSiteTitle(r.cfg.Repository.Name)
	res, err := builder.Build(ctx, rs.checkout.Path, rs.outputDir)

	sr := steps.StepResult{
		Name:      renderStepName,
		StartedAt: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		sr.ExitCode = -1
		sr.Output = err.Error()
		sr.Err = err
		rs.run.Steps = []steps.StepResult{sr}
		rs.run.FailedStepIndex = 0
		return err
	}

	sr.Output = fmt.Sprintf("pages=%d assets=%d", len(res.Pages), res.Assets)
	rs.run.Steps = []steps.StepResult{sr}
	r.recorder.ObserveStepDuration(sr.Name, sr.Duration)
	return nil
}

func (r *Runner) verifyOutput(_ context.Context, rs *runState) error {
	if _, err := verify.CheckOutput(rs.outputDir, r.cfg.Verify); err != nil {
		return err
	}
	rs.run.markSucceeded()
	return nil
}

func (r *Runner) publishOutput(ctx context.Context, rs *runState) error {
	pub, err := r.publisherFactory()
	if err != nil {
		return err
	}
	if bp, ok := pub.(*publish.BranchPublisher); ok && rs.run.Commit != "" {
		pub = bp.WithSourceRef(rs.run.Commit)
	}

	var res publish.Result
	err = retry.Do(ctx, r.policy, apperrors.IsRetryable, func() error {
		var perr error
		res, perr = pub.Publish(ctx, rs.outputDir)
		return perr
	})
	r.recorder.IncPublishResult(string(r.cfg.Publish.Mode), err == nil)
	if err != nil {
		return err
	}

	rs.run.Publish = &res
	rs.run.PublishedTo = res.Target
	return nil
}
