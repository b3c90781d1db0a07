package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/daemon"
	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/logging"
	"git.home.luguber.info/inful/pagesmith/internal/pipeline"
	"git.home.luguber.info/inful/pagesmith/internal/trigger"
)

// stopGrace bounds how long daemon shutdown may take before the process
// gives up on a clean stop.
const stopGrace = 30 * time.Second

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"pagesmith.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct {
		Branch string `short:"b" help:"Branch to build (defaults to the repository branch)"`
		Commit string `help:"Commit SHA to pin the checkout to (optional)"`
		Force  bool   `help:"Skip trigger evaluation and run unconditionally"`
	} `cmd:"" help:"Execute one run: checkout, steps, verify, publish"`

	Daemon struct{} `cmd:"" help:"Start the daemon: webhooks, queue, scheduler, admin API"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Write an example configuration file"`

	Validate struct{} `cmd:"" help:"Load and validate the configuration, print the resolved pipeline"`
}

func main() {
	ctx := kong.Parse(&CLI)

	switch ctx.Command() {
	case "run":
		cfg := mustLoadConfig()
		runOnce(cfg)
	case "daemon":
		cfg := mustLoadConfig()
		runDaemon(cfg)
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote example configuration to %s\n", CLI.Config)
	case "validate":
		cfg := mustLoadConfig()
		printResolved(cfg)
	}
}

// mustLoadConfig loads the config file and installs the logging handler it
// asks for. Load failures print plainly: logging is not set up yet.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Initialize(string(cfg.Log.Format), string(cfg.Log.Level), CLI.Verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// runOnce executes a single run for a synthetic manual event.
func runOnce(cfg *config.Config) {
	branch := CLI.Run.Branch
	if branch == "" {
		branch = cfg.Repository.Branch
	}
	event := trigger.Event{
		Kind:       trigger.KindManual,
		Repository: cfg.Repository.Name,
		Branch:     branch,
		Commit:     CLI.Run.Commit,
		ReceivedAt: time.Now(),
	}

	if !CLI.Run.Force {
		if !trigger.NewEvaluator(cfg.Trigger).Evaluate(event) {
			slog.Info("Event does not match the trigger rule; nothing to do",
				logfields.Branch(branch))
			return
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter := apperrors.NewCLIErrorAdapter(CLI.Verbose, slog.Default())
	run, err := pipeline.NewRunner(cfg).Execute(ctx, event)
	if err != nil {
		adapter.HandleError(err)
		os.Exit(adapter.ExitCodeFor(err))
	}

	fmt.Printf("Published %s to %s (run %s)\n", cfg.Repository.Name, run.PublishedTo, run.ID)
}

// runDaemon runs the long-lived service until a signal or a fatal server
// error stops it.
func runDaemon(cfg *config.Config) {
	if cfg.Daemon == nil {
		fmt.Fprintln(os.Stderr, "Configuration has no daemon block; add one or use `pagesmith run`")
		os.Exit(1)
	}

	d, err := daemon.New(cfg, CLI.Config)
	if err != nil {
		slog.Error("Failed to create daemon", logfields.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		slog.Error("Failed to start daemon", logfields.Error(err))
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-d.Errs():
		slog.Error("Daemon component failed", logfields.Error(err))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		slog.Error("Daemon shutdown incomplete", logfields.Error(err))
		os.Exit(1)
	}
}

// printResolved reports the validated pipeline in a skimmable form.
func printResolved(cfg *config.Config) {
	fmt.Printf("Configuration OK: %s\n\n", CLI.Config)
	fmt.Printf("Repository: %s (%s)\n", cfg.Repository.Name, cfg.Repository.URL)
	fmt.Printf("Trigger:    branches %v", cfg.Trigger.Branches)
	if cfg.Trigger.Repository != "" {
		fmt.Printf(", repository %s", cfg.Trigger.Repository)
	}
	fmt.Println()

	if len(cfg.Steps) == 0 {
		fmt.Println("Steps:      (none; built-in markdown renderer)")
	} else {
		fmt.Println("Steps:")
		for i, s := range cfg.Steps {
			name := s.Name
			if name == "" {
				name = fmt.Sprintf("step-%d", i+1)
			}
			fmt.Printf("  %d. %s: %s\n", i+1, name, s.Command)
		}
	}

	fmt.Printf("Output:     %s\n", cfg.Output.Directory)
	switch cfg.Publish.Mode {
	case config.PublishModeBranch:
		fmt.Printf("Publish:    branch %s", cfg.Publish.Branch.Name)
		if cfg.Publish.Branch.ForceOrphan != nil && *cfg.Publish.Branch.ForceOrphan {
			fmt.Print(" (orphan replace)")
		}
		fmt.Println()
	case config.PublishModeBucket:
		fmt.Printf("Publish:    bucket %s/%s\n", cfg.Publish.Bucket.Endpoint, cfg.Publish.Bucket.Name)
	}
	if cfg.Daemon != nil {
		fmt.Printf("Daemon:     webhook :%d, admin :%d, workers %d\n",
			cfg.Daemon.HTTP.WebhookPort, cfg.Daemon.HTTP.AdminPort, cfg.Daemon.Queue.Workers)
	}
}
