package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	validator := newConfigurationValidator(cfg)
	return validator.validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

// newConfigurationValidator creates a comprehensive configuration validator.
func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

// validate performs configuration validation in order of dependencies.
func (cv *configurationValidator) validate() error {
	if err := cv.validateRepository(); err != nil {
		return err
	}
	if err := cv.validateTrigger(); err != nil {
		return err
	}
	if err := cv.validateSteps(); err != nil {
		return err
	}
	if err := cv.validateOutput(); err != nil {
		return err
	}
	if err := cv.validatePublish(); err != nil {
		return err
	}
	if err := cv.validateRetry(); err != nil {
		return err
	}
	if cv.config.Daemon != nil {
		if err := cv.validateDaemon(); err != nil {
			return err
		}
	}
	return nil
}

// validateRepository validates the repository block.
func (cv *configurationValidator) validateRepository() error {
	repo := cv.config.Repository
	if repo.URL == "" {
		return errors.New("repository.url is required")
	}
	if repo.Name == "" {
		return errors.New("repository.name is required")
	}
	if repo.Auth != nil {
		switch repo.Auth.Type {
		case AuthTypeToken, AuthTypeSSH, AuthTypeBasic, AuthTypeNone, "":
			// Valid auth type
		default:
			return fmt.Errorf("repository %s: unsupported auth type: %s", repo.Name, repo.Auth.Type)
		}
		if repo.Auth.Type == AuthTypeBasic {
			if repo.Auth.Username == "" || repo.Auth.Password == "" {
				return fmt.Errorf("repository %s: basic auth requires username and password", repo.Name)
			}
		}
	}
	return nil
}

// validateTrigger validates the trigger block.
func (cv *configurationValidator) validateTrigger() error {
	for _, b := range cv.config.Trigger.Branches {
		if strings.TrimSpace(b) == "" {
			return errors.New("trigger.branches must not contain empty entries")
		}
	}
	return nil
}

// validateSteps validates the ordered step list.
func (cv *configurationValidator) validateSteps() error {
	for i, step := range cv.config.Steps {
		if strings.TrimSpace(step.Command) == "" {
			return fmt.Errorf("steps[%d]: command is required", i)
		}
		if step.Timeout != "" {
			if _, err := time.ParseDuration(step.Timeout); err != nil {
				return fmt.Errorf("steps[%d]: invalid timeout: %s: %w", i, step.Timeout, err)
			}
		}
	}
	return nil
}

// validateOutput ensures the output directory stays inside the checkout.
func (cv *configurationValidator) validateOutput() error {
	dir := cv.config.Output.Directory
	if dir == "" {
		return errors.New("output.directory is required")
	}
	if filepath.IsAbs(dir) {
		return fmt.Errorf("output.directory must be relative to the checkout: %s", dir)
	}
	clean := filepath.Clean(dir)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output.directory escapes the checkout: %s", dir)
	}
	return nil
}

// validatePublish validates the publish target.
func (cv *configurationValidator) validatePublish() error {
	pub := cv.config.Publish
	switch pub.Mode {
	case PublishModeBranch:
		return cv.validateBranchTarget()
	case PublishModeBucket:
		return cv.validateBucketTarget()
	default:
		return fmt.Errorf("invalid publish.mode: %s (allowed: branch|bucket)", pub.Mode)
	}
}

func (cv *configurationValidator) validateBranchTarget() error {
	b := cv.config.Publish.Branch
	if b == nil {
		return errors.New("publish.branch block is required for branch mode")
	}
	if b.Name == "" {
		return errors.New("publish.branch.name is required")
	}
	if b.Remote == "" {
		return errors.New("publish.branch.remote is required")
	}
	// A publish branch that is also a trigger branch would re-trigger its own
	// publishes forever.
	for _, t := range cv.config.Trigger.Branches {
		if t == b.Name {
			return fmt.Errorf("publish.branch.name %q must not appear in trigger.branches", b.Name)
		}
	}
	return nil
}

func (cv *configurationValidator) validateBucketTarget() error {
	b := cv.config.Publish.Bucket
	if b == nil {
		return errors.New("publish.bucket block is required for bucket mode")
	}
	if b.Endpoint == "" {
		return errors.New("publish.bucket.endpoint is required")
	}
	if strings.Contains(b.Endpoint, "://") {
		return fmt.Errorf("publish.bucket.endpoint must not include a scheme: %s", b.Endpoint)
	}
	if b.Name == "" {
		return errors.New("publish.bucket.name is required")
	}
	return nil
}

// validateRetry validates retry delay durations and their relationship.
func (cv *configurationValidator) validateRetry() error {
	switch cv.config.Retry.Backoff {
	case RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential:
		// Valid backoff strategies
	default:
		return fmt.Errorf("invalid retry.backoff: %s (allowed: fixed|linear|exponential)", cv.config.Retry.Backoff)
	}

	initDur, err := time.ParseDuration(cv.config.Retry.InitialDelay)
	if err != nil {
		return fmt.Errorf("invalid retry.initial_delay: %s: %w", cv.config.Retry.InitialDelay, err)
	}
	maxDur, err := time.ParseDuration(cv.config.Retry.MaxDelay)
	if err != nil {
		return fmt.Errorf("invalid retry.max_delay: %s: %w", cv.config.Retry.MaxDelay, err)
	}
	if maxDur < initDur {
		return fmt.Errorf("retry.max_delay (%s) must be >= retry.initial_delay (%s)",
			cv.config.Retry.MaxDelay, cv.config.Retry.InitialDelay)
	}
	if cv.config.Retry.MaxRetries != nil && *cv.config.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative: %d", *cv.config.Retry.MaxRetries)
	}
	return nil
}

// validateDaemon validates daemon configuration.
func (cv *configurationValidator) validateDaemon() error {
	d := cv.config.Daemon
	if d.HTTP.WebhookPort == d.HTTP.AdminPort {
		return fmt.Errorf("daemon ports must be distinct: webhook=%d admin=%d", d.HTTP.WebhookPort, d.HTTP.AdminPort)
	}
	for _, port := range []int{d.HTTP.WebhookPort, d.HTTP.AdminPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid daemon port: %d", port)
		}
	}
	if _, err := time.ParseDuration(d.Debounce.Quiet); err != nil {
		return fmt.Errorf("invalid daemon.debounce.quiet: %s: %w", d.Debounce.Quiet, err)
	}
	if _, err := time.ParseDuration(d.Debounce.MaxDelay); err != nil {
		return fmt.Errorf("invalid daemon.debounce.max_delay: %s: %w", d.Debounce.MaxDelay, err)
	}
	if d.Schedule != "" {
		fields := len(strings.Fields(d.Schedule))
		if fields != 5 && fields != 6 {
			return fmt.Errorf("invalid daemon.schedule: %q (expected 5 or 6 cron fields)", d.Schedule)
		}
	}
	return nil
}
