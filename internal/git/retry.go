package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// withRetry retries transient checkout failures per the client's policy.
// Permanent failures (auth, missing repository, bad references) return
// immediately. Context cancellation aborts the backoff wait.
func (c *Client) withRetry(ctx context.Context, op, repoName string, fn func() (CheckoutResult, error)) (CheckoutResult, error) {
	if c.policy.MaxRetries <= 0 {
		return fn()
	}

	var lastErr error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("Retrying git operation",
				slog.String("operation", op),
				logfields.Repository(repoName),
				slog.Int("attempt", attempt))
		}
		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if isPermanentGitError(err) {
			slog.Error("Permanent git error",
				slog.String("operation", op),
				logfields.Repository(repoName),
				logfields.Error(err))
			return CheckoutResult{}, err
		}
		if attempt == c.policy.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return CheckoutResult{}, ctx.Err()
		case <-time.After(c.policy.Delay(attempt + 1)):
		}
	}
	return CheckoutResult{}, fmt.Errorf("git %s failed after retries: %w", op, lastErr)
}

// isPermanentGitError reports whether retrying could possibly help. Classified
// pipeline errors carry the answer; raw errors fall back to string heuristics.
func isPermanentGitError(err error) bool {
	if err == nil {
		return false
	}
	var perr *apperrors.PipelineError
	if errors.As(err, &perr) {
		return !perr.Retryable
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "auth") || strings.Contains(msg, "permission") || strings.Contains(msg, "denied") {
		return true
	}
	if strings.Contains(msg, "not found") || strings.Contains(msg, "no such remote") ||
		strings.Contains(msg, "invalid reference") || strings.Contains(msg, "reference not found") {
		return true
	}
	if strings.Contains(msg, "unsupported protocol") {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return !nerr.Timeout()
	}
	return false
}
