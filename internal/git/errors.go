package git

import (
	"fmt"
	"strings"

	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
)

// classifyTransportError maps go-git transport failures onto pipeline error
// categories so the retry loop and the run record agree on semantics. Errors
// it cannot place stay unclassified and fall through to the retry loop's
// string heuristics.
func classifyTransportError(op, repoName string, err error) error {
	if err == nil {
		return nil
	}

	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "authorization") ||
		strings.Contains(l, "invalid credentials") || strings.Contains(l, "invalid username or password"):
		return apperrors.GitAuthError(repoName, err).WithContext("op", op)

	case strings.Contains(l, "repository not found") || strings.Contains(l, "repository does not exist"):
		return apperrors.GitCloneError(repoName, err).
			WithContext("op", op).
			WithContext("reason", "not_found")

	case strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"):
		return apperrors.GitNetworkError(repoName, err).
			WithContext("op", op).
			WithContext("reason", "rate_limit")

	case strings.Contains(l, "timeout") || strings.Contains(l, "connection refused") ||
		strings.Contains(l, "connection reset") || strings.Contains(l, "no route to host") ||
		strings.Contains(l, "unexpected eof") || strings.Contains(l, "remote hung up"):
		return apperrors.GitNetworkError(repoName, err).WithContext("op", op)

	default:
		return fmt.Errorf("git %s for %s: %w", op, repoName, err)
	}
}
