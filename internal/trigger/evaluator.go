package trigger

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/pagesmith/internal/config"
)

// Evaluator gates push events against the configured trigger rule. It holds
// no mutable state; evaluation has no side effects.
type Evaluator struct {
	branches   []string
	repository string
}

// NewEvaluator builds an evaluator from the trigger config block.
func NewEvaluator(cfg config.TriggerConfig) *Evaluator {
	return &Evaluator{
		branches:   cfg.Branches,
		repository: cfg.Repository,
	}
}

// Evaluate reports whether the event should start a run. Both conditions
// must hold: the branch matches the allow-list and the repository matches
// the identity filter. A false result is a silent no-op, never an error.
func (e *Evaluator) Evaluate(ev Event) bool {
	return e.matchesBranch(ev.Branch) && e.matchesRepository(ev.Repository)
}

// matchesBranch checks the branch against the allow-list. Entries may be
// exact names or glob patterns ("release/*", "v*"). An empty allow-list
// matches nothing.
func (e *Evaluator) matchesBranch(branch string) bool {
	if branch == "" {
		return false
	}
	for _, pattern := range e.branches {
		if pattern == branch {
			return true
		}
		if ok, err := doublestar.Match(pattern, branch); err == nil && ok {
			return true
		}
	}
	return false
}

// matchesRepository checks the event's repository identity against the
// filter. An empty filter accepts any repository.
func (e *Evaluator) matchesRepository(repository string) bool {
	if e.repository == "" {
		return true
	}
	return e.repository == repository
}

// NormalizeBranchRef strips a leading refs/heads/ prefix so webhook ref
// payloads and plain branch names compare equal.
func NormalizeBranchRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
