package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// CheckoutResult describes a completed checkout.
type CheckoutResult struct {
	Path   string // repository root on disk
	Branch string // branch that was checked out
	Commit string // full HEAD commit hash
}

// Client checks the pipeline repository out into a fixed directory.
type Client struct {
	checkoutDir string
	policy      retry.Policy
	depth       int
}

// NewClient returns a client that checks out into dir. The zero retry policy
// means no retries.
func NewClient(dir string) *Client {
	return &Client{checkoutDir: dir}
}

// WithRetryPolicy attaches a retry policy for transient transport failures
// (fluent helper).
func (c *Client) WithRetryPolicy(p retry.Policy) *Client { c.policy = p; return c }

// WithDepth sets the shallow clone depth; 0 keeps full history.
func (c *Client) WithDepth(depth int) *Client { c.depth = depth; return c }

// Checkout makes the repository present at the requested branch and commit.
// A missing checkout is cloned; an existing one is fetched and hard-reset to
// the remote head. An empty branch falls back to the configured repository
// branch; an empty commit builds the branch head.
func (c *Client) Checkout(ctx context.Context, repo appcfg.RepositoryConfig, branch, commit string) (CheckoutResult, error) {
	if branch == "" {
		branch = repo.Branch
	}
	return c.withRetry(ctx, "checkout", repo.Name, func() (CheckoutResult, error) {
		return c.checkoutOnce(ctx, repo, branch, commit)
	})
}

func (c *Client) checkoutOnce(ctx context.Context, repo appcfg.RepositoryConfig, branch, commit string) (CheckoutResult, error) {
	if _, err := os.Stat(filepath.Join(c.checkoutDir, ".git")); err == nil {
		return c.updateOnce(ctx, repo, branch, commit)
	}
	return c.cloneOnce(ctx, repo, branch, commit)
}

func (c *Client) cloneOnce(ctx context.Context, repo appcfg.RepositoryConfig, branch, commit string) (CheckoutResult, error) {
	slog.Debug("Cloning repository",
		logfields.URL(repo.URL),
		logfields.Repository(repo.Name),
		logfields.Branch(branch),
		logfields.Path(c.checkoutDir))

	if err := os.RemoveAll(c.checkoutDir); err != nil {
		return CheckoutResult{}, fmt.Errorf("removing stale checkout: %w", err)
	}

	opts := &git.CloneOptions{URL: repo.URL}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}
	if c.depth > 0 {
		opts.Depth = c.depth
	}
	auth, err := AuthMethod(repo.Auth)
	if err != nil {
		return CheckoutResult{}, classifyTransportError("clone", repo.Name, err)
	}
	opts.Auth = auth

	repository, err := git.PlainCloneContext(ctx, c.checkoutDir, false, opts)
	if err != nil {
		return CheckoutResult{}, classifyTransportError("clone", repo.Name, err)
	}
	return c.finishCheckout(repository, repo, branch, commit)
}

func (c *Client) updateOnce(ctx context.Context, repo appcfg.RepositoryConfig, branch, commit string) (CheckoutResult, error) {
	repository, err := git.PlainOpen(c.checkoutDir)
	if err != nil {
		slog.Warn("Checkout unusable, recloning", logfields.Path(c.checkoutDir), logfields.Error(err))
		return c.cloneOnce(ctx, repo, branch, commit)
	}
	slog.Debug("Updating checkout", logfields.Repository(repo.Name), logfields.Path(c.checkoutDir))

	if err := c.fetchOrigin(ctx, repository, repo); err != nil {
		return CheckoutResult{}, err
	}

	wt, err := repository.Worktree()
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("worktree: %w", err)
	}

	remoteRef, err := repository.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("remote ref for %s: %w", branch, err)
	}

	localBranchRef := plumbing.NewBranchReferenceName(branch)
	if _, lerr := repository.Reference(localBranchRef, true); lerr != nil {
		if err := wt.Checkout(&git.CheckoutOptions{Branch: localBranchRef, Create: true, Force: true}); err != nil {
			return CheckoutResult{}, fmt.Errorf("checkout new branch: %w", err)
		}
	} else if err := wt.Checkout(&git.CheckoutOptions{Branch: localBranchRef, Force: true}); err != nil {
		return CheckoutResult{}, fmt.Errorf("checkout branch: %w", err)
	}

	// The checkout holds no local work, so mirror the remote exactly.
	// This also absorbs force pushes without manual intervention.
	head, _ := repository.Head()
	if head == nil || head.Hash() != remoteRef.Hash() {
		if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
			return CheckoutResult{}, fmt.Errorf("reset to remote head: %w", err)
		}
		slog.Info("Checkout updated",
			logfields.Repository(repo.Name),
			logfields.Branch(branch),
			logfields.Commit(shortHash(remoteRef.Hash().String())))
	} else {
		slog.Debug("Checkout already up to date",
			logfields.Repository(repo.Name),
			logfields.Branch(branch))
	}

	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		slog.Warn("Cleaning untracked files failed", logfields.Error(err))
	}

	return c.finishCheckout(repository, repo, branch, commit)
}

// fetchOrigin fetches all branch heads from origin, forcing ref updates so
// rewritten remote branches are picked up.
func (c *Client) fetchOrigin(ctx context.Context, repository *git.Repository, repo appcfg.RepositoryConfig) error {
	opts := &git.FetchOptions{
		RemoteName: "origin",
		Tags:       git.NoTags,
		RefSpecs:   []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Force:      true,
	}
	if c.depth > 0 {
		opts.Depth = c.depth
	}
	auth, err := AuthMethod(repo.Auth)
	if err != nil {
		return classifyTransportError("fetch", repo.Name, err)
	}
	opts.Auth = auth

	if err := repository.FetchContext(ctx, opts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return classifyTransportError("fetch", repo.Name, err)
	}
	return nil
}

// finishCheckout pins the worktree to the requested commit when it is still
// reachable and reports the final state.
func (c *Client) finishCheckout(repository *git.Repository, repo appcfg.RepositoryConfig, branch, commit string) (CheckoutResult, error) {
	head, err := repository.Head()
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("resolving HEAD: %w", err)
	}
	res := CheckoutResult{Path: c.checkoutDir, Branch: branch, Commit: head.Hash().String()}

	if commit != "" && commit != res.Commit {
		hash := plumbing.NewHash(commit)
		if _, cerr := repository.CommitObject(hash); cerr != nil {
			// The branch moved on (force push or coalesced pushes). Build
			// the head we have rather than failing the run.
			slog.Warn("Requested commit not available, building branch head",
				logfields.Repository(repo.Name),
				logfields.Commit(shortHash(commit)),
				logfields.Branch(branch))
			return res, nil
		}
		wt, err := repository.Worktree()
		if err != nil {
			return CheckoutResult{}, fmt.Errorf("worktree: %w", err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
			return CheckoutResult{}, fmt.Errorf("checkout commit %s: %w", shortHash(commit), err)
		}
		res.Commit = commit
	}

	slog.Info("Repository checked out",
		logfields.Repository(repo.Name),
		logfields.Branch(branch),
		logfields.Commit(shortHash(res.Commit)),
		logfields.Path(c.checkoutDir))
	return res, nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
