package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	appgit "git.home.luguber.info/inful/pagesmith/internal/git"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

const (
	defaultAuthorName  = "pagesmith"
	defaultAuthorEmail = "pagesmith@localhost"
)

// BranchPublisher publishes the output directory to a branch. In orphan mode
// (the default) every publish is a fresh parentless commit force-pushed over
// the branch, discarding prior history; with force_orphan disabled the
// branch keeps its history and gets a normal commit appended.
type BranchPublisher struct {
	repo      appcfg.RepositoryConfig
	target    appcfg.BranchTarget
	sourceRef string // commit that produced the content, for the message
}

// NewBranchPublisher builds a publisher for the configured branch target.
func NewBranchPublisher(repo appcfg.RepositoryConfig, target appcfg.BranchTarget) *BranchPublisher {
	return &BranchPublisher{repo: repo, target: target}
}

// WithSourceRef records the source commit for the publish commit message
// (fluent helper).
func (p *BranchPublisher) WithSourceRef(commit string) *BranchPublisher {
	p.sourceRef = commit
	return p
}

// Target identifies the branch on its remote.
func (p *BranchPublisher) Target() string {
	return "branch:" + p.target.Name + "@" + p.remoteURL()
}

func (p *BranchPublisher) remoteURL() string {
	if p.target.Remote != "" {
		return p.target.Remote
	}
	return p.repo.URL
}

func (p *BranchPublisher) orphan() bool {
	return p.target.ForceOrphan == nil || *p.target.ForceOrphan
}

// Publish replaces the branch content with sourceDir's content. The commit
// and push either land together or the old ref stays.
func (p *BranchPublisher) Publish(ctx context.Context, sourceDir string) (Result, error) {
	defer lockTarget(p.Target())()
	start := time.Now()

	files, size, err := scanSource(sourceDir)
	if err != nil {
		return Result{}, err
	}

	auth, err := p.auth()
	if err != nil {
		return Result{}, err
	}

	workDir, err := os.MkdirTemp("", "pagesmith-publish-")
	if err != nil {
		return Result{}, fmt.Errorf("creating publish staging dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	var commit plumbing.Hash
	if p.orphan() {
		commit, err = p.orphanCommit(ctx, workDir, sourceDir, auth)
	} else {
		commit, err = p.appendCommit(ctx, workDir, sourceDir, auth)
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Target:      p.Target(),
		Files:       files,
		Bytes:       size,
		Commit:      commit.String(),
		Duration:    time.Since(start),
		PublishedAt: time.Now(),
	}
	slog.Info("Published to branch",
		logfields.Target(p.target.Name),
		logfields.Commit(res.Commit[:8]),
		slog.Int("files", files),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, nil
}

// orphanCommit builds a parentless commit of sourceDir and force-pushes it
// over the target branch.
func (p *BranchPublisher) orphanCommit(ctx context.Context, workDir, sourceDir string, auth transport.AuthMethod) (plumbing.Hash, error) {
	repo, err := git.PlainInit(workDir, false)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("init staging repo: %w", err)
	}
	commit, err := p.stageAndCommit(repo, workDir, sourceDir)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	if _, err := repo.CreateRemote(&ggitcfg.RemoteConfig{Name: "origin", URLs: []string{p.remoteURL()}}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("adding publish remote: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("staging HEAD: %w", err)
	}
	refspec := ggitcfg.RefSpec(fmt.Sprintf("+%s:%s", head.Name(), plumbing.NewBranchReferenceName(p.target.Name)))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []ggitcfg.RefSpec{refspec},
		Auth:       auth,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return plumbing.ZeroHash, classifyPublishError(p.Target(), err)
	}
	return commit, nil
}

// appendCommit clones the target branch, replaces its content and appends a
// normal commit, preserving history. A branch that does not exist yet falls
// back to the orphan path.
func (p *BranchPublisher) appendCommit(ctx context.Context, workDir, sourceDir string, auth transport.AuthMethod) (plumbing.Hash, error) {
	repo, err := git.PlainCloneContext(ctx, workDir, false, &git.CloneOptions{
		URL:           p.remoteURL(),
		ReferenceName: plumbing.NewBranchReferenceName(p.target.Name),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil {
		if isMissingBranch(err) {
			slog.Debug("Publish branch does not exist yet, creating it", logfields.Target(p.target.Name))
			if rmErr := os.RemoveAll(workDir); rmErr != nil {
				return plumbing.ZeroHash, fmt.Errorf("resetting staging dir: %w", rmErr)
			}
			if mkErr := os.MkdirAll(workDir, 0o750); mkErr != nil {
				return plumbing.ZeroHash, fmt.Errorf("resetting staging dir: %w", mkErr)
			}
			return p.orphanCommit(ctx, workDir, sourceDir, auth)
		}
		return plumbing.ZeroHash, classifyPublishError(p.Target(), err)
	}

	// Clear everything but .git so deletions are staged too.
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("reading staging dir: %w", err)
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(workDir, e.Name())); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("clearing staging dir: %w", err)
		}
	}

	commit, err := p.stageAndCommit(repo, workDir, sourceDir)
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			// Identical content: the branch already holds this publish.
			head, herr := repo.Head()
			if herr != nil {
				return plumbing.ZeroHash, fmt.Errorf("staging HEAD: %w", herr)
			}
			slog.Info("Publish content unchanged, branch already up to date", logfields.Target(p.target.Name))
			return head.Hash(), nil
		}
		return plumbing.ZeroHash, err
	}

	err = repo.PushContext(ctx, &git.PushOptions{RemoteName: "origin", Auth: auth})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return plumbing.ZeroHash, classifyPublishError(p.Target(), err)
	}
	return commit, nil
}

// stageAndCommit copies sourceDir into the staging worktree and commits all
// of it.
func (p *BranchPublisher) stageAndCommit(repo *git.Repository, workDir, sourceDir string) (plumbing.Hash, error) {
	if err := copyTree(sourceDir, workDir); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("staging publish content: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("staging worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("staging content: %w", err)
	}
	commit, err := wt.Commit(p.commitMessage(), &git.CommitOptions{Author: p.signature()})
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return commit, nil
}

func (p *BranchPublisher) commitMessage() string {
	if p.sourceRef != "" {
		ref := p.sourceRef
		if len(ref) > 8 {
			ref = ref[:8]
		}
		return fmt.Sprintf("pagesmith: publish %s from %s", p.repo.Name, ref)
	}
	return fmt.Sprintf("pagesmith: publish %s", p.repo.Name)
}

func (p *BranchPublisher) signature() *object.Signature {
	name := p.target.AuthorName
	if name == "" {
		name = defaultAuthorName
	}
	email := p.target.AuthorEmail
	if email == "" {
		email = defaultAuthorEmail
	}
	return &object.Signature{Name: name, Email: email, When: time.Now()}
}

// auth prefers an explicit publish token over the repository's checkout auth.
func (p *BranchPublisher) auth() (transport.AuthMethod, error) {
	if p.target.TokenEnv != "" {
		tok := os.Getenv(p.target.TokenEnv)
		if tok == "" {
			return nil, fmt.Errorf("publish token env %s is not set", p.target.TokenEnv)
		}
		return appgit.TokenAuth(tok), nil
	}
	return appgit.AuthMethod(p.repo.Auth)
}

// isMissingBranch detects a clone that failed only because the target branch
// (or the whole remote history) does not exist yet.
func isMissingBranch(err error) bool {
	if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return true
	}
	l := strings.ToLower(err.Error())
	return strings.Contains(l, "reference not found") || strings.Contains(l, "couldn't find remote ref")
}

// copyTree copies the regular files of src into dst, preserving relative
// paths and file modes. Nested .git directories are skipped.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			if rel == "." {
				return nil
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o750)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, filepath.Join(dst, rel), info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
