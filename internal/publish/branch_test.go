package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func initBareRemote(t *testing.T) string {
	t.Helper()
	bare := filepath.Join(t.TempDir(), "pages-remote.git")
	if _, err := git.PlainInit(bare, true); err != nil {
		t.Fatalf("init bare: %v", err)
	}
	return bare
}

// cloneBranch checks the published branch out of the bare remote for
// inspection.
func cloneBranch(t *testing.T, bare, branch string) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainClone(dir, false, &git.CloneOptions{
		URL:           bare,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	})
	if err != nil {
		t.Fatalf("clone %s: %v", branch, err)
	}
	return dir, repo
}

func countCommits(t *testing.T, repo *git.Repository) int {
	t.Helper()
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	n := 0
	if err := iter.ForEach(func(*object.Commit) error { n++; return nil }); err != nil {
		t.Fatalf("iterate log: %v", err)
	}
	return n
}

func branchPublisher(bare string, forceOrphan bool) *BranchPublisher {
	return NewBranchPublisher(
		appcfg.RepositoryConfig{URL: bare, Name: "org/project"},
		appcfg.BranchTarget{Name: "pages", ForceOrphan: &forceOrphan},
	)
}

func TestBranchPublisher_OrphanPublish(t *testing.T) {
	bare := initBareRemote(t)
	source := writeSite(t, map[string]string{
		"index.html":     "<h1>v1</h1>",
		"sub/page.html":  "<p>sub</p>",
		"assets/app.css": "body{}",
	})

	res, err := branchPublisher(bare, true).WithSourceRef("abcdef0123456789").Publish(context.Background(), source)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.Files != 3 {
		t.Errorf("Files = %d, want 3", res.Files)
	}
	if res.Commit == "" {
		t.Error("result missing publish commit")
	}

	dir, repo := cloneBranch(t, bare, "pages")
	for name, want := range map[string]string{
		"index.html":     "<h1>v1</h1>",
		"sub/page.html":  "<p>sub</p>",
		"assets/app.css": "body{}",
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("published file %s missing: %v", name, err)
			continue
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", name, data, want)
		}
	}

	// Orphan publishes have no history behind them.
	head, _ := repo.Head()
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatalf("commit object: %v", err)
	}
	if commit.NumParents() != 0 {
		t.Errorf("orphan commit has %d parents, want 0", commit.NumParents())
	}
}

func TestBranchPublisher_OrphanReplacesEverything(t *testing.T) {
	bare := initBareRemote(t)
	p := branchPublisher(bare, true)

	v1 := writeSite(t, map[string]string{"index.html": "v1", "old.html": "goes away"})
	if _, err := p.Publish(context.Background(), v1); err != nil {
		t.Fatalf("first Publish: %v", err)
	}

	v2 := writeSite(t, map[string]string{"index.html": "v2"})
	if _, err := p.Publish(context.Background(), v2); err != nil {
		t.Fatalf("second Publish: %v", err)
	}

	dir, repo := cloneBranch(t, bare, "pages")
	data, err := os.ReadFile(filepath.Join(dir, "index.html"))
	if err != nil || string(data) != "v2" {
		t.Errorf("index.html = %q err=%v, want v2", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "old.html")); !os.IsNotExist(err) {
		t.Error("file from the previous publish survived orphan replacement")
	}
	if n := countCommits(t, repo); n != 1 {
		t.Errorf("history depth = %d, want 1 (old history discarded)", n)
	}
}

func TestBranchPublisher_IdempotentContent(t *testing.T) {
	bare := initBareRemote(t)
	p := branchPublisher(bare, true)
	source := writeSite(t, map[string]string{"index.html": "stable", "a/b.html": "same"})

	if _, err := p.Publish(context.Background(), source); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	_, firstRepo := cloneBranch(t, bare, "pages")
	firstHead, _ := firstRepo.Head()
	firstCommit, err := firstRepo.CommitObject(firstHead.Hash())
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}

	if _, err := p.Publish(context.Background(), source); err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	_, secondRepo := cloneBranch(t, bare, "pages")
	secondHead, _ := secondRepo.Head()
	secondCommit, err := secondRepo.CommitObject(secondHead.Hash())
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}

	// Same content => same published tree, regardless of commit identity.
	if firstCommit.TreeHash != secondCommit.TreeHash {
		t.Errorf("tree changed across identical publishes: %s != %s", firstCommit.TreeHash, secondCommit.TreeHash)
	}
}

func TestBranchPublisher_KeepHistory(t *testing.T) {
	bare := initBareRemote(t)
	p := branchPublisher(bare, false)

	v1 := writeSite(t, map[string]string{"index.html": "v1", "old.html": "x"})
	if _, err := p.Publish(context.Background(), v1); err != nil {
		t.Fatalf("first Publish (orphan fallback): %v", err)
	}

	v2 := writeSite(t, map[string]string{"index.html": "v2"})
	if _, err := p.Publish(context.Background(), v2); err != nil {
		t.Fatalf("second Publish: %v", err)
	}

	dir, repo := cloneBranch(t, bare, "pages")
	data, err := os.ReadFile(filepath.Join(dir, "index.html"))
	if err != nil || string(data) != "v2" {
		t.Errorf("index.html = %q err=%v, want v2", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "old.html")); !os.IsNotExist(err) {
		t.Error("removed file survived a keep-history publish")
	}
	if n := countCommits(t, repo); n != 2 {
		t.Errorf("history depth = %d, want 2", n)
	}
}

func TestBranchPublisher_KeepHistoryUnchangedContent(t *testing.T) {
	bare := initBareRemote(t)
	p := branchPublisher(bare, false)
	source := writeSite(t, map[string]string{"index.html": "same"})

	first, err := p.Publish(context.Background(), source)
	if err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	second, err := p.Publish(context.Background(), source)
	if err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if first.Commit != second.Commit {
		t.Errorf("unchanged content produced a new commit: %s -> %s", first.Commit, second.Commit)
	}
	_, repo := cloneBranch(t, bare, "pages")
	if n := countCommits(t, repo); n != 1 {
		t.Errorf("history depth = %d, want 1", n)
	}
}

func TestBranchPublisher_SourcePreconditions(t *testing.T) {
	bare := initBareRemote(t)
	p := branchPublisher(bare, true)

	_, err := p.Publish(context.Background(), filepath.Join(t.TempDir(), "missing"))
	var perr *apperrors.PipelineError
	if !errors.As(err, &perr) || perr.Category != apperrors.CategoryPublish {
		t.Errorf("missing source: got %v, want publish precondition", err)
	}

	empty := t.TempDir()
	_, err = p.Publish(context.Background(), empty)
	if !errors.As(err, &perr) || perr.Category != apperrors.CategoryPublish {
		t.Errorf("empty source: got %v, want publish precondition", err)
	}
}
