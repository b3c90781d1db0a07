package publish

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
)

func TestScanSource(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"index.html": "hello",
		"a/b.txt":    "ab",
	})
	files, size, err := scanSource(dir)
	if err != nil {
		t.Fatalf("scanSource: %v", err)
	}
	if files != 2 {
		t.Errorf("files = %d, want 2", files)
	}
	if size != int64(len("hello")+len("ab")) {
		t.Errorf("size = %d", size)
	}
}

func TestScanSource_SkipsGitDir(t *testing.T) {
	dir := writeSite(t, map[string]string{"index.html": "x"})
	if err := os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o750); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".git", "config"), []byte("noise"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	files, _, err := scanSource(dir)
	if err != nil {
		t.Fatalf("scanSource: %v", err)
	}
	if files != 1 {
		t.Errorf("files = %d, want 1 (.git content must not count)", files)
	}
}

func TestScanSource_Preconditions(t *testing.T) {
	var perr *apperrors.PipelineError

	_, _, err := scanSource(filepath.Join(t.TempDir(), "nope"))
	if !errors.As(err, &perr) || perr.Category != apperrors.CategoryPublish {
		t.Errorf("missing dir: %v", err)
	}

	_, _, err = scanSource(t.TempDir())
	if !errors.As(err, &perr) || perr.Category != apperrors.CategoryPublish {
		t.Errorf("empty dir: %v", err)
	}
	if perr.Context["reason"] == nil {
		t.Error("precondition error lacks reason context")
	}
}

func TestLockTargetSerializes(t *testing.T) {
	const workers = 8
	inside := 0
	maxInside := 0
	var observe sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := lockTarget("branch:pages@remote")
			defer release()

			observe.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			observe.Unlock()

			observe.Lock()
			inside--
			observe.Unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
}

func TestLockTargetIndependentTargets(t *testing.T) {
	releaseA := lockTarget("bucket:a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := lockTarget("bucket:b")
		release()
		close(done)
	}()
	<-done // must not deadlock: different targets, different locks
}

func TestClassifyPublishError(t *testing.T) {
	target := "branch:pages@remote"

	netErr := classifyPublishError(target, errors.New("dial tcp: connection refused"))
	if !apperrors.IsRetryable(netErr) {
		t.Errorf("network failure not retryable: %v", netErr)
	}
	var perr *apperrors.PipelineError
	if !errors.As(netErr, &perr) || perr.Category != apperrors.CategoryPublish {
		t.Errorf("network failure category: %v", netErr)
	}

	authErr := classifyPublishError(target, errors.New("authentication required"))
	if apperrors.IsRetryable(authErr) {
		t.Errorf("credential rejection must not be retryable: %v", authErr)
	}

	if classifyPublishError(target, nil) != nil {
		t.Error("nil in, nil out")
	}
}

func TestFromConfig(t *testing.T) {
	base := &appcfg.Config{
		Repository: appcfg.RepositoryConfig{URL: "https://example.com/r.git", Name: "org/r"},
	}

	base.Publish = appcfg.PublishConfig{
		Mode:   appcfg.PublishModeBranch,
		Branch: &appcfg.BranchTarget{Name: "pages"},
	}
	pub, err := FromConfig(base)
	if err != nil {
		t.Fatalf("branch FromConfig: %v", err)
	}
	if _, ok := pub.(*BranchPublisher); !ok {
		t.Errorf("got %T, want *BranchPublisher", pub)
	}

	t.Setenv("PAGESMITH_TEST_ACCESS", "ak")
	t.Setenv("PAGESMITH_TEST_SECRET", "sk")
	base.Publish = appcfg.PublishConfig{
		Mode: appcfg.PublishModeBucket,
		Bucket: &appcfg.BucketTarget{
			Endpoint:     "localhost:9000",
			Name:         "sites",
			AccessKeyEnv: "PAGESMITH_TEST_ACCESS",
			SecretKeyEnv: "PAGESMITH_TEST_SECRET",
		},
	}
	pub, err = FromConfig(base)
	if err != nil {
		t.Fatalf("bucket FromConfig: %v", err)
	}
	if _, ok := pub.(*BucketPublisher); !ok {
		t.Errorf("got %T, want *BucketPublisher", pub)
	}

	base.Publish = appcfg.PublishConfig{Mode: "ftp"}
	if _, err := FromConfig(base); err == nil {
		t.Error("expected error for unsupported mode")
	}
}
