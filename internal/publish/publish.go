package publish

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
)

// Publisher pushes a built site to one target.
type Publisher interface {
	// Target returns a stable identity string used for serialization,
	// logging and run records.
	Target() string
	// Publish replaces the target's content with sourceDir's content.
	Publish(ctx context.Context, sourceDir string) (Result, error)
}

// Result describes a completed publish.
type Result struct {
	Target      string        `json:"target"`
	Files       int           `json:"files"`
	Bytes       int64         `json:"bytes"`
	Commit      string        `json:"commit,omitempty"` // orphan commit hash (branch mode)
	Duration    time.Duration `json:"duration"`
	PublishedAt time.Time     `json:"published_at"`
}

// FromConfig builds the publisher selected by the publish block. Validation
// already guaranteed the matching target block is present.
func FromConfig(cfg *appcfg.Config) (Publisher, error) {
	switch cfg.Publish.Mode {
	case appcfg.PublishModeBranch:
		if cfg.Publish.Branch == nil {
			return nil, fmt.Errorf("publish.branch block missing")
		}
		return NewBranchPublisher(cfg.Repository, *cfg.Publish.Branch), nil
	case appcfg.PublishModeBucket:
		if cfg.Publish.Bucket == nil {
			return nil, fmt.Errorf("publish.bucket block missing")
		}
		return NewBucketPublisher(*cfg.Publish.Bucket)
	default:
		return nil, fmt.Errorf("unsupported publish mode: %s", cfg.Publish.Mode)
	}
}

// targetLocks serializes publishes per target identity. Two runs may build
// concurrently, but the final replacement of one target never interleaves.
var targetLocks = struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}{locks: make(map[string]*sync.Mutex)}

// lockTarget acquires the lock for a target and returns the release func.
func lockTarget(target string) func() {
	targetLocks.mu.Lock()
	l, ok := targetLocks.locks[target]
	if !ok {
		l = &sync.Mutex{}
		targetLocks.locks[target] = l
	}
	targetLocks.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// scanSource enforces the publish preconditions (source exists and is a
// non-empty directory) and measures the tree for the result record.
func scanSource(sourceDir string) (files int, size int64, err error) {
	walkErr := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}
		files++
		size += info.Size()
		return nil
	})
	if walkErr != nil {
		return 0, 0, apperrors.PublishPrecondition(fmt.Sprintf("source directory not readable: %v", walkErr))
	}
	if files == 0 {
		return 0, 0, apperrors.PublishPrecondition("source directory is empty: " + sourceDir)
	}
	return files, size, nil
}

// classifyPublishError maps transport failures to publish error semantics:
// network trouble is retryable, rejected credentials are not.
func classifyPublishError(target string, err error) error {
	if err == nil {
		return nil
	}
	l := strings.ToLower(err.Error())
	if strings.Contains(l, "authentication") || strings.Contains(l, "authorization") ||
		strings.Contains(l, "access denied") || strings.Contains(l, "invalid credentials") ||
		strings.Contains(l, "access key") || strings.Contains(l, "signature") {
		return apperrors.Wrap(err, apperrors.CategoryPublish, apperrors.SeverityFatal, "publish target rejected credentials").
			WithContext("target", target)
	}
	return apperrors.PublishUnreachable(target, err)
}
