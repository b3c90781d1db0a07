package publish

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"time"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketPublisher mirrors the output directory into an S3-compatible bucket:
// every source file is uploaded and objects under the prefix with no source
// counterpart are removed, so the bucket converges on exactly the published
// tree.
type BucketPublisher struct {
	client *minio.Client
	target appcfg.BucketTarget
}

// NewBucketPublisher builds a minio-backed publisher. Credentials come from
// the configured environment variable names, resolved here.
func NewBucketPublisher(target appcfg.BucketTarget) (*BucketPublisher, error) {
	accessKey, err := resolveEnv(target.AccessKeyEnv)
	if err != nil {
		return nil, err
	}
	secretKey, err := resolveEnv(target.SecretKeyEnv)
	if err != nil {
		return nil, err
	}
	useSSL := target.UseSSL == nil || *target.UseSSL

	client, err := minio.New(target.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: target.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating bucket client for %s: %w", target.Endpoint, err)
	}
	return &BucketPublisher{client: client, target: target}, nil
}

func resolveEnv(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("bucket credential env %s is not set", name)
	}
	return v, nil
}

// Target identifies the bucket and prefix on its endpoint.
func (p *BucketPublisher) Target() string {
	t := "bucket:" + p.target.Endpoint + "/" + p.target.Name
	if p.target.Prefix != "" {
		t += "/" + p.target.Prefix
	}
	return t
}

// Publish mirrors sourceDir into the bucket under the configured prefix.
func (p *BucketPublisher) Publish(ctx context.Context, sourceDir string) (Result, error) {
	defer lockTarget(p.Target())()
	start := time.Now()

	files, size, err := scanSource(sourceDir)
	if err != nil {
		return Result{}, err
	}

	if err := p.ensureBucket(ctx); err != nil {
		return Result{}, err
	}

	existing, err := p.listExisting(ctx)
	if err != nil {
		return Result{}, err
	}

	uploaded := make(map[string]struct{}, files)
	err = filepath.WalkDir(sourceDir, func(fp string, d fs.DirEntry, err error) error {
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
		rel, err := filepath.Rel(sourceDir, fp)
		if err != nil {
			return err
		}
		key := objectKey(p.target.Prefix, rel)
		if err := p.uploadFile(ctx, fp, key); err != nil {
			return err
		}
		uploaded[key] = struct{}{}
		return nil
	})
	if err != nil {
		return Result{}, classifyPublishError(p.Target(), err)
	}

	// Remove objects with no source counterpart: replacement, not
	// accumulation.
	removed := 0
	for key := range existing {
		if _, ok := uploaded[key]; ok {
			continue
		}
		if err := p.client.RemoveObject(ctx, p.target.Name, key, minio.RemoveObjectOptions{}); err != nil {
			return Result{}, classifyPublishError(p.Target(), fmt.Errorf("removing stale object %s: %w", key, err))
		}
		removed++
	}

	res := Result{
		Target:      p.Target(),
		Files:       files,
		Bytes:       size,
		Duration:    time.Since(start),
		PublishedAt: time.Now(),
	}
	slog.Info("Published to bucket",
		logfields.Target(p.target.Name),
		slog.Int("files", files),
		slog.Int("removed", removed),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, nil
}

// ensureBucket creates the bucket when it does not exist yet.
func (p *BucketPublisher) ensureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.target.Name)
	if err != nil {
		return classifyPublishError(p.Target(), err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.target.Name, minio.MakeBucketOptions{Region: p.target.Region}); err != nil {
		return classifyPublishError(p.Target(), err)
	}
	slog.Info("Created publish bucket", logfields.Target(p.target.Name))
	return nil
}

// listExisting collects the object keys currently under the prefix.
func (p *BucketPublisher) listExisting(ctx context.Context) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	opts := minio.ListObjectsOptions{Recursive: true}
	if p.target.Prefix != "" {
		opts.Prefix = p.target.Prefix + "/"
	}
	for obj := range p.client.ListObjects(ctx, p.target.Name, opts) {
		if obj.Err != nil {
			return nil, classifyPublishError(p.Target(), obj.Err)
		}
		existing[obj.Key] = struct{}{}
	}
	return existing, nil
}

func (p *BucketPublisher) uploadFile(ctx context.Context, filePath, key string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	_, err = p.client.PutObject(ctx, p.target.Name, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: contentTypeFor(filePath),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// objectKey joins the prefix and a slash-separated relative path.
func objectKey(prefix, rel string) string {
	return path.Join(prefix, filepath.ToSlash(rel))
}

// contentTypeFor maps a file name to its MIME type, defaulting to an opaque
// byte stream.
func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
