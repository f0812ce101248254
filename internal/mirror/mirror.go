// Package mirror copies locally generated variants to an S3 bucket.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/AnyUserName/mediaopt/internal/manifest"
	"github.com/AnyUserName/mediaopt/internal/retry"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CacheControl is set on every object. Variant names stay the same when a
// source is re-optimized, so caches must revalidate.
const CacheControl = "public, max-age=3600, must-revalidate"

// Putter is the part of the S3 client the mirror needs.
type Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures a Mirror.
type Options struct {
	Bucket      string
	Prefix      string
	Region      string
	Concurrency int
	FailFast    bool
	Retry       retry.Policy
}

// Mirror uploads manifest variants.
type Mirror struct {
	client Putter
	opts   Options
	log    logrus.FieldLogger
}

// Report summarizes one Sync.
type Report struct {
	Uploaded int
	Bytes    int64
	Failed   []string
}

// NewS3 loads AWS credentials from the default chain.
func NewS3(ctx context.Context, opts Options, log logrus.FieldLogger) (*Mirror, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("mirror: no bucket configured")
	}
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return New(s3.NewFromConfig(cfg), opts, log), nil
}

// New wraps an existing client.
func New(client Putter, opts Options, log logrus.FieldLogger) *Mirror {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = retry.Default
	}
	return &Mirror{client: client, opts: opts, log: log}
}

// ErrOutsidePrefix is returned by ObjectKey for paths that climb out of
// the manifest's directories.
var ErrOutsidePrefix = errors.New("path escapes the mirror prefix")

// ObjectKey places a manifest-relative path under the configured prefix.
func (m *Mirror) ObjectKey(rel string) (string, error) {
	rel = path.Clean(strings.TrimPrefix(filepath.ToSlash(rel), "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s", ErrOutsidePrefix, rel)
	}
	prefix := strings.Trim(m.opts.Prefix, "/")
	if prefix == "" {
		return rel, nil
	}
	return path.Join(prefix, rel), nil
}

type upload struct {
	rel  string
	file string
	key  string
}

// Sync uploads every variant listed in man. Output-dir variants are read
// from baseDir; in-place variants from the manifest's source dir.
// Failures are collected; with FailFast the first one cancels the rest.
func (m *Mirror) Sync(ctx context.Context, man *manifest.Manifest, baseDir string) (*Report, error) {
	var rep Report
	seen := map[string]bool{}
	var uploads []upload
	for _, a := range man.Assets {
		for _, v := range a.Variants {
			if v.Path == "" {
				continue
			}
			key, err := m.ObjectKey(v.Path)
			if err != nil {
				m.log.WithError(err).WithField("file", v.Path).Error("skipping variant")
				rep.Failed = append(rep.Failed, v.Path)
				continue
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			uploads = append(uploads, upload{rel: v.Path, file: man.File(baseDir, v), key: key})
		}
	}
	sort.Slice(uploads, func(i, j int) bool { return uploads[i].key < uploads[j].key })
	if len(rep.Failed) > 0 && m.opts.FailFast {
		sort.Strings(rep.Failed)
		return &rep, fmt.Errorf("mirror %s: %w", rep.Failed[0], ErrOutsidePrefix)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for _, u := range uploads {
		u := u
		g.Go(func() error {
			size, err := m.put(gctx, u.file, u.key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				m.log.WithError(err).WithField("file", u.rel).Error("mirror upload failed")
				rep.Failed = append(rep.Failed, u.rel)
				if m.opts.FailFast {
					return fmt.Errorf("mirror %s: %w", u.rel, err)
				}
				return nil
			}
			rep.Uploaded++
			rep.Bytes += size
			return nil
		})
	}
	err := g.Wait()
	sort.Strings(rep.Failed)
	return &rep, err
}

func (m *Mirror) put(ctx context.Context, file, key string) (int64, error) {
	mt, err := mimetype.DetectFile(file)
	if err != nil {
		return 0, err
	}
	var size int64
	_, err = retry.Do(ctx, m.opts.Retry, func(int) error {
		f, err := os.Open(file)
		if err != nil {
			return retry.Permanent(err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return retry.Permanent(err)
		}
		size = info.Size()
		_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(m.opts.Bucket),
			Key:           aws.String(key),
			Body:          f,
			ContentLength: aws.Int64(size),
			ContentType:   aws.String(contentType(file, mt)),
			CacheControl:  aws.String(CacheControl),
		})
		return err
	})
	return size, err
}

// contentType prefers the sniffed type and falls back to the extension for
// formats the sniffer reports generically.
func contentType(file string, mt *mimetype.MIME) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".svg":
		return "image/svg+xml"
	case ".avif":
		return "image/avif"
	}
	if mt == nil || mt.Is("application/octet-stream") || mt.Is("text/plain") {
		return "application/octet-stream"
	}
	return mt.String()
}
