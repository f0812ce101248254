package pipeline

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/AnyUserName/mediaopt/internal/cdn"
	"github.com/AnyUserName/mediaopt/internal/hasher"
	"github.com/AnyUserName/mediaopt/internal/retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// PublishConfig controls a CDN publish run.
type PublishConfig struct {
	SourceDir string
	Scan      ScanOptions
	// IDPrefix is prepended to every public ID (e.g. "images").
	IDPrefix string
	// Concurrency bounds in-flight uploads.
	Concurrency int
	// RatePerSecond caps upload starts; 0 disables the limit.
	RatePerSecond float64
	Retry         retry.Policy
}

// Publisher uploads every discovered image.
type Publisher struct {
	cfg PublishConfig
	up  cdn.Uploader
	log logrus.FieldLogger
}

// NewPublisher fills defaults: 10 concurrent uploads and the default retry
// policy. The rate limit stays off unless configured.
func NewPublisher(cfg PublishConfig, up cdn.Uploader, log logrus.FieldLogger) *Publisher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = retry.Default
	}
	if len(cfg.Scan.Kinds) == 0 {
		cfg.Scan.Kinds = []Kind{KindImage}
	}
	return &Publisher{cfg: cfg, up: up, log: log}
}

// PublicIDFor derives the public ID for a discovered source.
func (p *Publisher) PublicIDFor(src Source) string {
	id := cdn.PublicID(src.RelPath)
	if prefix := strings.Trim(p.cfg.IDPrefix, "/"); prefix != "" {
		id = path.Join(prefix, id)
	}
	return id
}

// Publish uploads all images under SourceDir. The returned results are
// index-aligned with the sources; a nil result means the file was skipped
// or failed and gets no asset-map entry. Only a missing source root or
// cancellation is an error.
func (p *Publisher) Publish(ctx context.Context) ([]Source, []*cdn.UploadResult, error) {
	if err := RequireDir(p.cfg.SourceDir); err != nil {
		return nil, nil, err
	}
	sources, err := Scan(p.cfg.SourceDir, p.cfg.Scan)
	if err != nil {
		return nil, nil, err
	}
	results := make([]*cdn.UploadResult, len(sources))
	if len(sources) == 0 {
		p.log.WithField("dir", p.cfg.SourceDir).Warn("no images found to upload")
		return sources, results, nil
	}

	limit := rate.Inf
	if p.cfg.RatePerSecond > 0 {
		limit = rate.Limit(p.cfg.RatePerSecond)
	}
	limiter := rate.NewLimiter(limit, p.cfg.Concurrency)
	sem := semaphore.NewWeighted(int64(p.cfg.Concurrency))

	var wg sync.WaitGroup
	var runErr error
	for i, src := range sources {
		log := p.log.WithField("file", src.RelPath)

		pointer, err := IsLFSPointer(src.AbsPath)
		if err != nil {
			log.WithError(err).Error("cannot read file")
			continue
		}
		if pointer {
			log.Warn("skipping Git LFS pointer")
			continue
		}
		sourceHash, err := hasher.FileHash(src.AbsPath, hasher.DefaultLen)
		if err != nil {
			log.WithError(err).Error("cannot hash file")
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			runErr = err
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			runErr = err
			break
		}

		i, src := i, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			id := p.PublicIDFor(src)
			res := cdn.UploadWithRetry(ctx, p.up, src.AbsPath, id, p.cfg.Retry, log)
			if res == nil {
				return
			}
			if res.PublicID == "" {
				res.PublicID = id
			}
			res.Source = src.RelPath
			res.SourceHash = sourceHash
			results[i] = res
			log.WithField("public_id", res.PublicID).Info("uploaded")
		}()
	}
	wg.Wait()
	return sources, results, runErr
}
