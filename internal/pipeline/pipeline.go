// Package pipeline discovers media under a source root and runs every file
// through the image, vector or video path, one file at a time.
package pipeline

import (
	"context"
	"fmt"

	"github.com/AnyUserName/mediaopt/internal/encoder"
	"github.com/AnyUserName/mediaopt/internal/manifest"
	"github.com/AnyUserName/mediaopt/internal/profile"
	"github.com/AnyUserName/mediaopt/internal/toolchain"
	"github.com/AnyUserName/mediaopt/internal/video"
	"github.com/sirupsen/logrus"
)

// Config holds all parameters for a pipeline run.
type Config struct {
	SourceDir string
	// OutputDir receives responsive variants and the manifest. In-place
	// profiles write nothing there, but it is still never scanned.
	OutputDir string
	Profile   profile.Profile
	Scan      ScanOptions
	// FailFast aborts the run on the first per-file error instead of
	// logging it and moving on.
	FailFast bool
	BasePath string
}

// VideoTranscoder is satisfied by *video.Transcoder.
type VideoTranscoder interface {
	Transcode(ctx context.Context, path string) video.Result
}

// Deps are the collaborators a pipeline drives. Nil fields get defaults
// backed by the real tools.
type Deps struct {
	Registry *encoder.Registry
	SVG      *encoder.SVGOptimizer
	Video    VideoTranscoder
	Log      logrus.FieldLogger
}

// Summary counts what happened to each discovered file.
type Summary struct {
	Discovered  int
	Processed   int // at least one output, possibly with some variant errors
	Skipped     int // LFS pointers
	Failed      int // files with at least one error
	Kept        int // outputs left untouched because a rewrite was not smaller
	Variants    int
	InputBytes  int64
	OutputBytes int64
}

// Result is everything a run produced.
type Result struct {
	Manifest *manifest.Manifest
	Summary  Summary
	Errors   []*FileError
}

// Pipeline orchestrates media processing.
type Pipeline struct {
	cfg      Config
	registry *encoder.Registry
	svg      *encoder.SVGOptimizer
	video    VideoTranscoder
	log      logrus.FieldLogger
}

// New creates a configured pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Registry == nil {
		deps.Registry = encoder.NewRegistry(toolchain.ExecRunner{})
	}
	if deps.SVG == nil {
		deps.SVG = encoder.NewSVGOptimizer()
	}
	if deps.Video == nil {
		deps.Video = video.New(toolchain.ExecRunner{}, video.DefaultOptions(), deps.Log)
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = cfg.SourceDir
	}
	return &Pipeline{
		cfg:      cfg,
		registry: deps.Registry,
		svg:      deps.SVG,
		video:    deps.Video,
		log:      deps.Log,
	}
}

// ManifestDir is where the manifest for this run belongs; variant paths in
// it are relative to this directory.
func (p *Pipeline) ManifestDir() string {
	if p.cfg.Profile.Responsive {
		return p.cfg.OutputDir
	}
	return p.cfg.SourceDir
}

// Run executes the pipeline. Files are processed strictly sequentially:
// decoding many large images at once can exhaust memory. A missing source
// root, a FailFast abort, cancellation or a run where every file failed
// returns an error; the partial Result is still returned in the latter
// three cases.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := RequireDir(p.cfg.SourceDir); err != nil {
		return nil, err
	}
	p.log.Debug(p.registry.String())

	scan := p.cfg.Scan
	if rel, ok := relWithin(p.cfg.SourceDir, p.cfg.OutputDir); ok && rel != "." {
		scan.SkipDirs = append(scan.SkipDirs, p.cfg.OutputDir)
	}
	sources, err := Scan(p.cfg.SourceDir, scan)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	m := manifest.New(p.cfg.Profile.Name, p.cfg.BasePath)
	m.BuildInfo = &manifest.BuildInfo{
		SourceDir: p.cfg.SourceDir,
		OutputDir: p.ManifestDir(),
		FailFast:  p.cfg.FailFast,
	}
	res := &Result{Manifest: m, Summary: Summary{Discovered: len(sources)}}

	if len(sources) == 0 {
		p.log.WithField("dir", p.cfg.SourceDir).Warn("no media files found")
		return res, nil
	}
	p.log.WithField("count", len(sources)).Info("found media files")

	bases := assignOutputBases(sources)
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			p.finish(res)
			return res, err
		}

		p.log.WithField("file", src.RelPath).Debug("processing")
		r := p.process(ctx, src, bases[i])
		p.collect(res, src, r)

		if len(r.errs) > 0 && p.cfg.FailFast {
			p.finish(res)
			return res, fmt.Errorf("aborting (fail-fast): %w", r.errs[0])
		}
	}
	p.finish(res)

	if res.Summary.Processed == 0 && res.Summary.Failed > 0 {
		return res, fmt.Errorf("all %d files failed to process", res.Summary.Failed)
	}
	if res.Summary.Failed > 0 {
		p.log.Warnf("%d of %d files had errors", res.Summary.Failed, len(sources))
	}
	return res, nil
}

func (p *Pipeline) collect(res *Result, src Source, r processResult) {
	s := &res.Summary
	s.InputBytes += src.Size
	s.Kept += r.kept

	for _, e := range r.errs {
		p.log.WithFields(logrus.Fields{"file": e.Path, "stage": e.Stage}).Error(e.Err)
	}
	res.Errors = append(res.Errors, r.errs...)

	switch {
	case r.skipped:
		s.Skipped++
		return
	case len(r.errs) > 0:
		s.Failed++
	}
	if r.asset != nil && len(r.asset.Variants) > 0 {
		s.Processed++
		res.Manifest.Assets[r.key] = *r.asset
		s.Variants += len(r.asset.Variants)
		for _, v := range r.asset.Variants {
			s.OutputBytes += v.Size
		}
	}
}

func (p *Pipeline) finish(res *Result) {
	res.Manifest.Stats.Skipped = res.Summary.Skipped
	res.Manifest.Stats.Failed = res.Summary.Failed
	res.Manifest.ComputeStats()
}
