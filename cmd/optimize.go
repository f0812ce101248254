package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/AnyUserName/mediaopt/internal/encoder"
	"github.com/AnyUserName/mediaopt/internal/manifest"
	"github.com/AnyUserName/mediaopt/internal/pipeline"
	"github.com/AnyUserName/mediaopt/internal/toolchain"
	"github.com/AnyUserName/mediaopt/internal/video"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// optimizeRun describes one invocation of the local pipeline.
type optimizeRun struct {
	sourceDir    string
	outputDir    string
	profile      string
	manifestPath string
	kinds        []pipeline.Kind
}

// requiredTools lists the external binaries the given kinds shell out to.
func requiredTools(kinds []pipeline.Kind) []toolchain.Tool {
	var tools []toolchain.Tool
	for _, k := range kinds {
		switch k {
		case pipeline.KindImage:
			tools = append(tools, toolchain.CWebP, toolchain.AVIFEnc)
		case pipeline.KindVideo:
			tools = append(tools, toolchain.FFmpeg, toolchain.FFprobe)
		}
	}
	return tools
}

// runOptimize is shared by images, icons, videos and media. Preconditions
// (source root, external tools) are checked once before any file is
// touched.
func runOptimize(ctx context.Context, run optimizeRun) error {
	start := time.Now()

	absSource, err := filepath.Abs(run.sourceDir)
	if err != nil {
		return fmt.Errorf("resolve source path: %w", err)
	}
	if err := pipeline.RequireDir(absSource); err != nil {
		return err
	}

	runner := toolchain.ExecRunner{}
	if err := toolchain.Require(ctx, runner, requiredTools(run.kinds)...); err != nil {
		return err
	}

	registry := encoder.NewRegistry(runner)
	if slices.Contains(run.kinds, pipeline.KindImage) {
		if err := registry.Require("jpeg", "png", "webp", "avif"); err != nil {
			return err
		}
	}

	prof := cfg.ProfileFor(run.profile)
	// The output dir is never scanned, even by in-place profiles.
	absOutput, err := filepath.Abs(flagOr(run.outputDir, cfg.OutputDir))
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	log.WithFields(logrus.Fields{
		"source":  absSource,
		"output":  absOutput,
		"profile": prof.Name,
		"kinds":   run.kinds,
	}).Debug("starting")

	p := pipeline.New(pipeline.Config{
		SourceDir: absSource,
		OutputDir: absOutput,
		Profile:   prof,
		Scan: pipeline.ScanOptions{
			Kinds:          run.kinds,
			Include:        cfg.Scan.Include,
			Exclude:        cfg.Scan.Exclude,
			FollowSymlinks: cfg.Scan.FollowSymlinks,
			MaxDepth:       cfg.Scan.MaxDepth,
		},
		FailFast: cfg.FailFast,
		BasePath: cfg.BasePath,
	}, pipeline.Deps{
		Registry: registry,
		SVG:      encoder.NewSVGOptimizer(),
		Video:    video.New(runner, cfg.VideoOptions(), log),
		Log:      log,
	})

	res, runErr := p.Run(ctx)
	if res == nil {
		return runErr
	}

	manifestPath := run.manifestPath
	if manifestPath == "" && prof.Responsive {
		manifestPath = filepath.Join(p.ManifestDir(), manifest.FileName)
	}
	if manifestPath != "" && len(res.Manifest.Assets) > 0 {
		if err := manifest.WriteJSON(res.Manifest, manifestPath); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}

	printBuildReport(res, manifestPath, time.Since(start))
	return runErr
}

func printBuildReport(res *pipeline.Result, manifestPath string, elapsed time.Duration) {
	s := res.Summary
	fmt.Println()
	fmt.Println("  mediaopt run complete")
	fmt.Println()
	fmt.Printf("  Discovered:  %d\n", s.Discovered)
	fmt.Printf("  Processed:   %d\n", s.Processed)
	if s.Skipped > 0 {
		fmt.Printf("  Skipped:     %d (Git LFS pointers)\n", s.Skipped)
	}
	if s.Failed > 0 {
		fmt.Printf("  Failed:      %d (%d errors)\n", s.Failed, len(res.Errors))
	}
	if s.Kept > 0 {
		fmt.Printf("  Kept:        %d outputs (re-encode not smaller)\n", s.Kept)
	}
	fmt.Printf("  Variants:    %d\n", s.Variants)
	fmt.Printf("  Input size:  %s\n", humanize.Bytes(uint64(s.InputBytes)))
	fmt.Printf("  Output size: %s\n", humanize.Bytes(uint64(s.OutputBytes)))
	if s.InputBytes > 0 {
		fmt.Printf("  Ratio:       %.1f%% of original\n", float64(s.OutputBytes)/float64(s.InputBytes)*100)
	}
	fmt.Printf("  Time:        %s\n", elapsed.Round(time.Millisecond))
	fmt.Println()

	m := res.Manifest
	if len(m.Assets) > 0 {
		type assetSize struct {
			key        string
			inputSize  int64
			outputSize int64
		}
		var items []assetSize
		for key, a := range m.Assets {
			var outSum int64
			for _, v := range a.Variants {
				outSum += v.Size
			}
			items = append(items, assetSize{key, a.Original.Size, outSum})
		}
		sort.Slice(items, func(i, j int) bool {
			if items[i].inputSize != items[j].inputSize {
				return items[i].inputSize > items[j].inputSize
			}
			return items[i].key < items[j].key
		})
		n := min(len(items), 10)
		fmt.Printf("  Top %d heaviest (original → all outputs):\n", n)
		for _, it := range items[:n] {
			fmt.Printf("    %-40s %10s → %10s\n",
				truncKey(it.key, 40),
				humanize.Bytes(uint64(it.inputSize)),
				humanize.Bytes(uint64(it.outputSize)),
			)
		}
		fmt.Println()
		fmt.Printf("  Formats:     %s\n", strings.Join(detectOutputFormats(m), ", "))
	}
	if manifestPath != "" {
		fmt.Printf("  Manifest:    %s\n", manifestPath)
	}
	fmt.Println()
}

func detectOutputFormats(m *manifest.Manifest) []string {
	set := map[string]bool{}
	for _, a := range m.Assets {
		for _, v := range a.Variants {
			set[v.Format] = true
		}
	}
	var out []string
	for _, f := range []string{"avif", "webp", "jpeg", "png", "svg", "mp4", "webm"} {
		if set[f] {
			out = append(out, f)
			delete(set, f)
		}
	}
	var rest []string
	for f := range set {
		rest = append(rest, f)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func truncKey(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
