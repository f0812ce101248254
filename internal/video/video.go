// Package video transcodes source videos with ffmpeg: a smaller re-encode
// of the original container that replaces the source, plus a WebM sibling.
package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AnyUserName/mediaopt/internal/toolchain"
	"github.com/sirupsen/logrus"
)

// Info is what the metadata probe reports about a video.
type Info struct {
	Width    int
	Height   int
	Duration float64 // seconds
}

// Box is the exact output frame. Filter is empty when no scaling is needed.
type Box struct {
	Width  int
	Height int
	Filter string
}

// Options tunes both encodes.
type Options struct {
	MaxWidth      int
	CRF           int    // H.264 constant quality
	Preset        string // x264 preset
	AudioBitrate  string
	WebMCRF       int
	NoRegressSize bool // keep the original when the re-encode is not smaller
}

// DefaultOptions mirrors the build defaults.
func DefaultOptions() Options {
	return Options{
		MaxWidth:      1920,
		CRF:           28,
		Preset:        "slow",
		AudioBitrate:  "128k",
		WebMCRF:       32,
		NoRegressSize: true,
	}
}

// Output describes one encoder invocation.
type Output struct {
	Path     string
	Format   string
	Size     int64
	Replaced bool // the original file was overwritten
	Kept     bool // encode succeeded but the original was smaller
	Err      error
}

// Result collects both invocations for one source.
type Result struct {
	Source  string
	Info    Info
	Box     Box
	Outputs []Output
}

// Err joins the per-invocation errors.
func (r Result) Err() error {
	var errs []error
	for _, o := range r.Outputs {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Transcoder runs ffprobe/ffmpeg through a toolchain.Runner.
type Transcoder struct {
	runner toolchain.Runner
	opts   Options
	log    logrus.FieldLogger
}

// New creates a transcoder.
func New(r toolchain.Runner, opts Options, log logrus.FieldLogger) *Transcoder {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 1920
	}
	return &Transcoder{runner: r, opts: opts, log: log}
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the first video stream's dimensions and the container duration.
func (t *Transcoder) Probe(ctx context.Context, path string) (Info, error) {
	out, err := t.runner.Output(ctx, toolchain.FFprobe.Name,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return Info{}, fmt.Errorf("probe %s: %w", filepath.Base(path), err)
	}

	var po probeOutput
	if err := json.Unmarshal(out, &po); err != nil {
		return Info{}, fmt.Errorf("probe %s: parse: %w", filepath.Base(path), err)
	}
	if len(po.Streams) == 0 || po.Streams[0].Width <= 0 || po.Streams[0].Height <= 0 {
		return Info{}, fmt.Errorf("probe %s: no video stream", filepath.Base(path))
	}

	info := Info{Width: po.Streams[0].Width, Height: po.Streams[0].Height}
	if po.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(po.Format.Duration, 64)
	}
	return info, nil
}

// PlanBox computes the output frame. Videos wider than maxWidth are scaled
// to fit and padded to the exact box (never cropped); the height is rounded
// to an even number as required by yuv420p.
func PlanBox(width, height, maxWidth int) Box {
	if maxWidth <= 0 || width <= maxWidth {
		return Box{Width: width, Height: height}
	}
	h := int(math.Round(float64(height) * float64(maxWidth) / float64(width)))
	h += h % 2
	if h < 2 {
		h = 2
	}
	w := maxWidth - maxWidth%2
	return Box{
		Width:  w,
		Height: h,
		Filter: fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h, w, h),
	}
}

// Transcode probes the source then runs both encodes. A failed probe fails
// both outputs; otherwise each invocation succeeds or fails on its own.
func (t *Transcoder) Transcode(ctx context.Context, path string) Result {
	res := Result{Source: path}
	log := t.log.WithField("file", filepath.Base(path))

	info, err := t.Probe(ctx, path)
	if err != nil {
		res.Outputs = []Output{{Path: path, Err: err}}
		return res
	}
	res.Info = info
	res.Box = PlanBox(info.Width, info.Height, t.opts.MaxWidth)
	log.WithFields(logrus.Fields{
		"width":    info.Width,
		"height":   info.Height,
		"duration": info.Duration,
		"box":      fmt.Sprintf("%dx%d", res.Box.Width, res.Box.Height),
	}).Debug("probed video")

	recompressed := t.recompress(ctx, path, res.Box)
	if recompressed.Err != nil {
		log.WithError(recompressed.Err).Error("re-encode failed")
	}
	webm := t.webm(ctx, path, res.Box)
	if webm.Err != nil {
		log.WithError(webm.Err).Error("webm encode failed")
	}

	res.Outputs = []Output{recompressed, webm}
	return res
}

// recompress writes to a hidden temp sibling and only renames it over the
// source once ffmpeg has succeeded.
func (t *Transcoder) recompress(ctx context.Context, path string, box Box) Output {
	ext := filepath.Ext(path)
	out := Output{Path: path, Format: strings.TrimPrefix(strings.ToLower(ext), ".")}

	tmp := filepath.Join(filepath.Dir(path), "."+strings.TrimSuffix(filepath.Base(path), ext)+".tmp"+ext)
	defer os.Remove(tmp)

	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", path}
	if box.Filter != "" {
		args = append(args, "-vf", box.Filter)
	}
	args = append(args, t.codecArgs(ext)...)
	args = append(args, tmp)
	if _, err := t.runner.Run(ctx, toolchain.FFmpeg.Name, args...); err != nil {
		out.Err = fmt.Errorf("re-encode %s: %w", filepath.Base(path), err)
		return out
	}

	tmpInfo, err := os.Stat(tmp)
	if err != nil || tmpInfo.Size() == 0 {
		out.Err = fmt.Errorf("re-encode %s: no output written", filepath.Base(path))
		return out
	}
	srcInfo, err := os.Stat(path)
	if err != nil {
		out.Err = fmt.Errorf("re-encode %s: %w", filepath.Base(path), err)
		return out
	}

	if t.opts.NoRegressSize && box.Filter == "" && tmpInfo.Size() >= srcInfo.Size() {
		out.Size = srcInfo.Size()
		out.Kept = true
		return out
	}
	if err := os.Rename(tmp, path); err != nil {
		out.Err = fmt.Errorf("replace %s: %w", filepath.Base(path), err)
		return out
	}
	out.Size = tmpInfo.Size()
	out.Replaced = true
	return out
}

func (t *Transcoder) webm(ctx context.Context, path string, box Box) Output {
	dst := strings.TrimSuffix(path, filepath.Ext(path)) + ".webm"
	out := Output{Path: dst, Format: "webm"}
	if strings.EqualFold(filepath.Ext(path), ".webm") {
		// The re-encode already covers WebM sources.
		return Output{Path: dst, Format: "webm", Kept: true}
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", path}
	if box.Filter != "" {
		args = append(args, "-vf", box.Filter)
	}
	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp.webm")
	defer os.Remove(tmp)

	args = append(args, t.codecArgs(".webm")...)
	args = append(args, tmp)
	if _, err := t.runner.Run(ctx, toolchain.FFmpeg.Name, args...); err != nil {
		out.Err = fmt.Errorf("webm %s: %w", filepath.Base(path), err)
		return out
	}
	info, err := os.Stat(tmp)
	if err != nil || info.Size() == 0 {
		out.Err = fmt.Errorf("webm %s: no output written", filepath.Base(path))
		return out
	}
	if err := os.Rename(tmp, dst); err != nil {
		out.Err = fmt.Errorf("webm %s: %w", filepath.Base(path), err)
		return out
	}
	out.Size = info.Size()
	return out
}

// codecArgs picks encoder settings for the output container.
func (t *Transcoder) codecArgs(ext string) []string {
	if strings.EqualFold(ext, ".webm") {
		return []string{
			"-c:v", "libvpx-vp9",
			"-crf", strconv.Itoa(t.opts.WebMCRF),
			"-b:v", "0",
			"-row-mt", "1",
			"-c:a", "libopus",
			"-b:a", t.opts.AudioBitrate,
		}
	}
	return []string{
		"-c:v", "libx264",
		"-crf", strconv.Itoa(t.opts.CRF),
		"-preset", t.opts.Preset,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", t.opts.AudioBitrate,
		"-movflags", "+faststart",
	}
}
