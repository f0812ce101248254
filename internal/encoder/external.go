package encoder

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/AnyUserName/mediaopt/internal/toolchain"
)

// Atomic counter for unique temp file names.
var tempCounter atomic.Int64

// externalEncoder shells out to a CLI encoder that reads a PNG file and
// writes its output file. This avoids CGO while still producing optimized
// WebP/AVIF.
type externalEncoder struct {
	tool   toolchain.Tool
	format string
	runner toolchain.Runner
	args   func(p Params, src, dst string) []string

	once      sync.Once
	available bool
	path      string
}

func (e *externalEncoder) Format() string    { return e.format }
func (e *externalEncoder) Extension() string { return e.format }

func (e *externalEncoder) Available() bool {
	e.once.Do(func() {
		path, err := e.runner.LookPath(e.tool.Name)
		if err == nil {
			e.available = true
			e.path = path
		}
	})
	return e.available
}

func (e *externalEncoder) Encode(ctx context.Context, img image.Image, p Params) ([]byte, error) {
	if !e.Available() {
		return nil, fmt.Errorf("%s: %w: %s not found in PATH", e.format, ErrUnavailable, e.tool.Name)
	}

	id := tempCounter.Add(1)
	srcFile, err := os.CreateTemp("", fmt.Sprintf("mediaopt_%s_src_%d_*.png", e.format, id))
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	srcPath := srcFile.Name()
	defer os.Remove(srcPath)

	dstFile, err := os.CreateTemp("", fmt.Sprintf("mediaopt_%s_dst_%d_*.%s", e.format, id, e.format))
	if err != nil {
		srcFile.Close()
		return nil, fmt.Errorf("create temp: %w", err)
	}
	dstPath := dstFile.Name()
	dstFile.Close()
	defer os.Remove(dstPath)

	// Fastest PNG level: the file only lives until the encoder reads it.
	enc := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(srcFile, img); err != nil {
		srcFile.Close()
		return nil, fmt.Errorf("encode temp png: %w", err)
	}
	if err := srcFile.Close(); err != nil {
		return nil, fmt.Errorf("close temp png: %w", err)
	}

	if _, err := e.runner.Run(ctx, e.path, e.args(p, srcPath, dstPath)...); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(dstPath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s produced an empty file", e.tool.Name)
	}
	return data, nil
}

// NewWebPEncoder encodes with cwebp.
// Install: brew install webp / apt install webp
func NewWebPEncoder(r toolchain.Runner) Encoder {
	return &externalEncoder{
		tool:   toolchain.CWebP,
		format: "webp",
		runner: r,
		args: func(p Params, src, dst string) []string {
			effort := p.Effort
			if effort < 0 || effort > 6 {
				effort = 6
			}
			return []string{
				"-q", strconv.Itoa(clampQuality(p.Quality, 75)),
				"-m", strconv.Itoa(effort), // compression method (0=fast, 6=best)
				"-mt",
				"-quiet",
				src,
				"-o", dst,
			}
		},
	}
}

// NewAVIFEncoder encodes with avifenc.
// Install: brew install libavif / apt install libavif-bin
func NewAVIFEncoder(r toolchain.Runner) Encoder {
	return &externalEncoder{
		tool:   toolchain.AVIFEnc,
		format: "avif",
		runner: r,
		args: func(p Params, src, dst string) []string {
			speed := p.Effort
			if speed < 0 || speed > 10 {
				speed = 0
			}
			q := AVIFQuantizer(clampQuality(p.Quality, 65))
			return []string{
				"--min", strconv.Itoa(q),
				"--max", strconv.Itoa(q),
				"--speed", strconv.Itoa(speed),
				"-j", "all",
				src,
				dst,
			}
		},
	}
}

// AVIFQuantizer maps a 1-100 quality onto avifenc's 0-63 quantizer scale,
// where lower is better.
func AVIFQuantizer(quality int) int {
	return 63 - (quality * 63 / 100)
}
