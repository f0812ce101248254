package encoder

import (
	"context"
	"errors"
	"image"
)

// ErrUnavailable is returned when an encoder's external tool is missing.
var ErrUnavailable = errors.New("encoder unavailable")

// Params carries the per-format tuning knobs.
type Params struct {
	// Quality is 1-100, higher is better.
	Quality int
	// Effort is format specific: cwebp -m (0-6, higher = smaller) or
	// avifenc --speed (0-10, lower = smaller).
	Effort int
	// Palette allows lossless palette reduction (PNG only).
	Palette bool
}

// Encoder encodes an image to a specific format.
type Encoder interface {
	// Format returns the output format name (e.g. "jpeg", "webp", "avif", "png").
	Format() string

	// Encode converts the image to bytes.
	Encode(ctx context.Context, img image.Image, p Params) ([]byte, error)

	// Available returns true if the encoder is ready to use.
	// External encoders (cwebp, avifenc) may not be installed.
	Available() bool

	// Extension returns the file extension without dot.
	Extension() string
}

func clampQuality(q, def int) int {
	if q <= 0 || q > 100 {
		return def
	}
	return q
}
