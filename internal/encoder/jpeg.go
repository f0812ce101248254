package encoder

import (
	"bytes"
	"context"
	"image"

	"github.com/disintegration/imaging"
)

// JPEGEncoder re-encodes images as baseline JPEG with imaging.
type JPEGEncoder struct{}

func (e *JPEGEncoder) Format() string    { return "jpeg" }
func (e *JPEGEncoder) Extension() string { return "jpg" }
func (e *JPEGEncoder) Available() bool   { return true }

func (e *JPEGEncoder) Encode(_ context.Context, img image.Image, p Params) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 * 1024)

	err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(clampQuality(p.Quality, 82)))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
