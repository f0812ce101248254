package encoder

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
)

// PNGEncoder encodes images to PNG at maximum compression, switching to a
// paletted image when the source uses at most 256 distinct colors.
type PNGEncoder struct{}

func (e *PNGEncoder) Format() string    { return "png" }
func (e *PNGEncoder) Extension() string { return "png" }
func (e *PNGEncoder) Available() bool   { return true }

func (e *PNGEncoder) Encode(_ context.Context, img image.Image, p Params) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(512 * 1024) // pre-alloc 512KB

	if p.Palette {
		if pal, ok := toPaletted(img); ok {
			img = pal
		}
	}

	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toPaletted converts img to an exact (lossless) palette. It gives up as
// soon as a 257th color is seen.
func toPaletted(img image.Image) (*image.Paletted, bool) {
	if p, ok := img.(*image.Paletted); ok {
		return p, true
	}

	src := imaging.Clone(img)
	b := src.Bounds()
	dst := image.NewPaletted(b, nil)

	index := make(map[color.NRGBA]uint8, 256)
	palette := make(color.Palette, 0, 256)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := src.PixOffset(x, y)
			c := color.NRGBA{R: src.Pix[i], G: src.Pix[i+1], B: src.Pix[i+2], A: src.Pix[i+3]}
			idx, ok := index[c]
			if !ok {
				if len(palette) == 256 {
					return nil, false
				}
				idx = uint8(len(palette))
				index[c] = idx
				palette = append(palette, c)
			}
			dst.Pix[dst.PixOffset(x, y)] = idx
		}
	}

	dst.Palette = palette
	return dst, true
}
