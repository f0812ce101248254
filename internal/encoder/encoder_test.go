package encoder

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/AnyUserName/mediaopt/internal/toolchain/toolchaintest"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func stripes(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 200, G: 30, B: 30, A: 255}
			if x%8 < 4 {
				c = color.NRGBA{R: 0, G: 0, B: 0, A: 0}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestFormatsFor(t *testing.T) {
	assert.Equal(t, []string{"jpeg", "webp", "avif"}, FormatsFor("jpeg"))
	assert.Equal(t, []string{"jpeg", "webp", "avif"}, FormatsFor("JPG"))
	assert.Equal(t, []string{"png", "webp", "avif"}, FormatsFor("png"))
	assert.Equal(t, []string{"webp", "avif"}, FormatsFor("gif"))
	assert.Equal(t, []string{"webp", "avif"}, FormatsFor("tiff"))
}

func TestJPEGEncoder(t *testing.T) {
	data, err := (&JPEGEncoder{}).Encode(context.Background(), gradient(64, 32), Params{Quality: 82})
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestPNGEncoder_PaletteReduction(t *testing.T) {
	enc := &PNGEncoder{}

	data, err := enc.Encode(context.Background(), stripes(64, 64), Params{Palette: true})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	pal, ok := img.(*image.Paletted)
	require.True(t, ok, "two-color image should be paletted, got %T", img)
	assert.Len(t, pal.Palette, 2)

	// Transparency survives the palette.
	_, _, _, a := pal.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), a)

	full, err := enc.Encode(context.Background(), stripes(64, 64), Params{Palette: false})
	require.NoError(t, err)
	img, err = png.Decode(bytes.NewReader(full))
	require.NoError(t, err)
	_, paletted := img.(*image.Paletted)
	assert.False(t, paletted)
}

func TestPNGEncoder_TooManyColors(t *testing.T) {
	_, ok := toPaletted(gradient(64, 64))
	assert.False(t, ok)
}

func TestToPaletted_Lossless(t *testing.T) {
	src := stripes(16, 16)
	pal, ok := toPaletted(src)
	require.True(t, ok)
	back := imaging.Clone(pal)
	assert.Equal(t, src.Pix, back.Pix)
}

func TestExternalEncoders_Args(t *testing.T) {
	r := &toolchaintest.Runner{Handler: func(name string, args []string) ([]byte, error) {
		return nil, os.WriteFile(args[len(args)-1], []byte("encoded:"+name), 0o644)
	}}

	webp := NewWebPEncoder(r)
	require.True(t, webp.Available())
	data, err := webp.Encode(context.Background(), gradient(8, 8), Params{Quality: 75, Effort: 6})
	require.NoError(t, err)
	assert.Equal(t, "encoded:/usr/bin/cwebp", string(data))

	avif := NewAVIFEncoder(r)
	_, err = avif.Encode(context.Background(), gradient(8, 8), Params{Quality: 65, Effort: 0})
	require.NoError(t, err)

	calls := r.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "75", toolchaintest.ArgAfter(calls[0].Args, "-q"))
	assert.Equal(t, "6", toolchaintest.ArgAfter(calls[0].Args, "-m"))
	assert.Equal(t, "23", toolchaintest.ArgAfter(calls[1].Args, "--min"))
	assert.Equal(t, "23", toolchaintest.ArgAfter(calls[1].Args, "--max"))
	assert.Equal(t, "0", toolchaintest.ArgAfter(calls[1].Args, "--speed"))
}

func TestExternalEncoders_Unavailable(t *testing.T) {
	r := &toolchaintest.Runner{Missing: map[string]bool{"avifenc": true}}
	reg := NewRegistry(r)

	assert.Nil(t, reg.Get("avif"))
	assert.NotNil(t, reg.Get("webp"))
	assert.Equal(t, []string{"webp", "jpeg", "png"}, reg.Available())

	err := reg.Require("jpeg", "webp", "avif")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "avif")

	_, err = NewAVIFEncoder(r).Encode(context.Background(), gradient(4, 4), Params{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAVIFQuantizer(t *testing.T) {
	assert.Equal(t, 63, AVIFQuantizer(0))
	assert.Equal(t, 23, AVIFQuantizer(65))
	assert.Equal(t, 0, AVIFQuantizer(100))
}
