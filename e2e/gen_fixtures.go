//go:build ignore

// gen_fixtures lays out a small public/ tree for the smoke test.
// Usage: go run gen_fixtures.go <public_dir>
package main

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

const lfsPointer = `version https://git-lfs.github.com/spec/v1
oid sha256:4d7a214614ab2935c943f9e0ff69d22eadbb8f32b1258daaa5e2ca24d17e2393
size 2048576
`

const icon = `<?xml version="1.0" encoding="UTF-8"?>
<!-- Generator: Sketch -->
<svg xmlns="http://www.w3.org/2000/svg" xmlns:inkscape="http://www.inkscape.org/namespaces/inkscape" viewBox="0 0 24 24" inkscape:version="1.3">
  <metadata><rdf>exported</rdf></metadata>
  <defs>
    <linearGradient id="brandGradient"><stop offset="0" stop-color="#f00"/><stop offset="1" stop-color="#00f"/></linearGradient>
  </defs>
  <g id="layer1">
    <circle id="dot" cx="12" cy="12" r="10" fill="url(#brandGradient)"/>
  </g>
</svg>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: gen_fixtures <public_dir>")
		os.Exit(1)
	}
	dir := os.Args[1]
	images := filepath.Join(dir, "images")
	for _, d := range []string{filepath.Join(images, "team"), filepath.Join(dir, "icons"), filepath.Join(dir, "videos")} {
		must(os.MkdirAll(d, 0o755))
	}

	// Same base name in two formats; the optimizer must keep both.
	must(imaging.Save(gradient(1920, 1080), filepath.Join(images, "photo.jpg"), imaging.JPEGQuality(95)))
	must(imaging.Save(gradient(3840, 2160), filepath.Join(images, "photo.png")))

	must(imaging.Save(alphaGradient(256, 256), filepath.Join(images, "logo.png")))
	must(imaging.Save(gradient(800, 1000), filepath.Join(images, "team", "jane.jpg"), imaging.JPEGQuality(95)))

	must(os.WriteFile(filepath.Join(images, "hero.jpg"), []byte(lfsPointer), 0o644))
	must(os.WriteFile(filepath.Join(dir, "icons", "icon.svg"), []byte(icon), 0o644))

	fmt.Fprintf(os.Stderr, "[gen_fixtures] created 6 fixtures in %s\n", dir)
}

func gradient(w, h int) *image.NRGBA {
	img := imaging.New(w, h, color.NRGBA{})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func alphaGradient(w, h int) *image.NRGBA {
	img := imaging.New(w, h, color.NRGBA{})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: 220, G: 60, B: 30,
				A: uint8(x * 255 / w),
			})
		}
	}
	return img
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "[gen_fixtures]", err)
		os.Exit(1)
	}
}
