package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AnyUserName/mediaopt/internal/encoder"
	"github.com/AnyUserName/mediaopt/internal/manifest"
	"github.com/AnyUserName/mediaopt/internal/profile"
	"github.com/AnyUserName/mediaopt/internal/video"
	"github.com/disintegration/imaging"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lfsPointer = "version https://git-lfs.github.com/spec/v1\noid sha256:4d7a214614ab2935c943f9e0ff69d22eadbb8f32b1258daaa5e2ca24d17e2393\nsize 12345\n"

// fakeEncoder writes "<format> <w>x<h>" and fails for one source width.
type fakeEncoder struct {
	format    string
	failWidth int
}

func (f *fakeEncoder) Format() string  { return f.format }
func (f *fakeEncoder) Available() bool { return true }
func (f *fakeEncoder) Extension() string {
	if f.format == "jpeg" {
		return "jpg"
	}
	return f.format
}

func (f *fakeEncoder) Encode(_ context.Context, img image.Image, _ encoder.Params) ([]byte, error) {
	b := img.Bounds()
	if f.failWidth > 0 && b.Dx() == f.failWidth {
		return nil, errors.New("encoder crashed")
	}
	return []byte(fmt.Sprintf("%s %dx%d", f.format, b.Dx(), b.Dy())), nil
}

func fakeRegistry(failWidth int) *encoder.Registry {
	return encoder.NewRegistryWith(
		&fakeEncoder{format: "jpeg", failWidth: failWidth},
		&fakeEncoder{format: "png", failWidth: failWidth},
		&fakeEncoder{format: "webp", failWidth: failWidth},
		&fakeEncoder{format: "avif", failWidth: failWidth},
	)
}

type fakeVideo struct {
	calls []string
}

func (f *fakeVideo) Transcode(_ context.Context, path string) video.Result {
	f.calls = append(f.calls, path)
	webm := strings.TrimSuffix(path, filepath.Ext(path)) + ".webm"
	if err := os.WriteFile(webm, []byte("webm"), 0o644); err != nil {
		panic(err)
	}
	return video.Result{
		Source: path,
		Info:   video.Info{Width: 1280, Height: 720, Duration: 3},
		Box:    video.Box{Width: 1280, Height: 720},
		Outputs: []video.Output{
			{Path: path, Format: "mp4", Replaced: true},
			{Path: webm, Format: "webm"},
			{Path: path, Format: "mp4", Err: errors.New("second pass failed")},
		},
	}
}

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, imaging.Save(imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 40, A: 255}), path))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func dims(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

const sampleSVG = `<?xml version="1.0" encoding="UTF-8"?>
<!-- Generator: Inkscape -->
<svg xmlns="http://www.w3.org/2000/svg" xmlns:inkscape="http://www.inkscape.org/namespaces/inkscape" width="24" height="24" viewBox="0 0 24 24">
  <metadata>
    <rdf:RDF><cc:Work rdf:about=""/></rdf:RDF>
  </metadata>
  <defs>
    <linearGradient id="primaryGradient">
      <stop offset="0" stop-color="#ff0000"/>
    </linearGradient>
  </defs>
  <g id="layer1" inkscape:label="Layer 1">
    <path id="unusedPathId" fill="url(#primaryGradient)" d="M 0.000 0.000 L 24.000 0.000 L 24.000 24.000 Z"/>
  </g>
</svg>
`

func TestRun_Scenario(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "photo.jpg"), 1920, 1080)
	writeImage(t, filepath.Join(dir, "photo.png"), 3840, 2160)
	writeFile(t, filepath.Join(dir, "icon.svg"), sampleSVG)

	reg := encoder.NewRegistryWith(
		&encoder.JPEGEncoder{},
		&encoder.PNGEncoder{},
		&fakeEncoder{format: "webp"},
		&fakeEncoder{format: "avif"},
	)
	log, _ := logtest.NewNullLogger()
	p := New(Config{SourceDir: dir, Profile: profile.Get("simple")}, Deps{Registry: reg, Log: log, Video: &fakeVideo{}})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 3, res.Summary.Processed)

	w, h := dims(t, filepath.Join(dir, "photo.jpg"))
	assert.Equal(t, [2]int{1920, 1080}, [2]int{w, h})
	assert.Equal(t, "webp 1920x1080", readString(t, filepath.Join(dir, "photo.webp")))
	assert.Equal(t, "avif 1920x1080", readString(t, filepath.Join(dir, "photo.avif")))

	w, h = dims(t, filepath.Join(dir, "photo.png"))
	assert.Equal(t, [2]int{1920, 1080}, [2]int{w, h})
	assert.Equal(t, "webp 1920x1080", readString(t, filepath.Join(dir, "photo-png.webp")))
	assert.Equal(t, "avif 1920x1080", readString(t, filepath.Join(dir, "photo-png.avif")))

	svg := readString(t, filepath.Join(dir, "icon.svg"))
	assert.Less(t, len(svg), len(sampleSVG))
	assert.NotContains(t, svg, "metadata")
	assert.NoFileExists(t, filepath.Join(dir, "icon.webp"))
	assert.NoFileExists(t, filepath.Join(dir, "icon.avif"))

	m := res.Manifest
	require.Contains(t, m.Assets, "photo")
	require.Contains(t, m.Assets, "photo-png")
	require.Contains(t, m.Assets, "icon")
	assert.Len(t, m.Assets["photo"].Variants, 3)
	assert.Equal(t, 3840, m.Assets["photo-png"].Original.Width)
	assert.Equal(t, "vector", m.Assets["icon"].Original.Kind)
	assert.Empty(t, manifest.Validate(m, dir))
}

func TestRun_LFSPointerUntouched(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "big.jpg"), lfsPointer)
	writeFile(t, filepath.Join(dir, "logo.svg"), lfsPointer)
	writeImage(t, filepath.Join(dir, "small.jpg"), 40, 30)

	log, hook := logtest.NewNullLogger()
	p := New(Config{SourceDir: dir, Profile: profile.Get("simple")}, Deps{Registry: fakeRegistry(0), Log: log, Video: &fakeVideo{}})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Skipped)
	assert.Equal(t, 1, res.Summary.Processed)

	assert.Equal(t, lfsPointer, readString(t, filepath.Join(dir, "big.jpg")))
	assert.Equal(t, lfsPointer, readString(t, filepath.Join(dir, "logo.svg")))
	assert.NoFileExists(t, filepath.Join(dir, "big.webp"))
	assert.FileExists(t, filepath.Join(dir, "small.webp"))

	warnings := 0
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "LFS") {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestRun_FailureIsolation(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a-broken.jpg"), 50, 50)
	writeImage(t, filepath.Join(dir, "b-fine.jpg"), 60, 40)
	writeFile(t, filepath.Join(dir, "c-garbage.png"), "not really a png")

	log, _ := logtest.NewNullLogger()
	p := New(Config{SourceDir: dir, Profile: profile.Get("simple")}, Deps{Registry: fakeRegistry(50), Log: log, Video: &fakeVideo{}})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Processed)
	assert.Equal(t, 2, res.Summary.Failed)
	assert.Len(t, res.Errors, 4, "three variants of a-broken plus the detect error")

	assert.Equal(t, "webp 60x40", readString(t, filepath.Join(dir, "b-fine.webp")))
	assert.FileExists(t, filepath.Join(dir, "b-fine.avif"))
	assert.NoFileExists(t, filepath.Join(dir, "a-broken.webp"))

	var fe *FileError
	require.ErrorAs(t, res.Errors[len(res.Errors)-1], &fe)
	assert.Equal(t, "c-garbage.png", fe.Path)
	assert.Equal(t, StageDetect, fe.Stage)
}

func TestRun_VariantFailureIsolated(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "pic.jpg"), 60, 40)

	reg := encoder.NewRegistryWith(
		&fakeEncoder{format: "jpeg"},
		&fakeEncoder{format: "webp"},
		&fakeEncoder{format: "avif", failWidth: 60},
	)
	log, _ := logtest.NewNullLogger()
	res, err := New(Config{SourceDir: dir, Profile: profile.Get("simple")}, Deps{Registry: reg, Log: log, Video: &fakeVideo{}}).Run(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "pic.webp"))
	assert.NoFileExists(t, filepath.Join(dir, "pic.avif"))
	assert.Len(t, res.Errors, 1)
	assert.Len(t, res.Manifest.Assets["pic"].Variants, 2)
}

func TestRun_FailFast(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a-broken.jpg"), 50, 50)
	writeImage(t, filepath.Join(dir, "b-fine.jpg"), 60, 40)

	log, _ := logtest.NewNullLogger()
	p := New(Config{SourceDir: dir, Profile: profile.Get("simple"), FailFast: true}, Deps{Registry: fakeRegistry(50), Log: log, Video: &fakeVideo{}})

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a-broken.jpg")
	assert.NoFileExists(t, filepath.Join(dir, "b-fine.webp"), "run stops at the first failing file")
	assert.Equal(t, 1, res.Summary.Failed)
}

func TestRun_AllFailed(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.jpg"), 50, 50)

	log, _ := logtest.NewNullLogger()
	_, err := New(Config{SourceDir: dir, Profile: profile.Get("simple")}, Deps{Registry: fakeRegistry(50), Log: log, Video: &fakeVideo{}}).Run(context.Background())
	assert.ErrorContains(t, err, "all 1 files failed")
}

func TestRun_MissingSource(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	_, err := New(Config{SourceDir: filepath.Join(t.TempDir(), "nope")}, Deps{Registry: fakeRegistry(0), Log: log, Video: &fakeVideo{}}).Run(context.Background())
	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestRun_Responsive(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "optimized")
	writeImage(t, filepath.Join(dir, "team", "jane.jpg"), 1200, 800)
	writeImage(t, filepath.Join(dir, "tiny.png"), 300, 200)

	log, _ := logtest.NewNullLogger()
	p := New(Config{SourceDir: dir, OutputDir: out, Profile: profile.Get("responsive")}, Deps{Registry: fakeRegistry(0), Log: log, Video: &fakeVideo{}})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, out, p.ManifestDir())

	for _, name := range []string{"jane-640.jpg", "jane-640.webp", "jane-640.avif", "jane-1024.jpg", "jane-1024.webp", "jane-1024.avif"} {
		assert.FileExists(t, filepath.Join(out, "team", name))
	}
	assert.NoFileExists(t, filepath.Join(out, "team", "jane-1920.webp"), "never upscaled")
	assert.Equal(t, "webp 640x427", readString(t, filepath.Join(out, "team", "jane-640.webp")))
	assert.Equal(t, "png 300x200", readString(t, filepath.Join(out, "tiny-300.png")))

	w, h := dims(t, filepath.Join(dir, "team", "jane.jpg"))
	assert.Equal(t, [2]int{1200, 800}, [2]int{w, h}, "source untouched")

	jane := res.Manifest.Assets["team/jane"]
	require.Len(t, jane.Variants, 6)
	assert.Equal(t, "team/jane-640.jpg", jane.Variants[0].Path)

	// A second run must not pick up its own outputs.
	res, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Discovered)
}

func TestRun_Video(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "reel.mp4"), "\x00\x00\x00\x18ftypmp42 fake movie bytes")

	fv := &fakeVideo{}
	log, _ := logtest.NewNullLogger()
	res, err := New(Config{SourceDir: dir, Profile: profile.Get("simple")}, Deps{Registry: fakeRegistry(0), Log: log, Video: fv}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, fv.calls, 1)

	a := res.Manifest.Assets["reel"]
	assert.Equal(t, "video", a.Original.Kind)
	assert.Len(t, a.Variants, 2)
	assert.Equal(t, "reel.webm", a.Variants[1].Path)
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, StageVideo, res.Errors[0].Stage)
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.jpg"), 10, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	log, _ := logtest.NewNullLogger()
	_, err := New(Config{SourceDir: dir, Profile: profile.Get("simple")}, Deps{Registry: fakeRegistry(0), Log: log, Video: &fakeVideo{}}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(dir, "a.webp"))
}

func TestAssignOutputBases(t *testing.T) {
	sources := []Source{
		{Key: "photo", Ext: ".jpg", Kind: KindImage},
		{Key: "photo", Ext: ".png", Kind: KindImage},
		{Key: "photo", Ext: ".svg", Kind: KindVector},
		{Key: "team/photo", Ext: ".png", Kind: KindImage},
	}
	assert.Equal(t, []string{"photo", "photo-png", "photo-svg", "photo"}, assignOutputBases(sources))
}

func TestRun_SharedKeyAcrossKinds(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "optimized")
	writeImage(t, filepath.Join(dir, "logo.png"), 800, 400)
	writeFile(t, filepath.Join(dir, "logo.svg"), sampleSVG)

	log, _ := logtest.NewNullLogger()
	res, err := New(Config{SourceDir: dir, OutputDir: out, Profile: profile.Get("responsive")}, Deps{Registry: fakeRegistry(0), Log: log, Video: &fakeVideo{}}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Processed)
	require.Len(t, res.Manifest.Assets, 2)

	raster := res.Manifest.Assets["logo"]
	assert.Equal(t, "image", raster.Original.Kind)
	assert.NotEmpty(t, raster.Variants)
	assert.Equal(t, "logo-640.png", raster.Variants[0].Path)

	vector := res.Manifest.Assets["logo-svg"]
	assert.Equal(t, "vector", vector.Original.Kind)
	require.Len(t, vector.Variants, 1)
	assert.Equal(t, "logo.svg", vector.Variants[0].Path, "in-place output never climbs out of a root")
	assert.Equal(t, manifest.RootSource, vector.Variants[0].Root)
	assert.Equal(t, filepath.Join(dir, "logo.svg"), res.Manifest.File(out, vector.Variants[0]))
}

func TestRun_VideoOutputNotRescanned(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "clip.mp4"), "\x00\x00\x00\x18ftypmp42 fake movie bytes")

	fv := &fakeVideo{}
	log, _ := logtest.NewNullLogger()
	p := New(Config{SourceDir: dir, Profile: profile.Get("simple")}, Deps{Registry: fakeRegistry(0), Log: log, Video: fv})

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "clip.webm"))

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Discovered)
	assert.Equal(t, []string{filepath.Join(dir, "clip.mp4"), filepath.Join(dir, "clip.mp4")}, fv.calls)
	require.Len(t, res.Manifest.Assets, 1)
	assert.Equal(t, "clip.mp4", res.Manifest.Assets["clip"].Original.Path)
}

func TestRun_SimpleProfileSkipsOutputDir(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "optimized")
	writeImage(t, filepath.Join(dir, "a.jpg"), 100, 50)
	writeImage(t, filepath.Join(out, "a-640.jpg"), 100, 50)

	log, _ := logtest.NewNullLogger()
	p := New(Config{SourceDir: dir, OutputDir: out, Profile: profile.Get("simple")}, Deps{Registry: fakeRegistry(0), Log: log, Video: &fakeVideo{}})
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Discovered)
	assert.Equal(t, dir, p.ManifestDir())
	assert.FileExists(t, filepath.Join(dir, "a.webp"))
	assert.NoFileExists(t, filepath.Join(out, "a-640.webp"))
}
