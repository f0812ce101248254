package pipeline

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/AnyUserName/mediaopt/internal/encoder"
	"github.com/AnyUserName/mediaopt/internal/hasher"
	"github.com/AnyUserName/mediaopt/internal/manifest"
	"github.com/AnyUserName/mediaopt/internal/profile"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// processResult holds the result of processing a single source file.
type processResult struct {
	key     string
	asset   *manifest.Asset
	errs    []*FileError
	skipped bool // LFS pointer, nothing touched
	kept    int  // outputs left as they were because the rewrite was not smaller
}

func (r *processResult) fail(src Source, stage string, err error) {
	r.errs = append(r.errs, &FileError{Path: src.RelPath, Stage: stage, Err: err})
}

// process dispatches one source to its path. outBase is the base name its
// image outputs use.
func (p *Pipeline) process(ctx context.Context, src Source, outBase string) processResult {
	result := processResult{key: manifestKey(src, outBase)}
	log := p.log.WithFields(logrus.Fields{"file": src.RelPath, "kind": src.Kind})

	pointer, err := IsLFSPointer(src.AbsPath)
	if err != nil {
		result.fail(src, StageDetect, err)
		return result
	}
	if pointer {
		log.Warn("skipping Git LFS pointer; run git lfs pull to fetch the real file")
		result.skipped = true
		return result
	}

	sourceHash, err := hasher.FileHash(src.AbsPath, hasher.DefaultLen)
	if err != nil {
		result.fail(src, StageHash, err)
		return result
	}

	switch src.Kind {
	case KindVector:
		p.processVector(src, sourceHash, &result, log)
	case KindVideo:
		p.processVideo(ctx, src, sourceHash, &result, log)
	default:
		p.processImage(ctx, src, outBase, sourceHash, &result, log)
	}
	return result
}

// processImage decodes, resizes and encodes every output format. Each
// variant fails on its own.
func (p *Pipeline) processImage(ctx context.Context, src Source, outBase, sourceHash string, result *processResult, log logrus.FieldLogger) {
	sniffed, err := SniffFormat(src.AbsPath)
	if err != nil {
		result.fail(src, StageDetect, err)
		return
	}
	if sniffed == "" || sniffed == "svg" {
		result.fail(src, StageDetect, fmt.Errorf("content is not a raster image"))
		return
	}
	if sniffed != src.Format {
		log.WithField("content", sniffed).Warn("extension does not match content")
	}

	img, err := imaging.Open(src.AbsPath, imaging.AutoOrientation(true))
	if err != nil {
		result.fail(src, StageDecode, err)
		return
	}

	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()
	if origW == 0 || origH == 0 {
		result.fail(src, StageDecode, fmt.Errorf("empty image"))
		return
	}

	result.asset = &manifest.Asset{
		Original: manifest.OriginalInfo{
			Path:     src.RelPath,
			Width:    origW,
			Height:   origH,
			Format:   src.Format,
			Kind:     string(KindImage),
			Size:     src.Size,
			HasAlpha: hasAlpha(img),
		},
		SourceHash:  sourceHash,
		AspectRatio: float64(origW) / float64(origH),
	}

	prof := p.cfg.Profile
	formats := encoder.FormatsFor(src.Format)
	keyDir := filepath.Dir(filepath.FromSlash(src.Key))

	for _, w := range p.targetWidths(origW) {
		tw, th := profile.FitWidth(origW, origH, w)
		resized := img
		if tw != origW || th != origH {
			resized = imaging.Resize(img, tw, th, imaging.Lanczos)
		}

		for _, format := range formats {
			if err := ctx.Err(); err != nil {
				result.fail(src, StageEncode, err)
				return
			}

			enc := p.registry.Get(format)
			if enc == nil {
				result.fail(src, StageEncode, fmt.Errorf("%s: %w", format, encoder.ErrUnavailable))
				continue
			}

			data, err := enc.Encode(ctx, resized, paramsFor(prof, format))
			if err != nil {
				log.WithError(err).WithField("format", format).Error("encode failed")
				result.fail(src, StageEncode, fmt.Errorf("%s@%d: %w", format, tw, err))
				continue
			}

			var dest string
			inPlace := false
			if prof.Responsive {
				dest = filepath.Join(p.cfg.OutputDir, keyDir, fmt.Sprintf("%s-%d.%s", outBase, tw, enc.Extension()))
			} else if format == src.Format {
				dest = src.AbsPath
				inPlace = true
			} else {
				dest = filepath.Join(filepath.Dir(src.AbsPath), outBase+"."+enc.Extension())
			}

			if inPlace && tw == origW && int64(len(data)) >= src.Size {
				log.WithFields(logrus.Fields{"format": format, "encoded": len(data), "original": src.Size}).
					Debug("keeping original, re-encode not smaller")
				result.kept++
				p.addVariant(result.asset, format, tw, th, dest, src.Size, sourceHash)
				continue
			}

			if err := writeFileAtomic(dest, data); err != nil {
				result.fail(src, StageWrite, err)
				continue
			}
			p.addVariant(result.asset, format, tw, th, dest, int64(len(data)), hasher.ContentHash(data, hasher.DefaultLen))
			log.WithFields(logrus.Fields{"format": format, "width": tw, "height": th, "bytes": len(data)}).Debug("wrote variant")
		}
	}
}

// targetWidths lists the output widths for a source: the profile's
// breakpoints that neither upscale nor exceed MaxWidth, or the single
// fitted width for non-responsive profiles.
func (p *Pipeline) targetWidths(origW int) []int {
	prof := p.cfg.Profile
	fitted, _ := profile.FitWidth(origW, 1, prof.MaxWidth)
	if !prof.Responsive {
		return []int{fitted}
	}
	var widths []int
	for _, w := range prof.EffectiveWidths(origW) {
		if prof.MaxWidth <= 0 || w <= prof.MaxWidth {
			widths = append(widths, w)
		}
	}
	if len(widths) == 0 {
		widths = []int{fitted}
	}
	return widths
}

// processVector optimizes an SVG in place when that makes it smaller.
func (p *Pipeline) processVector(src Source, sourceHash string, result *processResult, log logrus.FieldLogger) {
	data, err := os.ReadFile(src.AbsPath)
	if err != nil {
		result.fail(src, StageVector, err)
		return
	}

	out, err := p.svg.Optimize(data)
	if err != nil {
		result.fail(src, StageVector, err)
		return
	}

	result.asset = &manifest.Asset{
		Original: manifest.OriginalInfo{
			Path:   src.RelPath,
			Format: "svg",
			Kind:   string(KindVector),
			Size:   src.Size,
		},
		SourceHash: sourceHash,
	}

	if len(out) >= len(data) {
		result.kept++
		p.addVariant(result.asset, "svg", 0, 0, src.AbsPath, int64(len(data)), sourceHash)
		return
	}
	if err := writeFileAtomic(src.AbsPath, out); err != nil {
		result.fail(src, StageWrite, err)
		return
	}
	p.addVariant(result.asset, "svg", 0, 0, src.AbsPath, int64(len(out)), hasher.ContentHash(out, hasher.DefaultLen))
	log.WithFields(logrus.Fields{"before": len(data), "after": len(out)}).Debug("optimized svg")
}

// processVideo hands the file to the transcoder and records whatever
// outputs succeeded.
func (p *Pipeline) processVideo(ctx context.Context, src Source, sourceHash string, result *processResult, log logrus.FieldLogger) {
	res := p.video.Transcode(ctx, src.AbsPath)

	result.asset = &manifest.Asset{
		Original: manifest.OriginalInfo{
			Path:     src.RelPath,
			Width:    res.Info.Width,
			Height:   res.Info.Height,
			Format:   src.Format,
			Kind:     string(KindVideo),
			Size:     src.Size,
			Duration: res.Info.Duration,
		},
		SourceHash: sourceHash,
	}
	if res.Info.Height > 0 {
		result.asset.AspectRatio = float64(res.Info.Width) / float64(res.Info.Height)
	}

	seen := map[string]bool{}
	for _, out := range res.Outputs {
		if out.Err != nil {
			result.fail(src, StageVideo, out.Err)
			continue
		}
		if out.Kept {
			result.kept++
		}
		if seen[out.Path] {
			continue
		}
		seen[out.Path] = true

		hash, err := hasher.FileHash(out.Path, hasher.DefaultLen)
		if err != nil {
			result.fail(src, StageHash, err)
			continue
		}
		info, err := os.Stat(out.Path)
		if err != nil {
			result.fail(src, StageVideo, err)
			continue
		}
		format := out.Format
		if format == "" {
			format = src.Format
		}
		p.addVariant(result.asset, format, res.Box.Width, res.Box.Height, out.Path, info.Size(), hash)
	}
	if len(result.asset.Variants) > 0 {
		log.WithField("outputs", len(result.asset.Variants)).Debug("transcoded video")
	}
}

func (p *Pipeline) addVariant(a *manifest.Asset, format string, w, h int, path string, size int64, hash string) {
	v := manifest.Variant{
		Format: format,
		Width:  w,
		Height: h,
		Size:   size,
		Hash:   hash,
	}
	// In-place outputs (SVG, video) of a responsive run live under the
	// source root, not the output dir.
	rel, ok := relWithin(p.ManifestDir(), path)
	if !ok {
		if srel, sok := relWithin(p.cfg.SourceDir, path); sok {
			rel = srel
			v.Root = manifest.RootSource
		}
	}
	v.Path = filepath.ToSlash(rel)
	a.Variants = append(a.Variants, v)
}

// relWithin returns path relative to base when it lies inside base.
func relWithin(base, path string) (string, bool) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path, false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return rel, false
	}
	return rel, true
}

// paramsFor maps profile settings to one encoder's knobs.
func paramsFor(prof profile.Profile, format string) encoder.Params {
	switch format {
	case "jpeg":
		return encoder.Params{Quality: prof.JPEGQuality}
	case "png":
		return encoder.Params{Palette: prof.PNGPalette}
	case "webp":
		return encoder.Params{Quality: prof.WebPQuality, Effort: prof.WebPEffort}
	case "avif":
		return encoder.Params{Quality: prof.AVIFQuality, Effort: prof.AVIFSpeed}
	}
	return encoder.Params{}
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}

// manifestKey is the source key with the disambiguated base name.
func manifestKey(src Source, outBase string) string {
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(src.Key)))
	if dir == "." {
		return outBase
	}
	return dir + "/" + outBase
}

// assignOutputBases gives every source the base name its outputs and
// manifest key use. Sources are sorted, so the first of photo.jpg/photo.png
// keeps "photo" and the later one becomes "photo-png" instead of
// overwriting photo.webp. Vectors and videos take part too so that
// logo.png and logo.svg get separate manifest entries.
func assignOutputBases(sources []Source) []string {
	bases := make([]string, len(sources))
	taken := map[string]bool{}
	for i, src := range sources {
		base := filepath.Base(filepath.FromSlash(src.Key))
		dir := filepath.Dir(filepath.FromSlash(src.Key))
		if taken[filepath.Join(dir, base)] {
			base = base + "-" + strings.TrimPrefix(src.Ext, ".")
		}
		taken[filepath.Join(dir, base)] = true
		bases[i] = base
	}
	return bases
}

// writeFileAtomic writes through a temp sibling and renames it into place
// so a failed write never leaves a truncated file. Identical content is
// not rewritten.
func writeFileAtomic(path string, data []byte) error {
	if hasher.SameContent(path, data) {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
