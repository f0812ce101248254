package profile

import "math"

// Profile defines image processing parameters for one optimizer mode.
type Profile struct {
	Name string

	// MaxWidth caps the width of every output. Sources wider than this are
	// scaled down before encoding; narrower sources are never enlarged.
	MaxWidth int

	// Widths are the responsive breakpoints. Only used when Responsive is set.
	Widths []int

	// Responsive writes <base>-<w>.<ext> into the output directory instead
	// of rewriting siblings of the source file.
	Responsive bool

	JPEGQuality int
	PNGPalette  bool // reduce to a palette when the image has ≤256 colors
	WebPQuality int
	WebPEffort  int // cwebp -m, 0=fast 6=best
	AVIFQuality int
	AVIFSpeed   int // avifenc --speed, 0=slowest/best 10=fastest
}

// Built-in profiles.
var profiles = map[string]Profile{
	"simple": {
		Name:        "simple",
		MaxWidth:    1920,
		JPEGQuality: 82,
		PNGPalette:  true,
		WebPQuality: 75,
		WebPEffort:  6,
		AVIFQuality: 65,
		AVIFSpeed:   0,
	},
	"responsive": {
		Name:        "responsive",
		MaxWidth:    1920,
		Widths:      []int{640, 1024, 1920},
		Responsive:  true,
		JPEGQuality: 82,
		PNGPalette:  true,
		WebPQuality: 75,
		WebPEffort:  6,
		AVIFQuality: 65,
		AVIFSpeed:   0,
	},
}

// Get returns a profile by name. Falls back to simple if unknown.
func Get(name string) Profile {
	if p, ok := profiles[name]; ok {
		p.Widths = append([]int(nil), p.Widths...)
		return p
	}
	p := profiles["simple"]
	p.Name = name // preserve requested name
	return p
}

// Names lists the built-in profile names.
func Names() []string {
	return []string{"simple", "responsive"}
}

// FitWidth scales (width, height) down so that width does not exceed maxWidth,
// preserving the aspect ratio by rounding the height. Dimensions at or below
// the limit pass through unchanged: images are never enlarged.
func FitWidth(width, height, maxWidth int) (int, int) {
	if maxWidth <= 0 || width <= maxWidth {
		return width, height
	}
	h := int(math.Round(float64(height) * float64(maxWidth) / float64(width)))
	if h < 1 {
		h = 1
	}
	return maxWidth, h
}

// EffectiveWidths returns the responsive widths that apply to an image of
// the given width, skipping any that would upscale.
func (p Profile) EffectiveWidths(originalWidth int) []int {
	seen := map[int]bool{}
	var result []int

	for _, w := range p.Widths {
		if w > originalWidth || w <= 0 {
			continue
		}
		if !seen[w] {
			seen[w] = true
			result = append(result, w)
		}
	}

	// Always include original width if nothing else fits
	// (for cases where original is smaller than smallest target).
	if len(result) == 0 && originalWidth > 0 {
		result = append(result, originalWidth)
	}

	return result
}
