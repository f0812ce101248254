package encoder

import (
	"fmt"
	"strings"

	"github.com/AnyUserName/mediaopt/internal/toolchain"
)

// Registry holds all encoders and answers which ones apply to a source.
type Registry struct {
	encoders map[string]Encoder
}

// NewRegistry creates a registry with the built-in encoders. External
// encoders are probed lazily through r.
func NewRegistry(r toolchain.Runner) *Registry {
	return NewRegistryWith(
		NewAVIFEncoder(r),
		NewWebPEncoder(r),
		&JPEGEncoder{},
		&PNGEncoder{},
	)
}

// NewRegistryWith creates a registry from explicit encoders. Later entries
// replace earlier ones with the same format.
func NewRegistryWith(encs ...Encoder) *Registry {
	reg := &Registry{encoders: make(map[string]Encoder)}
	for _, enc := range encs {
		reg.encoders[enc.Format()] = enc
	}
	return reg
}

// Get returns an encoder for the given format, or nil if unavailable.
func (r *Registry) Get(format string) Encoder {
	enc := r.encoders[strings.ToLower(format)]
	if enc == nil || !enc.Available() {
		return nil
	}
	return enc
}

// Available returns all available format names.
func (r *Registry) Available() []string {
	var result []string
	// Maintain priority order.
	for _, f := range []string{"avif", "webp", "jpeg", "png"} {
		if r.Get(f) != nil {
			result = append(result, f)
		}
	}
	return result
}

// FormatsFor lists the output formats for a source format: the source's
// own format when it is JPEG or PNG, then WebP and AVIF unconditionally.
func FormatsFor(sourceFormat string) []string {
	switch strings.ToLower(sourceFormat) {
	case "jpeg", "jpg":
		return []string{"jpeg", "webp", "avif"}
	case "png":
		return []string{"png", "webp", "avif"}
	default:
		return []string{"webp", "avif"}
	}
}

// Require returns an error naming every requested format without an
// available encoder.
func (r *Registry) Require(formats ...string) error {
	var missing []string
	for _, f := range formats {
		if r.Get(f) == nil {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrUnavailable, strings.Join(missing, ", "))
	}
	return nil
}

// String returns a summary of available encoders.
func (r *Registry) String() string {
	avail := r.Available()
	if len(avail) == 0 {
		return "no encoders available"
	}
	return fmt.Sprintf("encoders: %s", strings.Join(avail, ", "))
}
