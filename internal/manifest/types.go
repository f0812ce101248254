package manifest

// Manifest records every variant a local optimization run produced.
type Manifest struct {
	Version     int              `json:"version"`
	GeneratedAt string           `json:"generated_at"`
	Profile     string           `json:"profile"`
	BasePath    string           `json:"base_path"`
	BuildInfo   *BuildInfo       `json:"build_info,omitempty"`
	Assets      map[string]Asset `json:"assets"`
	Stats       Stats            `json:"stats"`
}

// BuildInfo captures run parameters for diagnostics.
type BuildInfo struct {
	SourceDir string `json:"source_dir"`
	OutputDir string `json:"output_dir"`
	FailFast  bool   `json:"fail_fast"`
}

// Asset describes a single source file and the variants generated from it.
type Asset struct {
	Original    OriginalInfo `json:"original"`
	SourceHash  string       `json:"source_hash"`  // xxhash64 of the source bytes, 16 hex chars
	AspectRatio float64      `json:"aspect_ratio"` // width / height
	Variants    []Variant    `json:"variants"`
}

// OriginalInfo holds metadata about the source file.
type OriginalInfo struct {
	Path     string  `json:"path"` // relative to the source dir
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Format   string  `json:"format"`
	Kind     string  `json:"kind"` // image, vector, video
	Size     int64   `json:"size"`
	HasAlpha bool    `json:"has_alpha,omitempty"`
	Duration float64 `json:"duration,omitempty"` // seconds, videos only
}

// Variant is one encoded output of an asset at a specific size and format.
type Variant struct {
	Format string `json:"format"` // "avif", "webp", "jpeg", "png", "svg", "mp4", "webm"
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int64  `json:"size"` // bytes on disk
	Hash   string `json:"hash"` // first 16 hex chars of xxhash64
	Path   string `json:"path"` // relative to the output dir, or the source dir when Root is "source"
	Root   string `json:"root,omitempty"`
}

// RootSource marks a variant written in place under the source dir while
// the rest of the manifest lives in a separate output dir.
const RootSource = "source"

// Stats aggregates run metrics.
type Stats struct {
	TotalInputBytes  int64 `json:"total_input_bytes"`
	TotalOutputBytes int64 `json:"total_output_bytes"`
	TotalAssets      int   `json:"total_assets"`
	TotalVariants    int   `json:"total_variants"`
	Skipped          int   `json:"skipped,omitempty"` // LFS pointers and not-smaller rewrites
	Failed           int   `json:"failed,omitempty"`
}

// SupportedManifestVersion is the current schema version.
const SupportedManifestVersion = 1
