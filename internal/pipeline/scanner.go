package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ryanuber/go-glob"
)

// ErrSourceMissing is returned by RequireDir when the source root is absent.
var ErrSourceMissing = errors.New("source directory not found")

// Kind classifies a source by the processing path it takes.
type Kind string

const (
	KindImage  Kind = "image"
	KindVector Kind = "vector"
	KindVideo  Kind = "video"
)

// extensionKinds lists recognized source extensions. WebP and AVIF are
// outputs of the image path, so they are not picked up as sources. WebM is
// both a source and a video output; see dropWebMSiblings.
var extensionKinds = map[string]Kind{
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".gif":  KindImage,
	".bmp":  KindImage,
	".tiff": KindImage,
	".tif":  KindImage,
	".svg":  KindVector,
	".mp4":  KindVideo,
	".mov":  KindVideo,
	".m4v":  KindVideo,
	".webm": KindVideo,
}

// Source represents a discovered media file.
type Source struct {
	// AbsPath is the path to the file on disk.
	AbsPath string
	// RelPath is the path relative to the scan root, forward slashes.
	RelPath string
	// Key is the asset key (relpath without extension).
	Key string
	// Ext is the lower-cased extension including the dot.
	Ext string
	// Format is the normalized source format (jpeg, png, svg, mp4, ...).
	Format string
	Kind   Kind
	// Size is the file size in bytes.
	Size int64
}

// ScanOptions narrows what Scan returns.
type ScanOptions struct {
	// Kinds limits results to these kinds; empty means all.
	Kinds []Kind
	// Include and Exclude are glob patterns ("*" wildcard) matched against
	// RelPath. An empty Include matches everything.
	Include []string
	Exclude []string
	// SkipDirs are directories never descended into (e.g. the output dir
	// when it lives under the source root).
	SkipDirs []string
	// FollowSymlinks descends into symlinked directories and picks up
	// symlinked files. Each real directory is visited at most once.
	FollowSymlinks bool
	// MaxDepth bounds recursion below the root; 0 means unlimited.
	MaxDepth int
}

// RequireDir is the shared precondition for every entry point: the source
// root must exist and be a directory.
func RequireDir(root string) error {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSourceMissing, root)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrSourceMissing, root)
	}
	return nil
}

// Scan walks root and returns all matching sources sorted by RelPath.
// A missing root yields an empty list; callers run RequireDir first.
func Scan(root string, opts ScanOptions) ([]Source, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	s := &scanner{
		root:    root,
		opts:    opts,
		visited: map[string]bool{},
		skip:    map[string]bool{},
		kinds:   map[Kind]bool{},
	}
	for _, k := range opts.Kinds {
		s.kinds[k] = true
	}
	for _, d := range opts.SkipDirs {
		if real, err := realPath(d); err == nil {
			s.skip[real] = true
		}
	}

	if err := s.walk(root, "", 0); err != nil {
		return nil, err
	}
	sort.Slice(s.sources, func(i, j int) bool { return s.sources[i].RelPath < s.sources[j].RelPath })
	return dropWebMSiblings(s.sources), nil
}

// dropWebMSiblings removes clip.webm when clip.mp4 (or another non-WebM
// video) is also present: the WebM is that video's transcoder output.
func dropWebMSiblings(sources []Source) []Source {
	videos := map[string]bool{}
	for _, src := range sources {
		if src.Kind == KindVideo && src.Ext != ".webm" {
			videos[src.Key] = true
		}
	}
	out := sources[:0]
	for _, src := range sources {
		if src.Ext == ".webm" && videos[src.Key] {
			continue
		}
		out = append(out, src)
	}
	return out
}

type scanner struct {
	root    string
	opts    ScanOptions
	visited map[string]bool // real directory paths
	skip    map[string]bool
	kinds   map[Kind]bool
	sources []Source
}

func (s *scanner) walk(dir, rel string, depth int) error {
	real, err := realPath(dir)
	if err != nil {
		return err
	}
	if s.visited[real] || s.skip[real] {
		return nil
	}
	s.visited[real] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)
		relPath := name
		if rel != "" {
			relPath = rel + "/" + name
		}

		info, err := e.Info()
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			if !s.opts.FollowSymlinks {
				continue
			}
			if info, err = os.Stat(path); err != nil {
				// Dangling link.
				continue
			}
		}

		if info.IsDir() {
			// Skip hidden directories.
			if strings.HasPrefix(name, ".") {
				continue
			}
			if s.opts.MaxDepth > 0 && depth+1 > s.opts.MaxDepth {
				continue
			}
			if err := s.walk(path, relPath, depth+1); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		if src, ok := s.match(path, relPath, info.Size()); ok {
			s.sources = append(s.sources, src)
		}
	}
	return nil
}

func (s *scanner) match(path, relPath string, size int64) (Source, bool) {
	ext := strings.ToLower(filepath.Ext(relPath))
	kind, ok := extensionKinds[ext]
	if !ok {
		return Source{}, false
	}
	if len(s.kinds) > 0 && !s.kinds[kind] {
		return Source{}, false
	}
	if !matchAny(s.opts.Include, relPath, true) || matchAny(s.opts.Exclude, relPath, false) {
		return Source{}, false
	}

	// Key: relative path without extension, using forward slashes.
	key := relPath[:len(relPath)-len(ext)]

	return Source{
		AbsPath: path,
		RelPath: relPath,
		Key:     key,
		Ext:     ext,
		Format:  formatName(ext),
		Kind:    kind,
		Size:    size,
	}, true
}

// formatName normalizes an extension to a format name.
func formatName(ext string) string {
	format := strings.TrimPrefix(ext, ".")
	switch format {
	case "jpg":
		return "jpeg"
	case "tif":
		return "tiff"
	}
	return format
}

func matchAny(patterns []string, relPath string, emptyResult bool) bool {
	if len(patterns) == 0 {
		return emptyResult
	}
	for _, p := range patterns {
		if glob.Glob(p, relPath) {
			return true
		}
	}
	return false
}

func realPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
