// Package assetmap persists the key→delivery metadata lookup the frontend
// reads to resolve local image paths to CDN URLs.
package assetmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AnyUserName/mediaopt/internal/cdn"
)

// DefaultPath is where the frontend expects the map.
const DefaultPath = "src/config/cloudinaryAssets.json"

const keyPrefix = "images/"

// Entry is the per-asset summary of an upload.
type Entry struct {
	URL          string           `json:"url"`
	OptimizedURL string           `json:"optimizedUrl"`
	ThumbnailURL string           `json:"thumbnailUrl"`
	Format       string           `json:"format"`
	Width        int              `json:"width"`
	Height       int              `json:"height"`
	Bytes        int64            `json:"bytes"`
	Breakpoints  []cdn.Breakpoint `json:"breakpoints"`
	Eager        []cdn.Eager      `json:"eager"`
	PublicID     string           `json:"publicId,omitempty"`
	Source       string           `json:"source,omitempty"`
	SourceHash   string           `json:"sourceHash,omitempty"`
}

// Map is keyed by Key(publicID).
type Map map[string]Entry

// Mode selects how a run's results meet the previously written map.
type Mode string

const (
	// ModeReplace writes exactly the current run's successes.
	ModeReplace Mode = "replace"
	// ModeMerge overlays the current run onto the previous map and only
	// drops entries whose source file no longer exists.
	ModeMerge Mode = "merge"
)

// ParseMode accepts "", "replace" and "merge".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeReplace:
		return ModeReplace, nil
	case ModeMerge:
		return ModeMerge, nil
	}
	return "", fmt.Errorf("unknown asset map mode %q (want replace or merge)", s)
}

// Key maps a public ID to its asset-map key.
func Key(publicID string) string {
	id := strings.TrimPrefix(filepath.ToSlash(publicID), "/")
	if strings.HasPrefix(id, keyPrefix) {
		return id
	}
	return keyPrefix + id
}

// FromResults reduces upload results into a map. Nil results are failed
// uploads and get no entry.
func FromResults(results []*cdn.UploadResult) Map {
	m := make(Map, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		bps := r.Breakpoints
		if bps == nil {
			bps = []cdn.Breakpoint{}
		}
		eager := r.Eager
		if eager == nil {
			eager = []cdn.Eager{}
		}
		m[Key(r.PublicID)] = Entry{
			URL:          r.URL,
			OptimizedURL: r.OptimizedURL,
			ThumbnailURL: r.ThumbnailURL,
			Format:       r.Format,
			Width:        r.Width,
			Height:       r.Height,
			Bytes:        r.Bytes,
			Breakpoints:  bps,
			Eager:        eager,
			PublicID:     r.PublicID,
			Source:       r.Source,
			SourceHash:   r.SourceHash,
		}
	}
	return m
}

// Merge overlays fresh onto prev. A previous entry survives unless its
// recorded source is confirmed gone by exists; entries with no recorded
// source are kept. It returns the merged map and the removed keys.
func Merge(prev, fresh Map, exists func(source string) bool) (Map, []string) {
	out := make(Map, len(prev)+len(fresh))
	var removed []string
	for k, e := range prev {
		if _, ok := fresh[k]; ok {
			continue
		}
		if e.Source != "" && !exists(e.Source) {
			removed = append(removed, k)
			continue
		}
		out[k] = e
	}
	for k, e := range fresh {
		out[k] = e
	}
	sort.Strings(removed)
	return out, removed
}

// Load reads a map written by Write. A missing file is an empty map.
func Load(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Map{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read asset map: %w", err)
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse asset map %s: %w", path, err)
	}
	if m == nil {
		m = Map{}
	}
	return m, nil
}

// Write stores m as pretty-printed JSON, creating parent directories. The
// file is replaced atomically so readers never see a partial map.
func Write(m Map, path string) error {
	if m == nil {
		m = Map{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create asset map dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".assetmap-*.json")
	if err != nil {
		return fmt.Errorf("write asset map: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write asset map: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write asset map: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write asset map: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
