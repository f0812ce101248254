package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the manifest written next to responsive outputs.
const FileName = "media.manifest.json"

// New creates an empty manifest with defaults.
func New(profileName, basePath string) *Manifest {
	if basePath == "" {
		basePath = "/"
	}
	return &Manifest{
		Version:     SupportedManifestVersion,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Profile:     profileName,
		BasePath:    basePath,
		Assets:      make(map[string]Asset),
	}
}

// ComputeStats recalculates aggregate statistics from assets. Skipped and
// Failed are run counters and are left as they are.
func (m *Manifest) ComputeStats() {
	s := Stats{Skipped: m.Stats.Skipped, Failed: m.Stats.Failed}
	s.TotalAssets = len(m.Assets)
	for _, a := range m.Assets {
		s.TotalInputBytes += a.Original.Size
		s.TotalVariants += len(a.Variants)
		for _, v := range a.Variants {
			s.TotalOutputBytes += v.Size
		}
	}
	m.Stats = s
}

// WriteJSON serializes the manifest to a JSON file with stable ordering,
// creating parent directories as needed.
func WriteJSON(m *Manifest, path string) error {
	m.ComputeStats()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Read loads a manifest and rejects unknown schema versions.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version != SupportedManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d (expected %d)", m.Version, SupportedManifestVersion)
	}
	if m.Assets == nil {
		m.Assets = make(map[string]Asset)
	}
	return &m, nil
}

// Root returns the directory variant paths resolve against: the recorded
// output directory while it still exists, else the directory holding the
// manifest file.
func (m *Manifest) Root(manifestPath string) string {
	if m.BuildInfo != nil && m.BuildInfo.OutputDir != "" {
		if info, err := os.Stat(m.BuildInfo.OutputDir); err == nil && info.IsDir() {
			return m.BuildInfo.OutputDir
		}
	}
	return filepath.Dir(manifestPath)
}

// File resolves a variant to its path on disk. root is the directory
// returned by Root.
func (m *Manifest) File(root string, v Variant) string {
	if v.Root == RootSource && m.BuildInfo != nil && m.BuildInfo.SourceDir != "" {
		return filepath.Join(m.BuildInfo.SourceDir, filepath.FromSlash(v.Path))
	}
	return filepath.Join(root, filepath.FromSlash(v.Path))
}
