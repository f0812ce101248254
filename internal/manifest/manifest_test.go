package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleManifest() *Manifest {
	m := New("responsive", "/portfolio/")
	m.BuildInfo = &BuildInfo{SourceDir: "public/images", OutputDir: "public/images/optimized"}
	m.Assets["team/jane"] = Asset{
		Original: OriginalInfo{
			Path: "team/jane.jpg", Width: 800, Height: 600,
			Format: "jpeg", Kind: "image", Size: 100000,
		},
		SourceHash:  "0123456789abcdef",
		AspectRatio: 1.3333,
		Variants: []Variant{
			{Format: "webp", Width: 640, Height: 480, Size: 5, Hash: "abcd1234abcd1234", Path: "team/jane-640.webp"},
		},
	}
	return m
}

func TestManifestRoundtrip(t *testing.T) {
	m := sampleManifest()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", FileName)
	if err := WriteJSON(m, path); err != nil {
		t.Fatalf("write: %v", err)
	}

	m2, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if m2.Version != SupportedManifestVersion {
		t.Errorf("version: got %d, want %d", m2.Version, SupportedManifestVersion)
	}
	if m2.Profile != "responsive" {
		t.Errorf("profile: got %q", m2.Profile)
	}
	if m2.BasePath != "/portfolio/" {
		t.Errorf("base_path: got %q", m2.BasePath)
	}
	if m2.BuildInfo == nil || m2.BuildInfo.SourceDir != "public/images" {
		t.Fatal("build_info not preserved")
	}

	a, ok := m2.Assets["team/jane"]
	if !ok {
		t.Fatal("asset team/jane missing")
	}
	if a.SourceHash != "0123456789abcdef" {
		t.Errorf("source_hash: got %q", a.SourceHash)
	}
	if len(a.Variants) != 1 || a.Variants[0].Format != "webp" {
		t.Errorf("variants: got %+v", a.Variants)
	}

	if m2.Stats.TotalAssets != 1 {
		t.Errorf("total_assets: got %d", m2.Stats.TotalAssets)
	}
	if m2.Stats.TotalVariants != 1 {
		t.Errorf("total_variants: got %d", m2.Stats.TotalVariants)
	}
	if m2.Stats.TotalInputBytes != 100000 || m2.Stats.TotalOutputBytes != 5 {
		t.Errorf("byte totals: got %d / %d", m2.Stats.TotalInputBytes, m2.Stats.TotalOutputBytes)
	}
}

func TestComputeStatsKeepsRunCounters(t *testing.T) {
	m := sampleManifest()
	m.Stats.Skipped = 2
	m.Stats.Failed = 1
	m.ComputeStats()
	if m.Stats.Skipped != 2 || m.Stats.Failed != 1 {
		t.Errorf("run counters reset: %+v", m.Stats)
	}
}

func TestManifestVersion(t *testing.T) {
	m := New("v-test", "")
	if m.Version != SupportedManifestVersion {
		t.Errorf("new manifest version: got %d, want %d", m.Version, SupportedManifestVersion)
	}
	if m.BasePath != "/" {
		t.Errorf("default base path: got %q", m.BasePath)
	}
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(`{"version": 7, "assets": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("expected version error")
	}
}

func TestManifestIgnoresUnknownFields(t *testing.T) {
	raw := `{
		"version": 1,
		"generated_at": "2025-01-01T00:00:00Z",
		"profile": "test",
		"base_path": "/",
		"future_field": "should be ignored",
		"build_info": { "source_dir": "public", "output_dir": "out", "new_flag": true },
		"assets": {},
		"stats": { "total_input_bytes": 0, "total_output_bytes": 0, "total_assets": 0, "total_variants": 0, "new_stat": 42 }
	}`

	var m Manifest
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal with unknown fields: %v", err)
	}
	if m.Version != 1 {
		t.Errorf("version: got %d", m.Version)
	}
	if m.BuildInfo == nil || m.BuildInfo.OutputDir != "out" {
		t.Error("build_info not parsed correctly")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	m := sampleManifest()
	m.ComputeStats()

	errs := Validate(m, dir)
	if len(errs) != 1 || !strings.Contains(errs[0], "file not found") {
		t.Fatalf("missing file: got %v", errs)
	}

	if err := os.MkdirAll(filepath.Join(dir, "team"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "team", "jane-640.webp"), []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}
	if errs := Validate(m, dir); len(errs) != 0 {
		t.Fatalf("valid manifest: got %v", errs)
	}

	m.Stats.TotalVariants = 9
	if errs := Validate(m, dir); len(errs) != 1 || !strings.Contains(errs[0], "total_variants") {
		t.Fatalf("stats mismatch: got %v", errs)
	}
}

func TestValidateAllowsDimensionlessSVG(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "icon.svg"), []byte("<svg/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := New("simple", "/")
	m.Assets["icon"] = Asset{
		Original:   OriginalInfo{Path: "icon.svg", Format: "svg", Kind: "vector", Size: 40},
		SourceHash: "0123456789abcdef",
		Variants:   []Variant{{Format: "svg", Size: 6, Hash: "fedcba9876543210", Path: "icon.svg"}},
	}
	m.ComputeStats()
	if errs := Validate(m, dir); len(errs) != 0 {
		t.Fatalf("got %v", errs)
	}
}

func TestRoot(t *testing.T) {
	out := t.TempDir()
	m := New("responsive", "/")
	m.BuildInfo = &BuildInfo{OutputDir: out}
	if got := m.Root("/elsewhere/media.manifest.json"); got != out {
		t.Errorf("existing output dir: got %q", got)
	}

	m.BuildInfo.OutputDir = filepath.Join(out, "moved-away")
	if got := m.Root(filepath.Join("ci", "artifacts", FileName)); got != filepath.Join("ci", "artifacts") {
		t.Errorf("stale output dir: got %q", got)
	}

	m.BuildInfo = nil
	if got := m.Root(FileName); got != "." {
		t.Errorf("no build info: got %q", got)
	}
}

func TestFileAndValidateSourceRootedVariant(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "logo.svg"), []byte("<svg/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New("responsive", "/")
	m.BuildInfo = &BuildInfo{SourceDir: src, OutputDir: out}
	v := Variant{Format: "svg", Size: 6, Hash: "abc", Path: "logo.svg", Root: RootSource}
	m.Assets["logo-svg"] = Asset{
		Original:   OriginalInfo{Path: "logo.svg", Kind: "vector", Size: 6},
		SourceHash: "abc",
		Variants:   []Variant{v},
	}
	m.ComputeStats()

	if got := m.File(out, v); got != filepath.Join(src, "logo.svg") {
		t.Errorf("source-rooted file: got %q", got)
	}
	v.Root = ""
	if got := m.File(out, v); got != filepath.Join(out, "logo.svg") {
		t.Errorf("output-rooted file: got %q", got)
	}
	if errs := Validate(m, out); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}
