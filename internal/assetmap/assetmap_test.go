package assetmap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/AnyUserName/mediaopt/internal/cdn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(id string) *cdn.UploadResult {
	return &cdn.UploadResult{
		PublicID: id,
		URL:      "https://res.cloudinary.com/demo/image/upload/v1/" + id + ".jpg",
		Format:   "jpg",
		Width:    1200,
		Height:   800,
		Bytes:    1000,
		Source:   id + ".jpg",
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "images/team/jane", Key("team/jane"))
	assert.Equal(t, "images/team/jane", Key("images/team/jane"))
	assert.Equal(t, "images/hero", Key("/hero"))
}

func TestFromResults_SkipsFailures(t *testing.T) {
	m := FromResults([]*cdn.UploadResult{result("team/jane"), nil, result("hero")})
	require.Len(t, m, 2)
	e := m["images/team/jane"]
	assert.Equal(t, 1200, e.Width)
	assert.NotNil(t, e.Breakpoints, "empty arrays, not null")
	assert.NotNil(t, e.Eager)
}

func TestWriteAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src", "config", "cloudinaryAssets.json")
	m := FromResults([]*cdn.UploadResult{result("team/jane")})
	require.NoError(t, Write(m, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Contains(t, raw, "images/team/jane")
	for _, f := range []string{"url", "optimizedUrl", "thumbnailUrl", "format", "width", "height", "bytes", "breakpoints", "eager"} {
		assert.Contains(t, raw["images/team/jane"], f)
	}

	errs, err := ValidateFile(path)
	require.NoError(t, err)
	assert.Empty(t, errs)

	entries, _ := os.ReadDir(filepath.Dir(path))
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestWrite_FullReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.json")
	require.NoError(t, Write(FromResults([]*cdn.UploadResult{result("a"), result("b")}), path))
	require.NoError(t, Write(FromResults([]*cdn.UploadResult{result("a")}), path))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m, 1)
}

func TestValidate_Problems(t *testing.T) {
	errs, err := Validate([]byte(`{
		"images/": {"url": "u", "width": 1, "height": 1},
		"photos/x": {"url": "u", "width": 1, "height": 1},
		"images/y": {"width": 1},
		"images/z": {"url": "", "width": 1, "height": null}
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{
		`key "images/": want images/<id>`,
		`key "images/y": missing url`,
		`key "images/y": missing height`,
		`key "images/z": missing height`,
		`key "images/z": empty url`,
		`key "photos/x": want images/<id>`,
	}, errs)

	_, err = Validate([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestLoad_Missing(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestMerge(t *testing.T) {
	prev := FromResults([]*cdn.UploadResult{result("kept"), result("deleted"), result("updated")})
	prev["images/legacy"] = Entry{URL: "u", Width: 1, Height: 1}

	fresh := FromResults([]*cdn.UploadResult{result("updated"), result("new")})
	fresh["images/updated"] = Entry{URL: "fresh", Width: 2, Height: 2, Source: "updated.jpg"}

	onDisk := map[string]bool{"kept.jpg": true, "updated.jpg": true, "new.jpg": true}
	m, removed := Merge(prev, fresh, func(src string) bool { return onDisk[src] })

	assert.Equal(t, []string{"images/deleted"}, removed)
	assert.Len(t, m, 4)
	assert.Contains(t, m, "images/kept", "failed re-upload keeps previous entry")
	assert.Contains(t, m, "images/legacy", "entries without a source are kept")
	assert.Equal(t, "fresh", m["images/updated"].URL)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeReplace, m)
	m, err = ParseMode("Merge")
	require.NoError(t, err)
	assert.Equal(t, ModeMerge, m)
	_, err = ParseMode("append")
	assert.Error(t, err)
}
