package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/AnyUserName/mediaopt/internal/assetmap"
	"github.com/AnyUserName/mediaopt/internal/manifest"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [manifest_or_asset_map]",
	Short: "Validate a manifest or a Cloudinary asset map",
	Long: `Checks a media.manifest.json (every variant exists with the recorded
size) or an asset map (every key is images/<id> and every entry has a url,
width and height). The file type is detected from its contents. Without an
argument the configured asset map is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, args []string) error {
	path := argOr(args, cfg.Cloudinary.AssetMap)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path, _ = manifestPathFor(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var problems []string
	var summary string
	if isManifest(data) {
		m, err := manifest.Read(path)
		if err != nil {
			return err
		}
		problems = manifest.Validate(m, m.Root(path))
		summary = fmt.Sprintf("%d assets, %d variants, all files present", m.Stats.TotalAssets, m.Stats.TotalVariants)
	} else {
		if problems, err = assetmap.ValidateFile(path); err != nil {
			return err
		}
		summary = "asset map entries are complete"
	}

	if len(problems) == 0 {
		fmt.Printf("  ✓ %s is valid\n", path)
		fmt.Printf("  ✓ %s\n", summary)
		return nil
	}

	fmt.Printf("  ✗ %s has %d error(s):\n", path, len(problems))
	for _, p := range problems {
		fmt.Printf("    • %s\n", p)
	}
	return fmt.Errorf("validation failed with %d errors", len(problems))
}

// isManifest tells a manifest from an asset map by its top-level keys.
func isManifest(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	_, hasVersion := probe["version"]
	_, hasAssets := probe["assets"]
	return hasVersion && hasAssets
}
