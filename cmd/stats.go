package cmd

import (
	"fmt"
	"sort"

	"github.com/AnyUserName/mediaopt/internal/manifest"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <out_dir_or_manifest>",
	Short: "Display statistics for a manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, args []string) error {
	path, err := manifestPathFor(args[0])
	if err != nil {
		return err
	}
	m, err := manifest.Read(path)
	if err != nil {
		return err
	}
	printStats(m)
	return nil
}

func printStats(m *manifest.Manifest) {
	fmt.Println()
	fmt.Printf("  Manifest version: %d\n", m.Version)
	fmt.Printf("  Generated:        %s\n", m.GeneratedAt)
	fmt.Printf("  Profile:          %s\n", m.Profile)
	fmt.Printf("  Base path:        %s\n", m.BasePath)
	if m.BuildInfo != nil {
		fmt.Printf("  Source:           %s\n", m.BuildInfo.SourceDir)
		fmt.Printf("  Output:           %s\n", m.BuildInfo.OutputDir)
	}
	fmt.Println()

	s := m.Stats
	fmt.Printf("  Total assets:     %d\n", s.TotalAssets)
	fmt.Printf("  Total variants:   %d\n", s.TotalVariants)
	if s.Skipped > 0 {
		fmt.Printf("  Skipped:          %d\n", s.Skipped)
	}
	if s.Failed > 0 {
		fmt.Printf("  Failed:           %d\n", s.Failed)
	}
	fmt.Printf("  Input size:       %s\n", humanize.Bytes(uint64(s.TotalInputBytes)))
	fmt.Printf("  Output size:      %s\n", humanize.Bytes(uint64(s.TotalOutputBytes)))
	if s.TotalInputBytes > 0 {
		ratio := float64(s.TotalOutputBytes) / float64(s.TotalInputBytes) * 100
		fmt.Printf("  Compression:      %.1f%% of original\n", ratio)
	}
	fmt.Println()

	kinds := map[string]int{}
	for _, a := range m.Assets {
		kinds[a.Original.Kind]++
	}
	fmt.Println("  Kind breakdown:")
	for _, k := range []string{"image", "vector", "video"} {
		if n, ok := kinds[k]; ok {
			fmt.Printf("    %-6s  %4d assets\n", k, n)
		}
	}
	fmt.Println()

	formatStats := map[string]struct {
		count int
		bytes int64
	}{}
	for _, a := range m.Assets {
		for _, v := range a.Variants {
			fs := formatStats[v.Format]
			fs.count++
			fs.bytes += v.Size
			formatStats[v.Format] = fs
		}
	}
	fmt.Println("  Format breakdown:")
	for _, f := range detectOutputFormats(m) {
		fs := formatStats[f]
		fmt.Printf("    %-6s  %4d files  %s\n", f, fs.count, humanize.Bytes(uint64(fs.bytes)))
	}
	fmt.Println()

	widthStats := map[int]int{}
	for _, a := range m.Assets {
		for _, v := range a.Variants {
			if v.Width > 0 {
				widthStats[v.Width]++
			}
		}
	}
	if len(widthStats) > 0 {
		var widths []int
		for w := range widthStats {
			widths = append(widths, w)
		}
		sort.Ints(widths)
		fmt.Println("  Width breakdown:")
		for _, w := range widths {
			fmt.Printf("    %5dpx  %4d variants\n", w, widthStats[w])
		}
		fmt.Println()
	}

	var warnings []string
	for key, a := range m.Assets {
		if len(a.Variants) == 0 {
			warnings = append(warnings, fmt.Sprintf("asset %q has no variants", key))
		}
	}
	sort.Strings(warnings)
	if len(warnings) > 0 {
		fmt.Printf("  Warnings (%d):\n", len(warnings))
		for _, w := range warnings {
			fmt.Printf("    ⚠ %s\n", w)
		}
		fmt.Println()
	}
}
