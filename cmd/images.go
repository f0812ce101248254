package cmd

import (
	"strings"

	"github.com/AnyUserName/mediaopt/internal/pipeline"
	"github.com/AnyUserName/mediaopt/internal/profile"
	"github.com/spf13/cobra"
)

var (
	imagesOutDir   string
	imagesProfile  string
	imagesManifest string
)

var imagesCmd = &cobra.Command{
	Use:   "images [source_dir]",
	Short: "Optimize raster images and SVG icons",
	Long: `Scans the source directory (default: source_dir from the config) for
jpg, png, gif, bmp, tiff and svg files.

Rasters wider than max_width are scaled down (never up), re-encoded in
their own format and written with WebP and AVIF siblings. The simple
profile works in place (<base>.<ext>); the responsive profile writes
<base>-<width>.<ext> per breakpoint into --out plus media.manifest.json.
SVGs are minified in place. Git LFS pointer files are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOptimize(cmd.Context(), optimizeRun{
			sourceDir:    argOr(args, cfg.SourceDir),
			outputDir:    flagOr(imagesOutDir, cfg.OutputDir),
			profile:      imagesProfile,
			manifestPath: imagesManifest,
			kinds:        []pipeline.Kind{pipeline.KindImage, pipeline.KindVector},
		})
	},
}

func init() {
	imagesCmd.Flags().StringVarP(&imagesOutDir, "out", "o", "", "output directory for the responsive profile (default: output_dir from the config)")
	imagesCmd.Flags().StringVarP(&imagesProfile, "profile", "p", "", "processing profile: "+strings.Join(profile.Names(), ", "))
	imagesCmd.Flags().StringVar(&imagesManifest, "manifest", "", "write the manifest here (responsive default: <out>/media.manifest.json)")
	rootCmd.AddCommand(imagesCmd)
}

func argOr(args []string, def string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return def
}

func flagOr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
