package cmd

import (
	"github.com/AnyUserName/mediaopt/internal/pipeline"
	"github.com/spf13/cobra"
)

var iconsCmd = &cobra.Command{
	Use:   "icons [icons_dir]",
	Short: "Minify SVG icons in place",
	Long: `Strips comments, metadata and editor namespaces from every SVG under
the icons directory (default: icons_dir from the config), shortens IDs and
rewrites the file only when the result is smaller.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOptimize(cmd.Context(), optimizeRun{
			sourceDir: argOr(args, cfg.IconsDir),
			profile:   "simple",
			kinds:     []pipeline.Kind{pipeline.KindVector},
		})
	},
}

func init() {
	rootCmd.AddCommand(iconsCmd)
}
