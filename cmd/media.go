package cmd

import (
	"github.com/AnyUserName/mediaopt/internal/pipeline"
	"github.com/spf13/cobra"
)

var mediaProfile string

var mediaCmd = &cobra.Command{
	Use:   "media [dir]",
	Short: "Optimize images, icons and videos in one pass",
	Long: `Runs the image, SVG and video paths over one directory tree (default:
public). Every required tool (cwebp, avifenc, ffmpeg, ffprobe) is checked
before the first file is processed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOptimize(cmd.Context(), optimizeRun{
			sourceDir: argOr(args, "public"),
			outputDir: cfg.OutputDir,
			profile:   mediaProfile,
			kinds:     []pipeline.Kind{pipeline.KindImage, pipeline.KindVector, pipeline.KindVideo},
		})
	},
}

func init() {
	mediaCmd.Flags().StringVarP(&mediaProfile, "profile", "p", "", "image processing profile")
	rootCmd.AddCommand(mediaCmd)
}
