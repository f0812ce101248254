package cmd

import (
	"github.com/AnyUserName/mediaopt/internal/pipeline"
	"github.com/spf13/cobra"
)

var videosCmd = &cobra.Command{
	Use:   "videos [videos_dir]",
	Short: "Transcode videos with ffmpeg",
	Long: `Re-encodes every mp4, mov, m4v and webm file under the videos directory
(default: videos_dir from the config) and writes a WebM sibling. Videos
wider than video.max_width are scaled and padded to the exact box. The
original is only replaced after the new file is complete.

ffmpeg and ffprobe must be on PATH; they are checked once before the run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOptimize(cmd.Context(), optimizeRun{
			sourceDir: argOr(args, cfg.VideosDir),
			profile:   "simple",
			kinds:     []pipeline.Kind{pipeline.KindVideo},
		})
	},
}

func init() {
	rootCmd.AddCommand(videosCmd)
}
