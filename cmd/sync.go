package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AnyUserName/mediaopt/internal/manifest"
	"github.com/AnyUserName/mediaopt/internal/mirror"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	syncBucket string
	syncPrefix string
)

var syncCmd = &cobra.Command{
	Use:   "sync [out_dir_or_manifest]",
	Short: "Mirror the variants listed in a manifest to S3",
	Long: `Reads media.manifest.json (default: inside output_dir) and uploads every
variant to the configured bucket with an immutable Cache-Control header.
AWS credentials come from the default chain.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncBucket, "bucket", "", "target bucket (default: s3.bucket from the config)")
	syncCmd.Flags().StringVar(&syncPrefix, "prefix", "", "key prefix inside the bucket")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	path, err := manifestPathFor(argOr(args, cfg.OutputDir))
	if err != nil {
		return err
	}
	m, err := manifest.Read(path)
	if err != nil {
		return err
	}

	mir, err := mirror.NewS3(cmd.Context(), mirror.Options{
		Bucket:      flagOr(syncBucket, cfg.S3.Bucket),
		Prefix:      flagOr(syncPrefix, cfg.S3.Prefix),
		Region:      cfg.S3.Region,
		Concurrency: cfg.S3.Concurrency,
		FailFast:    cfg.FailFast,
		Retry:       cfg.RetryPolicy(),
	}, log)
	if err != nil {
		return err
	}

	report, err := mir.Sync(cmd.Context(), m, m.Root(path))
	if report != nil {
		fmt.Println()
		fmt.Printf("  Uploaded:    %d objects, %s\n", report.Uploaded, humanize.Bytes(uint64(report.Bytes)))
		if len(report.Failed) > 0 {
			fmt.Printf("  Failed:      %d\n", len(report.Failed))
			for _, f := range report.Failed {
				fmt.Printf("    • %s\n", f)
			}
		}
		fmt.Println()
	}
	return err
}

// manifestPathFor accepts a manifest file or a directory containing one.
func manifestPathFor(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return filepath.Join(path, manifest.FileName), nil
	}
	return path, nil
}
