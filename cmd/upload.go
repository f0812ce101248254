package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AnyUserName/mediaopt/internal/assetmap"
	"github.com/AnyUserName/mediaopt/internal/cdn"
	"github.com/AnyUserName/mediaopt/internal/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	uploadAssetMap    string
	uploadMode        string
	uploadConcurrency int
	uploadRate        float64
	uploadPrefix      string
)

var uploadCmd = &cobra.Command{
	Use:   "upload [source_dir]",
	Short: "Upload images to Cloudinary and write the asset map",
	Long: `Uploads every raster image under the source directory (default:
cloudinary.source_dir from the config) with responsive breakpoints and
eager transformations, retrying transient failures with exponential
backoff. The frontend asset map is written with one entry per successful
upload.

Credentials come from CLOUDINARY_URL or CLOUDINARY_CLOUD_NAME,
CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET (a .env file is read).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadAssetMap, "asset-map", "", "asset map path (default: cloudinary.asset_map from the config)")
	uploadCmd.Flags().StringVar(&uploadMode, "mode", "", "asset map mode: replace or merge")
	uploadCmd.Flags().IntVar(&uploadConcurrency, "concurrency", 0, "maximum in-flight uploads")
	uploadCmd.Flags().Float64Var(&uploadRate, "rate", -1, "upload starts per second, 0 for unlimited")
	uploadCmd.Flags().StringVar(&uploadPrefix, "prefix", "", "public ID prefix")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := cfg.Cloudinary

	mode, err := assetmap.ParseMode(flagOr(uploadMode, cc.AssetMapMode))
	if err != nil {
		return err
	}
	client, err := cdn.NewClient(cc.Credentials)
	if errors.Is(err, cdn.ErrNotConfigured) {
		return fmt.Errorf("%w: set CLOUDINARY_URL=cloudinary://<api_key>:<api_secret>@<cloud_name>", err)
	}
	if err != nil {
		return err
	}

	sourceDir, err := filepath.Abs(argOr(args, cc.SourceDir))
	if err != nil {
		return fmt.Errorf("resolve source path: %w", err)
	}

	concurrency := cc.Concurrency
	if uploadConcurrency > 0 {
		concurrency = uploadConcurrency
	}
	ratePerSecond := cc.RatePerSecond
	if uploadRate >= 0 {
		ratePerSecond = uploadRate
	}

	pub := pipeline.NewPublisher(pipeline.PublishConfig{
		SourceDir: sourceDir,
		Scan: pipeline.ScanOptions{
			Kinds:          []pipeline.Kind{pipeline.KindImage},
			Include:        cfg.Scan.Include,
			Exclude:        cfg.Scan.Exclude,
			FollowSymlinks: cfg.Scan.FollowSymlinks,
			MaxDepth:       cfg.Scan.MaxDepth,
		},
		IDPrefix:      flagOr(uploadPrefix, cc.IDPrefix),
		Concurrency:   concurrency,
		RatePerSecond: ratePerSecond,
		Retry:         cfg.RetryPolicy(),
	}, client, log)

	log.WithFields(logrus.Fields{
		"source":      sourceDir,
		"cloud":       cc.CloudName,
		"concurrency": concurrency,
		"rate":        ratePerSecond,
	}).Info("uploading")

	sources, results, runErr := pub.Publish(ctx)
	if sources == nil && runErr != nil {
		return runErr
	}

	fresh := assetmap.FromResults(results)
	mapPath := flagOr(uploadAssetMap, cc.AssetMap)
	out := fresh
	if mode == assetmap.ModeMerge {
		prev, err := assetmap.Load(mapPath)
		if err != nil {
			return err
		}
		var removed []string
		out, removed = assetmap.Merge(prev, fresh, func(source string) bool {
			_, err := os.Stat(filepath.Join(sourceDir, filepath.FromSlash(source)))
			return !errors.Is(err, os.ErrNotExist)
		})
		for _, k := range removed {
			log.WithField("key", k).Info("source deleted, dropping asset map entry")
		}
	}

	if len(sources) > 0 || mode == assetmap.ModeMerge {
		if err := assetmap.Write(out, mapPath); err != nil {
			return err
		}
	}

	var bytes int64
	for _, r := range results {
		if r != nil {
			bytes += r.Bytes
		}
	}
	fmt.Println()
	fmt.Printf("  Uploaded:    %d / %d\n", len(fresh), len(sources))
	fmt.Printf("  Delivered:   %s\n", humanize.Bytes(uint64(bytes)))
	fmt.Printf("  Asset map:   %s (%d entries, %s)\n", mapPath, len(out), mode)
	fmt.Println()

	if runErr != nil {
		return runErr
	}
	if len(sources) > 0 && len(fresh) == 0 {
		return fmt.Errorf("all %d uploads failed", len(sources))
	}
	return nil
}
