package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/AnyUserName/mediaopt/internal/config"
	"github.com/AnyUserName/mediaopt/internal/logging"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	verbose    bool
	logJSON    bool
	configPath string
	failFast   bool

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mediaopt",
	Short: "Build-time media optimizer for static sites",
	Long: `mediaopt shrinks the media a static site ships: it re-encodes and
resizes images with WebP and AVIF siblings, minifies SVG icons in place,
transcodes videos with ffmpeg, publishes images to Cloudinary and writes
the asset map the frontend reads.

Settings come from mediaopt.yaml (optional), .env and the environment.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON lines")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "config file")
	rootCmd.PersistentFlags().BoolVar(&failFast, "fail-fast", false, "abort on the first per-file error")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"mediaopt %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

// setup runs before every command: .env, logging, then config.
func setup(cmd *cobra.Command, _ []string) error {
	// A missing .env is normal; real environment variables still apply.
	_ = godotenv.Load()

	level := "info"
	if verbose {
		level = "debug"
	}
	l, err := logging.Setup(os.Stderr, level, logJSON, false)
	if err != nil {
		return err
	}
	log = l

	c, err := config.Load(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("fail-fast") {
		c.FailFast = failFast
	}
	cfg = c
	log.WithFields(logrus.Fields{"config": configPath, "base_path": cfg.BasePath, "fail_fast": cfg.FailFast}).Debug("configuration loaded")
	return nil
}
