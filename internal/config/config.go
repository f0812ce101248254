// Package config loads mediaopt.yaml and overlays the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AnyUserName/mediaopt/internal/assetmap"
	"github.com/AnyUserName/mediaopt/internal/cdn"
	"github.com/AnyUserName/mediaopt/internal/profile"
	"github.com/AnyUserName/mediaopt/internal/retry"
	"github.com/AnyUserName/mediaopt/internal/video"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when --config is not given. It is optional.
const DefaultFile = "mediaopt.yaml"

type Config struct {
	SourceDir string `yaml:"source_dir"`
	IconsDir  string `yaml:"icons_dir"`
	VideosDir string `yaml:"videos_dir"`
	OutputDir string `yaml:"output_dir"`
	Profile   string `yaml:"profile"`
	MaxWidth  int    `yaml:"max_width"`
	BasePath  string `yaml:"base_path"`
	FailFast  bool   `yaml:"fail_fast"`

	Quality    Quality    `yaml:"quality"`
	Scan       Scan       `yaml:"scan"`
	Video      Video      `yaml:"video"`
	Cloudinary Cloudinary `yaml:"cloudinary"`
	S3         S3         `yaml:"s3"`
}

type Quality struct {
	JPEG       int  `yaml:"jpeg"`
	WebP       int  `yaml:"webp"`
	WebPEffort int  `yaml:"webp_effort"`
	AVIF       int  `yaml:"avif"`
	AVIFSpeed  int  `yaml:"avif_speed"`
	PNGPalette bool `yaml:"png_palette"`
}

type Scan struct {
	Include        []string `yaml:"include"`
	Exclude        []string `yaml:"exclude"`
	FollowSymlinks bool     `yaml:"follow_symlinks"`
	MaxDepth       int      `yaml:"max_depth"`
}

type Video struct {
	MaxWidth      int    `yaml:"max_width"`
	CRF           int    `yaml:"crf"`
	Preset        string `yaml:"preset"`
	AudioBitrate  string `yaml:"audio_bitrate"`
	WebMCRF       int    `yaml:"webm_crf"`
	NoRegressSize bool   `yaml:"no_regress_size"`
}

type Cloudinary struct {
	cdn.Credentials `yaml:",inline"`

	SourceDir     string        `yaml:"source_dir"`
	IDPrefix      string        `yaml:"id_prefix"`
	Concurrency   int           `yaml:"concurrency"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Attempts      int           `yaml:"attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	AssetMap      string        `yaml:"asset_map"`
	AssetMapMode  string        `yaml:"asset_map_mode"`
}

type S3 struct {
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Region      string `yaml:"region"`
	Concurrency int    `yaml:"concurrency"`
}

// Default returns the built-in settings.
func Default() *Config {
	v := video.DefaultOptions()
	return &Config{
		SourceDir: "public/images",
		IconsDir:  "public/icons",
		VideosDir: "public/videos",
		OutputDir: "public/images/optimized",
		Profile:   "simple",
		MaxWidth:  1920,
		BasePath:  "/",
		Quality: Quality{
			JPEG:       82,
			WebP:       75,
			WebPEffort: 6,
			AVIF:       65,
			AVIFSpeed:  0,
			PNGPalette: true,
		},
		Video: Video{
			MaxWidth:      v.MaxWidth,
			CRF:           v.CRF,
			Preset:        v.Preset,
			AudioBitrate:  v.AudioBitrate,
			WebMCRF:       v.WebMCRF,
			NoRegressSize: v.NoRegressSize,
		},
		Cloudinary: Cloudinary{
			SourceDir:     "public",
			Concurrency:   10,
			RatePerSecond: 2,
			Attempts:      retry.Default.Attempts,
			BaseDelay:     retry.Default.BaseDelay,
			AssetMap:      assetmap.DefaultPath,
			AssetMapMode:  string(assetmap.ModeReplace),
		},
		S3: S3{Concurrency: 4},
	}
}

// Load reads path over the defaults, then overlays the environment. A
// missing file is fine unless required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !required:
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if raw := getenv("CLOUDINARY_URL"); raw != "" {
		creds, err := cdn.ParseURL(raw)
		if err != nil {
			return err
		}
		c.Cloudinary.Credentials = creds
	}
	setString(&c.Cloudinary.CloudName, getenv("CLOUDINARY_CLOUD_NAME"))
	setString(&c.Cloudinary.APIKey, getenv("CLOUDINARY_API_KEY"))
	setString(&c.Cloudinary.APISecret, getenv("CLOUDINARY_API_SECRET"))

	if bp := basePath(getenv); bp != "" {
		c.BasePath = bp
	}

	setString(&c.S3.Bucket, getenv("MEDIAOPT_S3_BUCKET"))
	setString(&c.S3.Prefix, getenv("MEDIAOPT_S3_PREFIX"))
	setString(&c.S3.Region, getenv("AWS_REGION"))

	if v := getenv("MEDIAOPT_FAIL_FAST"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MEDIAOPT_FAIL_FAST: %w", err)
		}
		c.FailFast = b
	}
	return nil
}

// basePath resolves the site base path: an explicit MEDIAOPT_BASE_PATH,
// else /<repo>/ on GitHub Pages builds.
func basePath(getenv func(string) string) string {
	if bp := getenv("MEDIAOPT_BASE_PATH"); bp != "" {
		return "/" + strings.Trim(bp, "/") + "/"
	}
	if pages, _ := strconv.ParseBool(getenv("GITHUB_PAGES")); !pages {
		return ""
	}
	repo := getenv("GITHUB_REPOSITORY")
	if i := strings.LastIndex(repo, "/"); i >= 0 {
		repo = repo[i+1:]
	}
	if repo == "" {
		return ""
	}
	return "/" + repo + "/"
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxWidth <= 0 {
		errs = append(errs, fmt.Errorf("max_width must be positive, got %d", c.MaxWidth))
	}
	if c.Video.MaxWidth <= 0 {
		errs = append(errs, fmt.Errorf("video.max_width must be positive, got %d", c.Video.MaxWidth))
	}
	for name, q := range map[string]int{"quality.jpeg": c.Quality.JPEG, "quality.webp": c.Quality.WebP, "quality.avif": c.Quality.AVIF} {
		if q < 1 || q > 100 {
			errs = append(errs, fmt.Errorf("%s must be within 1-100, got %d", name, q))
		}
	}
	if c.Quality.WebPEffort < 0 || c.Quality.WebPEffort > 6 {
		errs = append(errs, fmt.Errorf("quality.webp_effort must be within 0-6, got %d", c.Quality.WebPEffort))
	}
	if c.Quality.AVIFSpeed < 0 || c.Quality.AVIFSpeed > 10 {
		errs = append(errs, fmt.Errorf("quality.avif_speed must be within 0-10, got %d", c.Quality.AVIFSpeed))
	}
	if _, err := assetmap.ParseMode(c.Cloudinary.AssetMapMode); err != nil {
		errs = append(errs, err)
	}
	if c.Cloudinary.Attempts < 1 {
		errs = append(errs, fmt.Errorf("cloudinary.attempts must be at least 1, got %d", c.Cloudinary.Attempts))
	}
	if c.Cloudinary.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("cloudinary.concurrency must be at least 1, got %d", c.Cloudinary.Concurrency))
	}
	if c.Cloudinary.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("cloudinary.rate_per_second must not be negative"))
	}
	return errors.Join(errs...)
}

// ProfileFor returns the named built-in profile with this config's
// width and quality settings applied.
func (c *Config) ProfileFor(name string) profile.Profile {
	if name == "" {
		name = c.Profile
	}
	p := profile.Get(name)
	p.MaxWidth = c.MaxWidth
	p.JPEGQuality = c.Quality.JPEG
	p.WebPQuality = c.Quality.WebP
	p.WebPEffort = c.Quality.WebPEffort
	p.AVIFQuality = c.Quality.AVIF
	p.AVIFSpeed = c.Quality.AVIFSpeed
	p.PNGPalette = c.Quality.PNGPalette
	return p
}

// VideoOptions converts the video section.
func (c *Config) VideoOptions() video.Options {
	return video.Options{
		MaxWidth:      c.Video.MaxWidth,
		CRF:           c.Video.CRF,
		Preset:        c.Video.Preset,
		AudioBitrate:  c.Video.AudioBitrate,
		WebMCRF:       c.Video.WebMCRF,
		NoRegressSize: c.Video.NoRegressSize,
	}
}

// RetryPolicy returns the upload retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{Attempts: c.Cloudinary.Attempts, BaseDelay: c.Cloudinary.BaseDelay}
}
