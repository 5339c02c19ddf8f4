package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/keagan/kitchencam/internal/apperr"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Root is the directory holding the per-date output trees and logs/.
	Root string `yaml:"root" env:"KITCHENCAM_ROOT"`

	Recipes       []string `yaml:"recipes" env:"KITCHENCAM_RECIPES" envSeparator:","`
	DefaultRecipe string   `yaml:"default_recipe" env:"KITCHENCAM_DEFAULT_RECIPE"`

	Capture CaptureConfig `yaml:"capture"`
	Camera  CameraConfig  `yaml:"camera"`
	FFmpeg  FFmpegConfig  `yaml:"ffmpeg"`
	Extract ExtractConfig `yaml:"extract"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type CaptureConfig struct {
	DefaultMinutes int     `yaml:"default_minutes" env:"KITCHENCAM_DEFAULT_MINUTES"`
	SegmentSeconds int     `yaml:"segment_seconds" env:"KITCHENCAM_SEGMENT_SECONDS"`
	FrameRate      float64 `yaml:"frame_rate" env:"KITCHENCAM_FRAME_RATE"`
	Bitrate        int     `yaml:"bitrate" env:"KITCHENCAM_BITRATE"`
	// CompressAfter runs a transcode sweep once a video capture finishes.
	CompressAfter bool `yaml:"compress_after" env:"KITCHENCAM_COMPRESS_AFTER"`
}

type CameraConfig struct {
	// Backend is "ffmpeg" (V4L2 device through ffmpeg) or "simulated".
	Backend     string `yaml:"backend" env:"KITCHENCAM_CAMERA_BACKEND"`
	Device      string `yaml:"device" env:"KITCHENCAM_CAMERA_DEVICE"`
	InputFormat string `yaml:"input_format" env:"KITCHENCAM_CAMERA_INPUT_FORMAT"`
	Width       int    `yaml:"width" env:"KITCHENCAM_CAMERA_WIDTH"`
	Height      int    `yaml:"height" env:"KITCHENCAM_CAMERA_HEIGHT"`
}

type FFmpegConfig struct {
	BinaryPath  string `yaml:"binary_path" env:"KITCHENCAM_FFMPEG"`
	ProbePath   string `yaml:"probe_path" env:"KITCHENCAM_FFPROBE"`
	Threads     int    `yaml:"threads" env:"KITCHENCAM_FFMPEG_THREADS"`
	CRF         int    `yaml:"crf" env:"KITCHENCAM_FFMPEG_CRF"`
	Preset      string `yaml:"preset" env:"KITCHENCAM_FFMPEG_PRESET"`
	VideoCodec  string `yaml:"video_codec" env:"KITCHENCAM_FFMPEG_VIDEO_CODEC"`
	AudioCodec  string `yaml:"audio_codec" env:"KITCHENCAM_FFMPEG_AUDIO_CODEC"`
	StillQScale int    `yaml:"still_qscale" env:"KITCHENCAM_FFMPEG_STILL_QSCALE"`
}

type ExtractConfig struct {
	// Root is scanned recursively for compressed_videos directories.
	Root string `yaml:"root" env:"KITCHENCAM_EXTRACT_ROOT"`
	// SourceDir, when it exists, is compressed into its sibling
	// compressed_videos directory before sampling.
	SourceDir       string `yaml:"source_dir" env:"KITCHENCAM_EXTRACT_SOURCE_DIR"`
	IntervalSeconds int    `yaml:"interval_seconds" env:"KITCHENCAM_EXTRACT_INTERVAL"`
	JPEGQuality     int    `yaml:"jpeg_quality" env:"KITCHENCAM_JPEG_QUALITY"`
	// MaxWidth downsizes sampled stills wider than this; 0 keeps the source size.
	MaxWidth   uint   `yaml:"max_width" env:"KITCHENCAM_EXTRACT_MAX_WIDTH"`
	MarkerFile string `yaml:"marker_file" env:"KITCHENCAM_MARKER_FILE"`
}

type MetricsConfig struct {
	// Textfile is a node-exporter textfile path; empty disables the export.
	Textfile string `yaml:"textfile" env:"KITCHENCAM_METRICS_TEXTFILE"`
}

// Load reads configuration from file, applies environment overrides and
// validates the result. Errors are configuration errors.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, apperr.Configuration("read config", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, apperr.Configuration("parse config "+path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, apperr.Configuration("parse environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return apperr.Configuration("validate config", fmt.Errorf(format, args...))
	}

	if c.Root == "" {
		return fail("root must not be empty")
	}
	if len(c.Recipes) == 0 {
		return fail("at least one recipe is required")
	}
	if !c.HasRecipe(c.DefaultRecipe) {
		return fail("default recipe %q is not in recipes %v", c.DefaultRecipe, c.Recipes)
	}
	if c.Capture.SegmentSeconds <= 0 {
		return fail("capture.segment_seconds must be positive, got %d", c.Capture.SegmentSeconds)
	}
	if c.Capture.FrameRate <= 0 {
		return fail("capture.frame_rate must be positive, got %v", c.Capture.FrameRate)
	}
	if c.Capture.DefaultMinutes < 0 {
		return fail("capture.default_minutes must be >= 0, got %d", c.Capture.DefaultMinutes)
	}
	switch c.Camera.Backend {
	case "ffmpeg", "simulated":
	default:
		return fail("camera.backend must be ffmpeg or simulated, got %q", c.Camera.Backend)
	}
	if c.Extract.IntervalSeconds <= 0 {
		return fail("extract.interval_seconds must be positive, got %d", c.Extract.IntervalSeconds)
	}
	if c.Extract.JPEGQuality < 1 || c.Extract.JPEGQuality > 100 {
		return fail("extract.jpeg_quality must be 1-100, got %d", c.Extract.JPEGQuality)
	}
	if c.FFmpeg.CRF < 0 || c.FFmpeg.CRF > 51 {
		return fail("ffmpeg.crf must be 0-51, got %d", c.FFmpeg.CRF)
	}
	return nil
}

// HasRecipe reports whether name is a configured recipe.
func (c *Config) HasRecipe(name string) bool {
	return slices.Contains(c.Recipes, name)
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Root:          ".",
		Recipes:       []string{"bean_soup", "chicken_teriyaki"},
		DefaultRecipe: "chicken_teriyaki",
		Capture: CaptureConfig{
			DefaultMinutes: 1,
			SegmentSeconds: 60,
			FrameRate:      25,
			Bitrate:        10000000,
			CompressAfter:  true,
		},
		Camera: CameraConfig{
			Backend:     "ffmpeg",
			Device:      "/dev/video0",
			InputFormat: "v4l2",
			Width:       1280,
			Height:      720,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath:  "ffmpeg",
			ProbePath:   "ffprobe",
			Threads:     0,
			CRF:         20,
			Preset:      "medium",
			VideoCodec:  "libx264",
			AudioCodec:  "copy",
			StillQScale: 2,
		},
		Extract: ExtractConfig{
			Root:            ".",
			SourceDir:       "data_record",
			IntervalSeconds: 1,
			JPEGQuality:     95,
			MaxWidth:        0,
			MarkerFile:      ".keep",
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./kitchencam.yaml",
		"./kitchencam.yml",
		filepath.Join(os.Getenv("HOME"), ".kitchencam", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
