// Package config holds the tunable constants of the stitching pipeline and
// its outer surfaces (CLI, HTTP server, batch harness).
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds user-editable settings.
type Config struct {
	Matching   Matching   `yaml:"matching"`
	Estimation Estimation `yaml:"estimation"`
	Canvas     Canvas     `yaml:"canvas"`
	Blend      Blend      `yaml:"blend"`
	Providers  Providers  `yaml:"providers"`
	Logging    Logging    `yaml:"logging"`
	Server     Server     `yaml:"server"`
	Bench      Bench      `yaml:"bench"`
}

// Matching controls correspondence filtering.
type Matching struct {
	Method      string  `yaml:"method"`       // SIFT, ORB, LoFTR
	Ratio       float64 `yaml:"ratio"`        // nearest/second-nearest acceptance ratio
	MaxMatches  int     `yaml:"max_matches"`  // cap on the filtered set, 0 disables it
	MaxFeatures int     `yaml:"max_features"` // detector keypoint cap
}

// Estimation controls RANSAC homography fitting.
type Estimation struct {
	Threshold     float64 `yaml:"threshold"` // reprojection error in pixels
	MaxIterations int     `yaml:"max_iterations"`
	Confidence    float64 `yaml:"confidence"`
	MinInliers    int     `yaml:"min_inliers"`
	Seed          int64   `yaml:"seed"`
	Refine        bool    `yaml:"refine"`
}

// Canvas controls output canvas sizing and resampling.
type Canvas struct {
	Interpolation string `yaml:"interpolation"` // bilinear, nearest
	MaxPixels     int64  `yaml:"max_pixels"`
}

// Blend controls seam feathering.
type Blend struct {
	KernelSize      int  `yaml:"kernel_size"`
	PreserveBorders bool `yaml:"preserve_borders"`
}

// Providers configures correspondence back ends.
type Providers struct {
	DenseMatcherURL     string        `yaml:"dense_matcher_url"`
	DenseMatcherTimeout time.Duration `yaml:"dense_matcher_timeout"`
}

// Logging controls verbosity and format.
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Server configures the HTTP front end.
type Server struct {
	Addr           string        `yaml:"addr"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	JPEGQuality    int           `yaml:"jpeg_quality"`
}

// Bench configures the batch harness.
type Bench struct {
	Parallel     int    `yaml:"parallel"`
	CSVName      string `yaml:"csv_name"`
	DatabasePath string `yaml:"database_path"`
}

// Default returns the configuration with every pipeline constant at its
// reference value.
func Default() *Config {
	return &Config{
		Matching: Matching{
			Method:      "SIFT",
			Ratio:       0.75,
			MaxMatches:  600,
			MaxFeatures: 6000,
		},
		Estimation: Estimation{
			Threshold:     5.0,
			MaxIterations: 2000,
			Confidence:    0.995,
			MinInliers:    4,
			Seed:          1,
			Refine:        true,
		},
		Canvas: Canvas{
			Interpolation: "bilinear",
			MaxPixels:     100_000_000,
		},
		Blend: Blend{
			KernelSize:      21,
			PreserveBorders: true,
		},
		Providers: Providers{
			DenseMatcherTimeout: 60 * time.Second,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Server: Server{
			Addr:           "0.0.0.0:5050",
			MaxUploadBytes: 32 << 20,
			RequestTimeout: 120 * time.Second,
			JPEGQuality:    90,
		},
		Bench: Bench{
			Parallel: 2,
			CSVName:  "results.csv",
		},
	}
}

// Load reads YAML from path over the defaults, applies environment
// overrides and validates the result. An empty path or a missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("STITCH_ADDR")); v != "" {
		c.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("DENSE_MATCHER_URL")); v != "" {
		c.Providers.DenseMatcherURL = v
	}
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	m := c.Matching
	if m.Ratio <= 0 || m.Ratio >= 1 {
		return fmt.Errorf("matching.ratio must be in (0, 1) (got %g)", m.Ratio)
	}
	if m.MaxMatches < 0 || (m.MaxMatches > 0 && m.MaxMatches < 4) {
		return fmt.Errorf("matching.max_matches must be 0 (no cap) or >= 4 (got %d)", m.MaxMatches)
	}
	if m.MaxFeatures <= 0 {
		return fmt.Errorf("matching.max_features must be > 0 (got %d)", m.MaxFeatures)
	}

	e := c.Estimation
	if e.Threshold <= 0 {
		return fmt.Errorf("estimation.threshold must be > 0 (got %g)", e.Threshold)
	}
	if e.MaxIterations <= 0 {
		return fmt.Errorf("estimation.max_iterations must be > 0 (got %d)", e.MaxIterations)
	}
	if e.Confidence <= 0 || e.Confidence >= 1 {
		return fmt.Errorf("estimation.confidence must be in (0, 1) (got %g)", e.Confidence)
	}
	if e.MinInliers < 4 {
		return fmt.Errorf("estimation.min_inliers must be >= 4 (got %d)", e.MinInliers)
	}

	switch strings.ToLower(c.Canvas.Interpolation) {
	case "bilinear", "nearest":
	default:
		return fmt.Errorf("canvas.interpolation must be bilinear or nearest (got %q)", c.Canvas.Interpolation)
	}
	if c.Canvas.MaxPixels <= 0 {
		return fmt.Errorf("canvas.max_pixels must be > 0 (got %d)", c.Canvas.MaxPixels)
	}

	if k := c.Blend.KernelSize; k < 1 || k%2 == 0 {
		return fmt.Errorf("blend.kernel_size must be a positive odd number (got %d)", k)
	}

	if c.Server.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
			return fmt.Errorf("invalid server.addr %q: %w", c.Server.Addr, err)
		}
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be > 0 (got %d)", c.Server.MaxUploadBytes)
	}
	if q := c.Server.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("server.jpeg_quality must be in [1, 100] (got %d)", q)
	}
	if c.Bench.Parallel < 1 {
		return fmt.Errorf("bench.parallel must be >= 1 (got %d)", c.Bench.Parallel)
	}
	return nil
}
