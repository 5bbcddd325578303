package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.75, cfg.Matching.Ratio)
	assert.Equal(t, 600, cfg.Matching.MaxMatches)
	assert.Equal(t, 6000, cfg.Matching.MaxFeatures)
	assert.Equal(t, 5.0, cfg.Estimation.Threshold)
	assert.Equal(t, 21, cfg.Blend.KernelSize)
	assert.True(t, cfg.Blend.PreserveBorders)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STITCH_ADDR", "")
	t.Setenv("DENSE_MATCHER_URL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysYAML(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STITCH_ADDR", "")
	t.Setenv("DENSE_MATCHER_URL", "")

	path := filepath.Join(t.TempDir(), "stitch.yaml")
	yml := `
blend:
  kernel_size: 51
  preserve_borders: false
estimation:
  seed: 42
providers:
  dense_matcher_timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 51, cfg.Blend.KernelSize)
	assert.False(t, cfg.Blend.PreserveBorders)
	assert.Equal(t, int64(42), cfg.Estimation.Seed)
	assert.Equal(t, 5*time.Second, cfg.Providers.DenseMatcherTimeout)
	// untouched sections keep defaults
	assert.Equal(t, 0.75, cfg.Matching.Ratio)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STITCH_ADDR", "127.0.0.1:9000")
	t.Setenv("DENSE_MATCHER_URL", "http://matcher:8000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "http://matcher:8000", cfg.Providers.DenseMatcherURL)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blend: [1, 2"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ratio too high", func(c *Config) { c.Matching.Ratio = 1.2 }},
		{"tiny cap", func(c *Config) { c.Matching.MaxMatches = 3 }},
		{"negative cap", func(c *Config) { c.Matching.MaxMatches = -1 }},
		{"zero threshold", func(c *Config) { c.Estimation.Threshold = 0 }},
		{"confidence one", func(c *Config) { c.Estimation.Confidence = 1 }},
		{"min inliers", func(c *Config) { c.Estimation.MinInliers = 2 }},
		{"interpolation", func(c *Config) { c.Canvas.Interpolation = "bicubic" }},
		{"even kernel", func(c *Config) { c.Blend.KernelSize = 20 }},
		{"bad addr", func(c *Config) { c.Server.Addr = "nope" }},
		{"jpeg quality", func(c *Config) { c.Server.JPEGQuality = 0 }},
		{"parallel", func(c *Config) { c.Bench.Parallel = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateZeroCapDisablesCapping(t *testing.T) {
	cfg := Default()
	cfg.Matching.MaxMatches = 0
	assert.NoError(t, cfg.Validate())
}
