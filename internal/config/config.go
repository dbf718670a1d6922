// Package config loads synthcorr settings from TOML.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/mcuadros/go-defaults"
)

// Config is the top-level configuration file.
type Config struct {
	Pipeline Pipeline `toml:"pipeline"`
	Augment  Augment  `toml:"augment"`
	Image    Image    `toml:"image"`
	Log      Log      `toml:"log"`
	Server   Server   `toml:"server"`
}

// Pipeline controls correspondence extraction.
type Pipeline struct {
	Correspondences int   `toml:"correspondences" default:"64"`
	Oversample      int   `toml:"oversample" default:"5"`
	Workers         int   `toml:"workers" default:"1"`
	Seed            int64 `toml:"seed" default:"0"`
	// Tolerance above zero replaces the exact match test with a distance bound.
	Tolerance float64 `toml:"tolerance" default:"0"`
}

// Augment holds the random transform ranges.
type Augment struct {
	Kinds           []string `toml:"kinds"`
	MaxDegrees      float64  `toml:"max_degrees" default:"60"`
	MaxTranslate    float64  `toml:"max_translate" default:"0.5"`
	DistortionScale float64  `toml:"distortion_scale" default:"0.5"`
}

// Image controls how files are decoded into batches.
type Image struct {
	Height int `toml:"height" default:"0"` // 0 keeps the size of the first image
	Width  int `toml:"width" default:"0"`
}

// Log configures the logrus logger.
type Log struct {
	Level       string `toml:"level" default:"info"`
	Format      string `toml:"format" default:"text"`
	File        string `toml:"file"`
	MaxAgeHours int    `toml:"max_age_hours" default:"168"`
}

// Server configures the HTTP API.
type Server struct {
	Addr      string `toml:"addr" default:":9090"`
	BodyLimit int    `toml:"body_limit" default:"33554432"`
	// Upper bounds on what a single request may ask for.
	MaxCorrespondences int `toml:"max_correspondences" default:"4096"`
	MaxImageSize       int `toml:"max_image_size" default:"4096"`
}

// Default returns a Config populated only from struct-tag defaults.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Augment.Kinds = []string{"affine", "perspective"}
	return cfg
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Pipeline.Correspondences < 1 {
		return fmt.Errorf("pipeline.correspondences must be at least 1, got %d", c.Pipeline.Correspondences)
	}
	if c.Pipeline.Oversample < 1 {
		return fmt.Errorf("pipeline.oversample must be at least 1, got %d", c.Pipeline.Oversample)
	}
	if c.Pipeline.Tolerance < 0 {
		return fmt.Errorf("pipeline.tolerance must not be negative")
	}
	if len(c.Augment.Kinds) == 0 {
		return fmt.Errorf("augment.kinds must name at least one transform")
	}
	if c.Augment.MaxTranslate < 0 || c.Augment.MaxTranslate > 1 {
		return fmt.Errorf("augment.max_translate must be within [0, 1], got %g", c.Augment.MaxTranslate)
	}
	if c.Augment.DistortionScale < 0 || c.Augment.DistortionScale > 1 {
		return fmt.Errorf("augment.distortion_scale must be within [0, 1], got %g", c.Augment.DistortionScale)
	}
	if c.Server.MaxCorrespondences < 1 {
		return fmt.Errorf("server.max_correspondences must be at least 1, got %d", c.Server.MaxCorrespondences)
	}
	if c.Server.MaxImageSize < 1 {
		return fmt.Errorf("server.max_image_size must be at least 1, got %d", c.Server.MaxImageSize)
	}
	if (c.Image.Height == 0) != (c.Image.Width == 0) || c.Image.Height < 0 || c.Image.Width < 0 {
		return fmt.Errorf("image.height and image.width must both be set or both be zero")
	}
	return nil
}
