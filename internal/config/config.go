// Package config loads service configuration with documented defaults,
// overridable from an optional gpxhelper.yaml and GPXHELPER_* environment
// variables. Nothing in the core reads ambient state; everything is threaded
// through the Config value constructed here.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries every tunable of the service.
type Config struct {
	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"logLevel"`

	TileStyle    string `mapstructure:"tileStyle"`
	TileCacheDir string `mapstructure:"tileCacheDir"`

	Workers int `mapstructure:"workers"`

	FFmpegPath    string        `mapstructure:"ffmpegPath"`
	FFmpegTimeout time.Duration `mapstructure:"ffmpegTimeout"`

	ExifToolPath    string        `mapstructure:"exiftoolPath"`
	ExifToolTimeout time.Duration `mapstructure:"exiftoolTimeout"`

	MetricsEnabled bool `mapstructure:"metricsEnabled"`
}

// Load reads gpxhelper.yaml from configDir (optional) on top of the
// defaults, then applies environment overrides.
func Load(configDir string) (Config, error) {
	v := viper.New()

	v.SetDefault("listen", ":8080")
	v.SetDefault("logLevel", "info")
	v.SetDefault("tileStyle", "default")
	v.SetDefault("tileCacheDir", "tiles")
	v.SetDefault("workers", 0) // 0 means one per CPU
	v.SetDefault("ffmpegPath", "ffmpeg")
	v.SetDefault("ffmpegTimeout", 10*time.Minute)
	v.SetDefault("exiftoolPath", "exiftool")
	v.SetDefault("exiftoolTimeout", 15*time.Second)
	v.SetDefault("metricsEnabled", true)

	v.SetConfigName("gpxhelper")
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("GPXHELPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; a broken one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
