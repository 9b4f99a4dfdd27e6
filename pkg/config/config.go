// Package config provides configuration management for leaks-collector.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/leaks-collector/pkg/compression"
	appErrors "github.com/leaks-collector/pkg/errors"
)

// Config holds all tunable configuration for a leaks-collector run.
type Config struct {
	Walker   WalkerConfig   `mapstructure:"walker"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
	Selector SelectorConfig `mapstructure:"selector"`
}

// Anchor is one (class_name, offset) pair in the walker's merge-depth
// anchor table (§4.4). The first matching anchor along a path wins.
type Anchor struct {
	ClassName string `mapstructure:"class_name"`
	Offset    int    `mapstructure:"offset"`
}

// WalkerConfig holds the path-discovery core's tuning knobs. Every field
// here has a fixed value in the original specification; it is exposed
// through config only so integrators can tune it without a rebuild — the
// defaults below reproduce the spec exactly.
type WalkerConfig struct {
	MaxBacktracks     int      `mapstructure:"max_backtracks"`
	MaxPathsPerTarget int      `mapstructure:"max_paths_per_target"`
	DefaultMergeDepth int      `mapstructure:"default_merge_depth"`
	Anchors           []Anchor `mapstructure:"anchors"`
}

// CacheConfig holds the Reverse Index Cache's on-disk settings.
type CacheConfig struct {
	Suffix          string `mapstructure:"suffix"`
	CompressionType string `mapstructure:"compression_type"` // "zstd", "gzip", or "none"
	Disabled        bool   `mapstructure:"disabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"; no code reads this value
}

// SelectorConfig holds the Target Selector's default behavior when the CLI
// is invoked with neither --target-class nor --target-id.
type SelectorConfig struct {
	DefaultTargetClasses []string `mapstructure:"default_target_classes"`
}

// Load reads configuration from the specified file path, falling back to
// viper's standard search path, then applies environment overrides under
// the LEAKS_COLLECTOR_ prefix.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/leaks-collector")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file anywhere on the search path: defaults only.
		} else if os.IsNotExist(err) {
			// Explicit --config path doesn't exist: defaults only.
		} else {
			return nil, appErrors.Wrap(appErrors.CodeConfigError, "failed to read config file", err)
		}
	}

	v.SetEnvPrefix("LEAKS_COLLECTOR")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, appErrors.Wrap(appErrors.CodeConfigError, "failed to unmarshal config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, appErrors.Wrap(appErrors.CodeConfigError, "config validation failed", err)
	}
	return &cfg, nil
}

// LoadFromReader loads configuration from in-memory content (used by tests).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("walker.max_backtracks", 10)
	v.SetDefault("walker.max_paths_per_target", 100)
	v.SetDefault("walker.default_merge_depth", 3)
	v.SetDefault("walker.anchors", []map[string]interface{}{
		{"class_name": "Disposer", "offset": 4},
	})

	v.SetDefault("cache.suffix", ".ri")
	v.SetDefault("cache.compression_type", "zstd")
	v.SetDefault("cache.disabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("selector.default_target_classes", []string{})
}

// Validate rejects out-of-range tuning values before any snapshot I/O
// begins, per the configuration-error branch of the error taxonomy.
func (c *Config) Validate() error {
	if c.Walker.MaxBacktracks < 0 {
		return fmt.Errorf("walker.max_backtracks must be >= 0, got %d", c.Walker.MaxBacktracks)
	}
	if c.Walker.MaxPathsPerTarget < 1 {
		return fmt.Errorf("walker.max_paths_per_target must be >= 1, got %d", c.Walker.MaxPathsPerTarget)
	}
	if c.Walker.DefaultMergeDepth < 0 {
		return fmt.Errorf("walker.default_merge_depth must be >= 0, got %d", c.Walker.DefaultMergeDepth)
	}
	for _, a := range c.Walker.Anchors {
		if a.ClassName == "" {
			return fmt.Errorf("walker.anchors entries must name a class")
		}
	}
	if _, err := compression.NewByName(c.Cache.CompressionType); err != nil {
		return fmt.Errorf("cache.compression_type: %w", err)
	}
	if c.Cache.Suffix == "" {
		return fmt.Errorf("cache.suffix must not be empty")
	}
	return nil
}
