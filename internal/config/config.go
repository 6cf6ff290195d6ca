// Package config loads and validates collector configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Collect CollectConfig `mapstructure:"collect"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the progress API server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// CrawlerConfig describes how to invoke the external crawler subprocess.
type CrawlerConfig struct {
	// Binary is the executable launched per batch, e.g. "uv".
	Binary string `mapstructure:"binary"`
	// Args are the fixed arguments passed ahead of any run-mode flags.
	Args []string `mapstructure:"args"`
	// WorkDir is the crawler checkout the subprocess runs in.
	WorkDir string `mapstructure:"work_dir"`
	// ConfigArtifact is the mutable configuration file the crawler reads.
	ConfigArtifact string `mapstructure:"config_artifact"`
	// OutputDir is where the crawler writes its JSON result files.
	OutputDir string `mapstructure:"output_dir"`
	Platform  string `mapstructure:"platform"`
}

// CollectConfig governs batch planning and progress bookkeeping.
type CollectConfig struct {
	BatchSize       int     `mapstructure:"batch_size"`
	MaxNotes        int     `mapstructure:"max_notes"`
	MinFans         int     `mapstructure:"min_fans"`
	PerNoteSeconds  int     `mapstructure:"per_note_seconds"`
	OverheadSeconds int     `mapstructure:"overhead_seconds"`
	SafetyFactor    float64 `mapstructure:"safety_factor"`
	MinTimeoutSec   int     `mapstructure:"min_timeout_seconds"`
	MaxTimeoutSec   int     `mapstructure:"max_timeout_seconds"`
}

// DBConfig points at the local progress database.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("crawler.binary", "uv")
	v.SetDefault("crawler.args", []string{"run", "main.py"})
	v.SetDefault("crawler.platform", "xhs")
	v.SetDefault("crawler.config_artifact", "config/base_config.py")
	v.SetDefault("crawler.output_dir", "data/xhs/json")
	v.SetDefault("collect.batch_size", 5)
	v.SetDefault("collect.max_notes", 100)
	v.SetDefault("collect.min_fans", 0)
	v.SetDefault("collect.per_note_seconds", 4)
	v.SetDefault("collect.overhead_seconds", 60)
	v.SetDefault("collect.safety_factor", 1.5)
	v.SetDefault("collect.min_timeout_seconds", 300)
	v.SetDefault("collect.max_timeout_seconds", 7200)
	v.SetDefault("db.path", "collector.db")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Binary == "" {
		return fmt.Errorf("crawler.binary must be set")
	}
	if c.Crawler.ConfigArtifact == "" {
		return fmt.Errorf("crawler.config_artifact must be set")
	}
	if c.Collect.BatchSize < 1 || c.Collect.BatchSize > 20 {
		return fmt.Errorf("collect.batch_size must be in [1, 20]")
	}
	if c.Collect.MaxNotes <= 0 {
		return fmt.Errorf("collect.max_notes must be > 0")
	}
	if c.Collect.SafetyFactor < 1.0 {
		return fmt.Errorf("collect.safety_factor must be >= 1.0")
	}
	if c.Collect.MinTimeoutSec <= 0 || c.Collect.MaxTimeoutSec < c.Collect.MinTimeoutSec {
		return fmt.Errorf("collect timeout bounds must satisfy 0 < min <= max")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must be set")
	}
	return nil
}

// MinTimeout returns the lower clamp for computed batch timeouts.
func (c CollectConfig) MinTimeout() time.Duration {
	return time.Duration(c.MinTimeoutSec) * time.Second
}

// MaxTimeout returns the upper clamp for computed batch timeouts.
func (c CollectConfig) MaxTimeout() time.Duration {
	return time.Duration(c.MaxTimeoutSec) * time.Second
}
