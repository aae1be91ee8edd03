package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled here so a generated config file
//     shows the full shape of every section
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyEngineDefaults(&cfg.Engine)
	applyIndexDefaults(&cfg.Index)
	applyRemoteDefaults(&cfg.Remote)

	// Metrics default to disabled
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyEngineDefaults sets operation lifecycle defaults.
func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.IdleInterval == 0 {
		cfg.IdleInterval = 30 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}

	if cfg.Backoff.Initial == 0 {
		cfg.Backoff.Initial = 500 * time.Millisecond
	}
	if cfg.Backoff.Max == 0 {
		cfg.Backoff.Max = 30 * time.Second
	}
	if cfg.Backoff.Multiplier == 0 {
		cfg.Backoff.Multiplier = 2.0
	}
	if cfg.Backoff.Jitter == 0 {
		cfg.Backoff.Jitter = 0.2
	}
}

// applyIndexDefaults sets metadata index defaults.
func applyIndexDefaults(cfg *IndexConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	// Initialize maps if nil
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	if _, ok := cfg.Badger["dir"]; !ok {
		cfg.Badger["dir"] = "/tmp/dittosync-catalog"
	}
}

// applyRemoteDefaults sets remote coordinator defaults.
func applyRemoteDefaults(cfg *RemoteConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	// Initialize maps if nil
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	// Apply defaults for all coordinator types (for config file generation)
	if _, ok := cfg.Filesystem["root"]; !ok {
		cfg.Filesystem["root"] = "/tmp/dittosync-container"
	}
	if _, ok := cfg.S3["mirror_dir"]; !ok {
		cfg.S3["mirror_dir"] = "/tmp/dittosync-mirror"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Index: IndexConfig{
			Memory: make(map[string]any),
			Badger: make(map[string]any),
		},
		Remote: RemoteConfig{
			Filesystem: make(map[string]any),
			S3:         make(map[string]any),
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
