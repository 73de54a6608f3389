// Package config loads and validates the engine configuration from YAML
// files and environment variables.
package config

import (
	"github.com/XiaoConstantine/evo-go/pkg/evolution"
)

// Config is the complete runtime configuration.
type Config struct {
	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty" validate:"omitempty"`

	// Evolution engine configuration
	Evolution evolution.Config `yaml:"evolution" validate:"required"`

	// Archive configuration
	Archive ArchiveConfig `yaml:"archive,omitempty" validate:"omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Severity threshold (debug, info, warn, error, fatal)
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error fatal"`

	// Optional log file path; empty disables file output
	File string `yaml:"file,omitempty"`

	// ANSI colors on console output
	Color bool `yaml:"color"`

	// Route console output to stderr instead of stdout
	UseStderr bool `yaml:"use_stderr"`
}

// ArchiveConfig controls generation persistence.
type ArchiveConfig struct {
	// Enabled switches archiving on
	Enabled bool `yaml:"enabled"`

	// Path to the sqlite database file
	Path string `yaml:"path" validate:"required_if=Enabled true"`

	// RetainGenerations bounds stored rows per run; 0 keeps everything
	RetainGenerations int `yaml:"retain_generations" validate:"min=0"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
			Color: true,
		},
		Evolution: evolution.DefaultConfig(),
		Archive: ArchiveConfig{
			Enabled:           false,
			Path:              "evolution.db",
			RetainGenerations: 200,
		},
	}
}

// Validate runs struct-tag validation plus the evolution engine's own
// structural checks.
func (c *Config) Validate() error {
	v, err := NewValidator()
	if err != nil {
		return err
	}
	if err := v.ValidateConfig(c); err != nil {
		return err
	}
	return c.Evolution.Validate()
}
