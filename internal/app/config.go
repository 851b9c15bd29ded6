package app

import (
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// Config holds the invocation options for an App. Zero values fall back to
// the settings file and then to built-in defaults.
type Config struct {
	// BuildFile is the descriptor file or directory.
	BuildFile string `validate:"required"`
	// SettingsFile is optional. When empty, DefaultSettingsFile next to the
	// descriptor is read if it exists.
	SettingsFile string
	// Properties are the -D assignments given on the command line.
	Properties map[string]string

	LogFormat  string `validate:"omitempty,oneof=text json"`
	LogLevel   string `validate:"omitempty,oneof=debug info warn error"`
	Workers    int    `validate:"gte=0"`
	StatusPort int    `validate:"gte=0,lte=65535"`

	RerunTasks bool
	DryRun     bool
	Continuous bool
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// settingsPath returns the settings file to read and whether it must exist.
func (c *Config) settingsPath() (string, bool) {
	if c.SettingsFile != "" {
		return c.SettingsFile, true
	}
	dir := c.BuildFile
	if filepath.Ext(dir) != "" {
		dir = filepath.Dir(dir)
	}
	return filepath.Join(dir, DefaultSettingsFile), false
}
