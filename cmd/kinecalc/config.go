package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vogtb/kinecalc/packages/solver"
	"github.com/vogtb/kinecalc/packages/telemetry"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Config is the kinecalc.yaml file. Every field is optional; missing fields
// keep their DefaultConfig value.
type Config struct {
	Log LogConfig `yaml:"log"`

	// Schema is the schema file to load. Empty means the bundled dataset.
	Schema string `yaml:"schema"`

	Solver    solver.Settings  `yaml:"solver"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// DefaultConfig returns the configuration used when no file is given.
//
// Environment variables override defaults:
//   - KINECALC_LOG_LEVEL: log level
//   - KINECALC_LOG_FORMAT: log format
//   - KINECALC_SCHEMA: schema file
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  getEnvOr("KINECALC_LOG_LEVEL", "warn"),
			Format: getEnvOr("KINECALC_LOG_FORMAT", "text"),
		},
		Schema:    os.Getenv("KINECALC_SCHEMA"),
		Solver:    solver.DefaultSettings(),
		Telemetry: telemetry.DefaultConfig(),
	}
}

// LoadConfig decodes path over DefaultConfig and validates the result.
// An empty path, or a missing file when optional is set, yields the
// defaults.
func LoadConfig(path string, optional bool) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section of the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
