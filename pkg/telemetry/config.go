package telemetry

import (
	"fmt"
)

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, fatal).
	Level string

	// Format specifies the log format (console, json).
	Format string

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool

	// EnableSampling enables log sampling for high-frequency logs.
	EnableSampling bool

	// SamplingInitial is the number of messages logged per second initially.
	SamplingInitial int

	// SamplingThereafter logs every Nth message after the initial sample.
	SamplingThereafter int

	// TimeFormat specifies the timestamp format (unix, rfc3339, etc.).
	TimeFormat string
}

// DefaultLoggingConfig returns the configuration library consumers start
// from: info-level JSON on stdout.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:              "info",
		Format:             "json",
		Output:             "stdout",
		EnableCaller:       false,
		EnableSampling:     false,
		SamplingInitial:    100,
		SamplingThereafter: 100,
		TimeFormat:         "rfc3339",
	}
}

// DevelopmentLoggingConfig returns a debug-friendly configuration: verbose
// console output with caller information.
func DevelopmentLoggingConfig() LoggingConfig {
	cfg := DefaultLoggingConfig()
	cfg.Level = "debug"
	cfg.Format = "console"
	cfg.EnableCaller = true
	return cfg
}

// Validate checks if the configuration is valid.
func (c LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}

	if c.Format != "console" && c.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Format)
	}

	if c.Output == "" {
		return fmt.Errorf("log output is required")
	}

	if c.EnableSampling && (c.SamplingInitial <= 0 || c.SamplingThereafter <= 0) {
		return fmt.Errorf("sampling rates must be positive when sampling is enabled")
	}

	return nil
}
