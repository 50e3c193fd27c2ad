package config

import (
	"fmt"
	"strings"
)

var validDrivers = map[string]bool{
	"memory":   true,
	"sqlite":   true,
	"postgres": true,
}

var validLevels = map[string]bool{
	"":      true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the config for required fields and out-of-range values.
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	if !validDrivers[cfg.Storage.Driver] {
		errs = append(errs, fmt.Sprintf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if cfg.Storage.Driver != "memory" && cfg.Storage.DSN == "" {
		errs = append(errs, fmt.Sprintf("storage.dsn: required for driver %q", cfg.Storage.Driver))
	}
	if cfg.Engine.Workers < 0 {
		errs = append(errs, "engine.workers: must not be negative")
	}
	if cfg.Engine.QueueDepth < 0 {
		errs = append(errs, "engine.queue_depth: must not be negative")
	}
	if cfg.Scheduler.IntervalSeconds < 0 {
		errs = append(errs, "scheduler.interval_seconds: must not be negative")
	}
	if cfg.Audit.RetentionCap < 0 {
		errs = append(errs, "audit.retention_cap: must not be negative")
	}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging.level: unknown level %q", cfg.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
