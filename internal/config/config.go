// Package config loads itemupdate settings. Values are layered, highest
// precedence last: built-in defaults, an optional YAML file, then
// ITEMUPDATE_* environment variables. Command-line flags are applied by
// the cli package on top of the loaded Config.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/itemupdate/internal/ir"
)

// Config holds all configuration for itemupdate.
type Config struct {
	Store   StoreConfig   `koanf:"store"`
	Log     LogConfig     `koanf:"log"`
	Archive ArchiveConfig `koanf:"archive"`
	EPerson string        `koanf:"eperson"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// StoreConfig locates the SQLite repository and its asset directory.
type StoreConfig struct {
	Path     string `koanf:"path"`
	AssetDir string `koanf:"asset_dir"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ArchiveConfig controls how archive directories map to items.
type ArchiveConfig struct {
	HandlePrefix string `koanf:"handle_prefix"`
	ItemField    string `koanf:"item_field"`
}

// MetricsConfig holds the optional Prometheus textfile destination.
type MetricsConfig struct {
	File string `koanf:"file"`
}

func defaults() map[string]any {
	return map[string]any{
		"store.path":            "itemupdate.db",
		"store.asset_dir":       "",
		"log.level":             "info",
		"log.format":            "text",
		"archive.handle_prefix": "http://hdl.handle.net/",
		"archive.item_field":    "",
		"eperson":               "",
		"metrics.file":          "",
	}
}

// Validate checks all configuration values and returns aggregated errors.
func (c *Config) Validate() error {
	return errors.Join(
		c.Store.validate(),
		c.Log.validate(),
		c.Archive.validate(),
	)
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return errors.New("store.path must not be empty")
	}
	return nil
}

func (l *LogConfig) validate() error {
	var errs []error

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", l.Level))
	}

	switch l.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of: json, text; got %q", l.Format))
	}

	return errors.Join(errs...)
}

func (a *ArchiveConfig) validate() error {
	var errs []error

	if a.ItemField == "" && strings.TrimSpace(a.HandlePrefix) == "" {
		errs = append(errs, errors.New("archive.handle_prefix must not be empty when archive.item_field is unset"))
	}
	if a.ItemField != "" {
		if _, err := ir.ParseFieldName(a.ItemField, false); err != nil {
			errs = append(errs, fmt.Errorf("archive.item_field: %w", err))
		}
	}

	return errors.Join(errs...)
}
