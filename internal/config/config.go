// Package config handles gradebook configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tOgg1/gradebook/internal/models"
)

// Config is the root configuration structure for the gradebook.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Marks grid loading settings
	Grid GridConfig `yaml:"grid" mapstructure:"grid"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where the gradebook stores its data (default: ~/.local/share/gradebook).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/gradebook).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeout is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// GridConfig tunes tile sizes and prefetch margins of the marks grid.
// These are tuning parameters; changing them never changes which values
// end up in the matrix.
type GridConfig struct {
	TileRows     int `yaml:"tile_rows" mapstructure:"tile_rows"`
	TileCols     int `yaml:"tile_cols" mapstructure:"tile_cols"`
	PrefetchRows int `yaml:"prefetch_rows" mapstructure:"prefetch_rows"`
	PrefetchCols int `yaml:"prefetch_cols" mapstructure:"prefetch_cols"`

	// MaxConcurrentFetches bounds backend reads running at once.
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches" mapstructure:"max_concurrent_fetches"`

	// FetchTimeout bounds a single tile read.
	FetchTimeout time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, dark, light).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// CellWidth is the rendered width of one mark column.
	CellWidth int `yaml:"cell_width" mapstructure:"cell_width"`
}

// DefaultConfig returns the default configuration. Data and config
// directories follow XDG_DATA_HOME and XDG_CONFIG_HOME when set.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataHome := envOr("XDG_DATA_HOME", filepath.Join(homeDir, ".local", "share"))
	configHome := envOr("XDG_CONFIG_HOME", filepath.Join(homeDir, ".config"))

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(dataHome, "gradebook"),
			ConfigDir: filepath.Join(configHome, "gradebook"),
		},
		Database: DatabaseConfig{
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Grid: GridConfig{
			TileRows:             40,
			TileCols:             8,
			PrefetchRows:         20,
			PrefetchCols:         6,
			MaxConcurrentFetches: 8,
			FetchTimeout:         10 * time.Second,
		},
		TUI: TUIConfig{
			Theme:     "default",
			CellWidth: 7,
		},
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs models.ValidationErrors

	if c.Database.MaxConnections < 1 {
		errs.AddMessage("database.max_connections", "must be at least 1")
	}
	if c.Database.BusyTimeoutMs < 0 {
		errs.AddMessage("database.busy_timeout_ms", "must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		errs.AddMessage("logging.format", "must be console or json")
	}

	if c.Grid.TileRows < 1 {
		errs.AddMessage("grid.tile_rows", "must be at least 1")
	}
	if c.Grid.TileCols < 1 {
		errs.AddMessage("grid.tile_cols", "must be at least 1")
	}
	if c.Grid.PrefetchRows < 0 {
		errs.AddMessage("grid.prefetch_rows", "must not be negative")
	}
	if c.Grid.PrefetchCols < 0 {
		errs.AddMessage("grid.prefetch_cols", "must not be negative")
	}
	if c.Grid.MaxConcurrentFetches < 1 {
		errs.AddMessage("grid.max_concurrent_fetches", "must be at least 1")
	}
	if c.Grid.FetchTimeout < 0 {
		errs.AddMessage("grid.fetch_timeout", "must not be negative")
	}

	switch c.TUI.Theme {
	case "", "default", "dark", "light":
	default:
		errs.AddMessage("tui.theme", "must be one of default, dark, light")
	}
	if c.TUI.CellWidth < 0 {
		errs.AddMessage("tui.cell_width", "must not be negative")
	}

	return errs.Err()
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "gradebook.db")
}

// ContextPath returns the path of the persisted CLI context.
func (c *Config) ContextPath() string {
	return filepath.Join(c.Global.ConfigDir, "context.yaml")
}
