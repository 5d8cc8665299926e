package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "GRADEBOOK"

// setting is one configurable key. Every setting gets a viper default and
// a GRADEBOOK_* environment binding, so Unmarshal sees env overrides even
// for keys absent from the config file.
type setting struct {
	key string
	def func(*Config) any
}

var settings = []setting{
	{"global.data_dir", func(c *Config) any { return c.Global.DataDir }},
	{"global.config_dir", func(c *Config) any { return c.Global.ConfigDir }},
	{"database.path", func(c *Config) any { return c.Database.Path }},
	{"database.max_connections", func(c *Config) any { return c.Database.MaxConnections }},
	{"database.busy_timeout_ms", func(c *Config) any { return c.Database.BusyTimeoutMs }},
	{"logging.level", func(c *Config) any { return c.Logging.Level }},
	{"logging.format", func(c *Config) any { return c.Logging.Format }},
	{"logging.file", func(c *Config) any { return c.Logging.File }},
	{"logging.enable_caller", func(c *Config) any { return c.Logging.EnableCaller }},
	{"grid.tile_rows", func(c *Config) any { return c.Grid.TileRows }},
	{"grid.tile_cols", func(c *Config) any { return c.Grid.TileCols }},
	{"grid.prefetch_rows", func(c *Config) any { return c.Grid.PrefetchRows }},
	{"grid.prefetch_cols", func(c *Config) any { return c.Grid.PrefetchCols }},
	{"grid.max_concurrent_fetches", func(c *Config) any { return c.Grid.MaxConcurrentFetches }},
	{"grid.fetch_timeout", func(c *Config) any { return c.Grid.FetchTimeout }},
	{"tui.theme", func(c *Config) any { return c.TUI.Theme }},
	{"tui.cell_width", func(c *Config) any { return c.TUI.CellWidth }},
}

// EnvVar returns the environment variable that overrides key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Loader resolves configuration with precedence
// defaults < config file < environment < explicit Set calls.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// SetConfigFile pins the config file instead of searching for one. A
// missing pinned file is an error; a missing searched file is not.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Load resolves, expands and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	v := l.v

	v.SetConfigType("yaml")
	if l.configFile != "" {
		v.SetConfigFile(expandTilde(l.configFile))
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(cfg.Global.ConfigDir)
		v.AddConfigPath(".")
	}

	for _, s := range settings {
		v.SetDefault(s.key, s.def(cfg))
		_ = v.BindEnv(s.key, EnvVar(s.key))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Global.DataDir = expandTilde(cfg.Global.DataDir)
	cfg.Global.ConfigDir = expandTilde(cfg.Global.ConfigDir)
	cfg.Database.Path = expandTilde(cfg.Database.Path)
	cfg.Logging.File = expandTilde(cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Set overrides key above every other source.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// ConfigFileUsed returns the config file that was loaded, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
