package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tOgg1/gradebook/internal/models"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 40, cfg.Grid.TileRows)
	require.Equal(t, 8, cfg.Grid.TileCols)
	require.Equal(t, 20, cfg.Grid.PrefetchRows)
	require.Equal(t, 6, cfg.Grid.PrefetchCols)
}

func TestValidateRejectsBadGrid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero tile rows", mutate: func(c *Config) { c.Grid.TileRows = 0 }},
		{name: "negative prefetch", mutate: func(c *Config) { c.Grid.PrefetchCols = -1 }},
		{name: "no concurrency", mutate: func(c *Config) { c.Grid.MaxConcurrentFetches = 0 }},
		{name: "bad theme", mutate: func(c *Config) { c.TUI.Theme = "neon" }},
		{name: "no connections", mutate: func(c *Config) { c.Database.MaxConnections = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
grid:
  tile_rows: 16
  prefetch_rows: 4
  fetch_timeout: 2s
database:
  path: ~/marks.db
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Setenv("GRADEBOOK_GRID_TILE_COLS", "5")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.Grid.TileRows)
	require.Equal(t, 5, cfg.Grid.TileCols)
	require.Equal(t, 4, cfg.Grid.PrefetchRows)
	require.Equal(t, 6, cfg.Grid.PrefetchCols)
	require.Equal(t, 2*time.Second, cfg.Grid.FetchTimeout)

	home, _ := os.UserHomeDir()
	require.Equal(t, filepath.Join(home, "marks.db"), cfg.DatabasePath())
}

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grid:\n  tile_rows: 0\n"), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grid.TileRows = 0
	cfg.Grid.PrefetchCols = -2
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)

	var verrs *models.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := make([]string, 0, len(verrs.Errors))
	for _, e := range verrs.Errors {
		fields = append(fields, e.Field)
	}
	require.ElementsMatch(t, []string{"logging.format", "grid.tile_rows", "grid.prefetch_cols"}, fields)
}

func TestDefaultConfigFollowsXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")

	cfg := DefaultConfig()
	require.Equal(t, filepath.Join("/xdg/data", "gradebook"), cfg.Global.DataDir)
	require.Equal(t, filepath.Join("/xdg/data", "gradebook", "gradebook.db"), cfg.DatabasePath())
	require.Equal(t, filepath.Join("/xdg/config", "gradebook", "context.yaml"), cfg.ContextPath())
}

func TestLoaderSetOverridesEnvironment(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvVar("database.path"), "/from/env.db")
	t.Setenv(EnvVar("logging.level"), "warn")

	loader := NewLoader()
	loader.Set("database.path", "/from/flag.db")
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, "/from/flag.db", cfg.DatabasePath())
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Empty(t, loader.ConfigFileUsed())
}

func TestEnvVar(t *testing.T) {
	require.Equal(t, "GRADEBOOK_GRID_MAX_CONCURRENT_FETCHES", EnvVar("grid.max_concurrent_fetches"))
}
