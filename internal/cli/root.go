// Package cli implements the gradebook command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tOgg1/gradebook/internal/config"
	"github.com/tOgg1/gradebook/internal/db"
	"github.com/tOgg1/gradebook/internal/logging"
)

var (
	cfgFile        string
	dbPath         string
	jsonOutput     bool
	jsonlOutput    bool
	nonInteractive bool
	logLevel       string

	appConfig *config.Config
	logCloser io.Closer

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "gradebook",
	Short: "Tiled marks grid for classes and mark sets",
	Long: `gradebook stores classes, mark sets and marks in a local SQLite database
and edits them through a tiled grid that loads only the region in view.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/gradebook/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides database.path)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&jsonlOutput, "jsonl", false, "output in JSON Lines format")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt or launch the TUI")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
}

// Execute runs the root command. Cancelling ctx aborts running commands.
func Execute(ctx context.Context, v, c, d string) error {
	version, commit, date = v, c, d
	rootCmd.Version = fmt.Sprintf("%s (%s, %s)", version, commit, date)
	return rootCmd.ExecuteContext(ctx)
}

func initConfig() error {
	if jsonOutput && jsonlOutput {
		return fmt.Errorf("--json and --jsonl are mutually exclusive")
	}

	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}
	if dbPath != "" {
		loader.Set("database.path", dbPath)
	}
	if logLevel != "" {
		loader.Set("logging.level", logLevel)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	closeLog()
	closer, err := logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		File:         cfg.Logging.File,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	if err != nil {
		return err
	}
	logCloser = closer

	if err := cfg.EnsureDirectories(); err != nil {
		logging.Component("cli").Warn().Err(err).Msg("failed to create directories")
	}
	if used := loader.ConfigFileUsed(); used != "" {
		logging.Component("cli").Debug().Str("config_file", used).Msg("loaded config file")
	}

	appConfig = cfg
	return nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	if appConfig == nil {
		return config.DefaultConfig()
	}
	return appConfig
}

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsJSONLOutput reports whether --jsonl was given.
func IsJSONLOutput() bool {
	return jsonlOutput
}

// IsNonInteractive reports whether prompts and the TUI are disabled.
func IsNonInteractive() bool {
	if nonInteractive {
		return true
	}
	if value := strings.TrimSpace(os.Getenv("GRADEBOOK_NON_INTERACTIVE")); value != "" && value != "0" {
		return true
	}
	return !hasTTY()
}

func openDatabase(ctx context.Context) (*db.DB, error) {
	cfg := GetConfig()
	database, err := db.Open(db.Config{
		Path:           cfg.DatabasePath(),
		MaxConnections: cfg.Database.MaxConnections,
		BusyTimeoutMs:  cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := database.MigrateUp(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}

func closeLog() {
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
}

func contextStore() *config.ContextStore {
	return config.NewContextStore(GetConfig().ContextPath())
}
