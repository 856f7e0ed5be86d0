package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waldur/jirabridge/internal/backend"
	"github.com/waldur/jirabridge/internal/config"
	"github.com/waldur/jirabridge/internal/jira"
	"github.com/waldur/jirabridge/internal/logger"
	"github.com/waldur/jirabridge/internal/storage"
	"github.com/waldur/jirabridge/internal/storage/memory"
	"github.com/waldur/jirabridge/internal/storage/sqlite"
)

var (
	configPath string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jirabridge",
		Short:         "Bidirectional bridge between local service projects and a JIRA instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(),
		newPingCmd(),
		newSyncCmd(),
		newImportCmd(),
		newPullCmd(),
	)
	return root
}

// loadConfig reads the configuration and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if level != "" {
		parsed, err := logger.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(parsed)
	}
	return cfg, nil
}

// openStore selects the sqlite store when a database path is
// configured, the in-memory store otherwise.
func openStore(cfg *config.Config) (storage.Storage, error) {
	if cfg.Database.Path != "" {
		store, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return store, nil
	}
	logger.Warn("no database path configured, using the in-memory store")
	return memory.New(), nil
}

// buildBackend wires the remote client, the store and the adapter.
func buildBackend(cfg *config.Config, store storage.Storage) (*backend.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := jira.NewClient(jira.Options{
		URL:      cfg.Jira.URL,
		Username: cfg.Jira.Username,
		Password: cfg.Jira.Password,
		Verify:   cfg.Jira.Verify,
		Timeout:  cfg.Jira.Timeout,
	})
	return backend.New(client, store, cfg), nil
}
