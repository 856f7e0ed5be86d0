package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/waldur/jirabridge/internal/logger"
	"github.com/waldur/jirabridge/internal/reconcile"
	"github.com/waldur/jirabridge/internal/webhook"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			b, err := buildBackend(cfg, store)
			if err != nil {
				return err
			}
			engine := reconcile.NewEngine(store, b, cfg)
			server := webhook.NewServer(webhook.ServerConfig{
				Store:  store,
				Engine: engine,
			})

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			errCh := make(chan error, 1)
			go func() {
				logger.Info("webhook receiver listening on %s", addr)
				errCh <- server.Start(addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.Info("shutting down")
			return server.Shutdown(shutdownCtx)
		},
	}
}
