package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/waldur/jirabridge/internal/logger"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity and credentials against the remote tracker",
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
			if err := b.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("%s is reachable\n", cfg.Jira.URL)
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh the priority and project template caches",
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

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return b.PullPriorities(ctx) })
			g.Go(func() error { return b.PullProjectTemplates(ctx) })
			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info("reference caches refreshed")
			return nil
		},
	}
}

func newPullCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "pull <project-key>",
		Short: "Refresh a mirrored project's issue types and pull its issues",
		Args:  cobra.ExactArgs(1),
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
			project, err := store.GetProjectByBackendID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("project %s is not mirrored: %w", args[0], err)
			}
			if err := b.PullIssueTypes(cmd.Context(), project); err != nil {
				return err
			}
			if err := b.ImportProjectIssues(cmd.Context(), project, search); err != nil {
				return err
			}
			logger.Info("project %s refreshed", project.BackendID)
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "only pull issues whose text matches this term")
	return cmd
}
