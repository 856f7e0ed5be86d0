package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/waldur/jirabridge/internal/backend"
	"github.com/waldur/jirabridge/internal/config"
	"github.com/waldur/jirabridge/internal/models"
	"github.com/waldur/jirabridge/internal/storage"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import remote projects and their issues",
	}
	cmd.AddCommand(newImportListCmd(), newImportProjectCmd())
	return cmd
}

func newImportListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List remote projects not mirrored yet",
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
			projects, err := b.GetResourcesForImport(cmd.Context())
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Println("All remote projects are mirrored.")
				return nil
			}
			for _, p := range projects {
				fmt.Printf("%-12s %s\n", p.Key, p.Name)
			}
			return nil
		},
	}
}

func newImportProjectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "project <key>",
		Short: "Mirror a remote project and all its issues locally",
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

			project, err := importProject(cmd.Context(), cfg, store, b, args[0])
			if err != nil {
				return err
			}
			issues, err := store.ListIssues(cmd.Context(), project.UUID)
			if err != nil {
				return err
			}
			fmt.Printf("Project %s mirrored with %d issue(s).\n", project.BackendID, len(issues))
			return nil
		},
	}
}

// importProject mirrors the remote project named by key, its issue
// types and its issues. A key that is already mirrored is an error;
// pull is the command for refreshing.
func importProject(ctx context.Context, cfg *config.Config, store storage.Storage, b *backend.Backend, key string) (*models.Project, error) {
	if _, err := store.GetProjectByBackendID(ctx, key); err == nil {
		return nil, fmt.Errorf("project %s is already mirrored, run pull to refresh it", key)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	remote, err := b.GetResourcesForImport(ctx)
	if err != nil {
		return nil, err
	}
	var name string
	for _, p := range remote {
		if p.Key == key {
			name = p.Name
		}
	}
	if name == "" {
		return nil, fmt.Errorf("project %s not found on the remote tracker", key)
	}

	now := time.Now().UTC()
	project := &models.Project{
		UUID:          uuid.NewString(),
		BackendID:     key,
		Name:          name,
		ImpactField:   cfg.Fields.Impact,
		ReporterField: cfg.Fields.Reporter,
		State:         models.StateOK,
		Created:       now,
		Modified:      now,
	}
	if err := store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	if err := b.PullIssueTypes(ctx, project); err != nil {
		return nil, err
	}
	if err := b.ImportProjectIssues(ctx, project, ""); err != nil {
		return nil, err
	}
	return project, nil
}
