package main

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/waldur/jirabridge/internal/backend"
	"github.com/waldur/jirabridge/internal/config"
	"github.com/waldur/jirabridge/internal/jira"
	"github.com/waldur/jirabridge/internal/models"
	"github.com/waldur/jirabridge/internal/storage/memory"
)

// stubClient answers project discovery with a fixed listing; the rest
// is inert.
type stubClient struct {
	projects []jira.Project
	project  *jira.Project
}

func (s *stubClient) Myself(context.Context) (*jira.User, error) {
	return &jira.User{Name: "robot"}, nil
}
func (s *stubClient) Projects(context.Context) ([]jira.Project, error) { return s.projects, nil }
func (s *stubClient) Project(context.Context, string) (*jira.Project, error) {
	if s.project == nil {
		return nil, jira.ErrNotFound
	}
	return s.project, nil
}
func (s *stubClient) CreateProject(context.Context, jira.CreateProjectRequest) error { return nil }
func (s *stubClient) UpdateProject(context.Context, string, string) error            { return nil }
func (s *stubClient) DeleteProject(context.Context, string) error                    { return nil }
func (s *stubClient) ProjectTemplates(context.Context) ([]jira.ProjectTemplate, error) {
	return nil, nil
}
func (s *stubClient) Fields(context.Context) ([]jira.Field, error)        { return nil, nil }
func (s *stubClient) Priorities(context.Context) ([]jira.Priority, error) { return nil, nil }
func (s *stubClient) CreateIssue(context.Context, map[string]any) (*jira.Issue, error) {
	return nil, jira.ErrNotFound
}
func (s *stubClient) Issue(context.Context, string) (*jira.Issue, error) {
	return nil, jira.ErrNotFound
}
func (s *stubClient) SearchIssues(context.Context, string) ([]jira.Issue, error) { return nil, nil }
func (s *stubClient) UpdateIssue(context.Context, string, map[string]any) error  { return nil }
func (s *stubClient) DeleteIssue(context.Context, string) error                  { return nil }
func (s *stubClient) Comments(context.Context, string) ([]jira.Comment, error)   { return nil, nil }
func (s *stubClient) Comment(context.Context, string, string) (*jira.Comment, error) {
	return nil, jira.ErrNotFound
}
func (s *stubClient) AddComment(context.Context, string, string) (*jira.Comment, error) {
	return &jira.Comment{ID: "1"}, nil
}
func (s *stubClient) UpdateComment(context.Context, string, string, string) (*jira.Comment, error) {
	return &jira.Comment{ID: "1"}, nil
}
func (s *stubClient) DeleteComment(context.Context, string, string) error { return nil }
func (s *stubClient) AddAttachment(context.Context, string, string, io.Reader) (*jira.Attachment, error) {
	return &jira.Attachment{ID: "1"}, nil
}
func (s *stubClient) Attachment(context.Context, string) (*jira.Attachment, error) {
	return nil, jira.ErrNotFound
}
func (s *stubClient) DeleteAttachment(context.Context, string) error { return nil }

func TestImportProjectRejectsAlreadyMirrored(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cfg := &config.Config{CommentTemplate: config.DefaultCommentTemplate}
	client := &stubClient{projects: []jira.Project{{Key: "TST", Name: "Test"}}}
	b := backend.New(client, store, cfg)

	now := time.Now().UTC()
	mirrored := &models.Project{
		UUID:      uuid.NewString(),
		BackendID: "TST",
		Name:      "Test",
		State:     models.StateOK,
		Created:   now,
		Modified:  now,
	}
	if err := store.CreateProject(ctx, mirrored); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	_, err := importProject(ctx, cfg, store, b, "TST")
	if err == nil {
		t.Fatalf("expected an error for an already mirrored project")
	}
	if !strings.Contains(err.Error(), "already mirrored") {
		t.Errorf("error = %v", err)
	}
}

func TestImportProjectUnknownKey(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cfg := &config.Config{CommentTemplate: config.DefaultCommentTemplate}
	client := &stubClient{projects: []jira.Project{{Key: "TST", Name: "Test"}}}
	b := backend.New(client, store, cfg)

	if _, err := importProject(ctx, cfg, store, b, "NOPE"); err == nil {
		t.Errorf("expected an error for a key the remote tracker does not have")
	}
}

func TestImportProjectMirrors(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cfg := &config.Config{CommentTemplate: config.DefaultCommentTemplate}
	client := &stubClient{
		projects: []jira.Project{{Key: "TST", Name: "Test"}},
		project: &jira.Project{
			Key:        "TST",
			Name:       "Test",
			IssueTypes: []jira.IssueType{{ID: "10", Name: "Task"}},
		},
	}
	b := backend.New(client, store, cfg)

	project, err := importProject(ctx, cfg, store, b, "TST")
	if err != nil {
		t.Fatalf("importProject: %v", err)
	}
	if project.BackendID != "TST" || project.Name != "Test" {
		t.Errorf("project = %+v", project)
	}
	if _, err := store.GetProjectByBackendID(ctx, "TST"); err != nil {
		t.Errorf("project not stored: %v", err)
	}
}
