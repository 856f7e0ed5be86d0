// Package storage defines the local persistence interface for
// mirrored tracker records. Two implementations exist: an in-memory
// store for tests and ephemeral runs, and a sqlite store for
// persistent deployments.
package storage

import (
	"context"
	"errors"

	"github.com/waldur/jirabridge/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyExists is returned when a unique constraint would be
// violated, typically a duplicate backend id.
var ErrAlreadyExists = errors.New("storage: already exists")

// Storage is the persistence contract for mirrored records.
type Storage interface {
	// Projects
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, uuid string) (*models.Project, error)
	GetProjectByBackendID(ctx context.Context, backendID string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, uuid string) error

	// Project/issue-type association
	AssociateIssueType(ctx context.Context, projectUUID, issueTypeUUID string) error
	DisassociateIssueType(ctx context.Context, projectUUID, issueTypeUUID string) error
	ProjectIssueTypes(ctx context.Context, projectUUID string) ([]*models.IssueType, error)

	// Reference caches pulled from the remote instance
	UpsertPriority(ctx context.Context, p *models.Priority) error
	GetPriorityByBackendID(ctx context.Context, backendID string) (*models.Priority, error)
	GetPriorityByName(ctx context.Context, name string) (*models.Priority, error)
	ListPriorities(ctx context.Context) ([]*models.Priority, error)
	DeletePrioritiesNotIn(ctx context.Context, backendIDs []string) error

	UpsertProjectTemplate(ctx context.Context, t *models.ProjectTemplate) error
	ListProjectTemplates(ctx context.Context) ([]*models.ProjectTemplate, error)
	DeleteProjectTemplatesNotIn(ctx context.Context, backendIDs []string) error

	UpsertIssueType(ctx context.Context, t *models.IssueType) error
	GetIssueTypeByBackendID(ctx context.Context, backendID string) (*models.IssueType, error)
	GetIssueTypeByName(ctx context.Context, name string) (*models.IssueType, error)
	ListIssueTypes(ctx context.Context) ([]*models.IssueType, error)
	DeleteIssueType(ctx context.Context, uuid string) error

	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, uuid string) (*models.Issue, error)
	GetIssueByBackendID(ctx context.Context, backendID string) (*models.Issue, error)
	ListIssues(ctx context.Context, projectUUID string) ([]*models.Issue, error)
	UpdateIssue(ctx context.Context, issue *models.Issue) error
	DeleteIssue(ctx context.Context, uuid string) error

	// Comments
	CreateComment(ctx context.Context, c *models.Comment) error
	GetComment(ctx context.Context, uuid string) (*models.Comment, error)
	GetCommentByBackendID(ctx context.Context, issueUUID, backendID string) (*models.Comment, error)
	ListComments(ctx context.Context, issueUUID string) ([]*models.Comment, error)
	CountComments(ctx context.Context, issueUUID string) (int, error)
	UpdateComment(ctx context.Context, c *models.Comment) error
	DeleteComment(ctx context.Context, uuid string) error
	DeleteCommentsNotIn(ctx context.Context, issueUUID string, backendIDs []string) error

	// Attachments
	CreateAttachment(ctx context.Context, a *models.Attachment) error
	GetAttachment(ctx context.Context, uuid string) (*models.Attachment, error)
	GetAttachmentByBackendID(ctx context.Context, issueUUID, backendID string) (*models.Attachment, error)
	ListAttachments(ctx context.Context, issueUUID string) ([]*models.Attachment, error)
	UpdateAttachment(ctx context.Context, a *models.Attachment) error
	DeleteAttachment(ctx context.Context, uuid string) error

	// Event log
	RecordEvent(ctx context.Context, e *models.Event) error
	ListEvents(ctx context.Context, issueKey string) ([]*models.Event, error)

	Close() error
}
