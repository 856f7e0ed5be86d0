// Package task drives local record operations against the remote
// tracker: it walks each record through its sync state machine and
// retries transient remote failures with exponential backoff.
package task

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/waldur/jirabridge/internal/backend"
	"github.com/waldur/jirabridge/internal/jira"
	"github.com/waldur/jirabridge/internal/logger"
	"github.com/waldur/jirabridge/internal/models"
	"github.com/waldur/jirabridge/internal/storage"
)

// Executor runs backend operations for local records.
type Executor struct {
	store   storage.Storage
	backend *backend.Backend

	// MaxElapsed bounds the total retry window per operation.
	MaxElapsed time.Duration
}

// NewExecutor creates an Executor.
func NewExecutor(store storage.Storage, b *backend.Backend) *Executor {
	return &Executor{
		store:      store,
		backend:    b,
		MaxElapsed: 2 * time.Minute,
	}
}

// retry runs op with exponential backoff. Errors that cannot succeed
// on retry (credential lockout, request rejections) abort
// immediately.
func (e *Executor) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = e.MaxElapsed

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		logger.Debug("remote operation failed, will retry: %v", err)
		return err
	}, backoff.WithContext(policy, ctx))
}

// retryable classifies a backend error. Server-side failures and
// transport errors are worth retrying; everything the remote side
// rejected outright is not.
func retryable(err error) bool {
	if backend.IsCaptcha(err) {
		return false
	}
	var apiErr *jira.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return true
		}
		return apiErr.StatusCode >= 500
	}
	if errors.Is(err, backend.ErrInvalid) {
		return false
	}
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrAlreadyExists) {
		return false
	}
	return true
}

// CreateProject pushes a locally created project to the remote
// tracker.
func (e *Executor) CreateProject(ctx context.Context, project *models.Project) error {
	if err := e.beginProject(ctx, project); err != nil {
		return err
	}
	err := e.retry(ctx, func() error { return e.backend.CreateProject(ctx, project) })
	return e.finishProject(ctx, project, err)
}

// UpdateProject pushes a local project rename.
func (e *Executor) UpdateProject(ctx context.Context, project *models.Project) error {
	if err := e.beginProject(ctx, project); err != nil {
		return err
	}
	err := e.retry(ctx, func() error { return e.backend.UpdateProject(ctx, project) })
	return e.finishProject(ctx, project, err)
}

// DeleteProject deletes the remote project and the local mirror. A
// project that never made it to the remote side (empty backend id) is
// deleted locally only.
func (e *Executor) DeleteProject(ctx context.Context, project *models.Project) error {
	if err := e.beginProject(ctx, project); err != nil {
		return err
	}
	var err error
	if project.BackendID != "" {
		err = e.retry(ctx, func() error { return e.backend.DeleteProject(ctx, project) })
	}
	if err != nil {
		return e.finishProject(ctx, project, err)
	}
	return e.store.DeleteProject(ctx, project.UUID)
}

func (e *Executor) beginProject(ctx context.Context, project *models.Project) error {
	state, err := project.State.Begin()
	if err != nil {
		return err
	}
	project.State = state
	return e.store.UpdateProject(ctx, project)
}

func (e *Executor) finishProject(ctx context.Context, project *models.Project, opErr error) error {
	if opErr != nil {
		project.State = models.StateErred
		project.ErrorMessage = opErr.Error()
	} else {
		project.State = models.StateOK
		project.ErrorMessage = ""
	}
	if err := e.store.UpdateProject(ctx, project); err != nil {
		return err
	}
	return opErr
}

// CreateIssue pushes a locally created issue. Safe to rerun: the
// backend skips the remote create once a backend id is present.
func (e *Executor) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if err := e.beginIssue(ctx, issue); err != nil {
		return err
	}
	err := e.retry(ctx, func() error { return e.backend.CreateIssue(ctx, issue) })
	if err == nil {
		e.recordEvent(ctx, models.EventIssueCreated, issue, "issue pushed to remote tracker")
	}
	return e.finishIssue(ctx, issue, err)
}

// UpdateIssue pushes local issue field changes.
func (e *Executor) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	if err := e.beginIssue(ctx, issue); err != nil {
		return err
	}
	err := e.retry(ctx, func() error { return e.backend.UpdateIssue(ctx, issue) })
	if err == nil {
		e.recordEvent(ctx, models.EventIssueUpdated, issue, "issue update pushed to remote tracker")
	}
	return e.finishIssue(ctx, issue, err)
}

// DeleteIssue deletes the remote issue and the local mirror.
func (e *Executor) DeleteIssue(ctx context.Context, issue *models.Issue) error {
	if err := e.beginIssue(ctx, issue); err != nil {
		return err
	}
	var err error
	if issue.BackendID != "" {
		err = e.retry(ctx, func() error { return e.backend.DeleteIssue(ctx, issue) })
	}
	if err != nil {
		return e.finishIssue(ctx, issue, err)
	}
	e.recordEvent(ctx, models.EventIssueDeleted, issue, "issue deletion pushed to remote tracker")
	return e.store.DeleteIssue(ctx, issue.UUID)
}

func (e *Executor) beginIssue(ctx context.Context, issue *models.Issue) error {
	state, err := issue.State.Begin()
	if err != nil {
		return err
	}
	issue.State = state
	return e.store.UpdateIssue(ctx, issue)
}

func (e *Executor) finishIssue(ctx context.Context, issue *models.Issue, opErr error) error {
	if opErr != nil {
		issue.State = models.StateErred
		issue.ErrorMessage = opErr.Error()
	} else {
		issue.State = models.StateOK
		issue.ErrorMessage = ""
	}
	if err := e.store.UpdateIssue(ctx, issue); err != nil {
		return err
	}
	return opErr
}

// CreateComment pushes a locally created comment.
func (e *Executor) CreateComment(ctx context.Context, comment *models.Comment) error {
	if err := e.beginComment(ctx, comment); err != nil {
		return err
	}
	err := e.retry(ctx, func() error { return e.backend.CreateComment(ctx, comment) })
	return e.finishComment(ctx, comment, err)
}

// UpdateComment pushes a local comment edit.
func (e *Executor) UpdateComment(ctx context.Context, comment *models.Comment) error {
	if err := e.beginComment(ctx, comment); err != nil {
		return err
	}
	err := e.retry(ctx, func() error { return e.backend.UpdateComment(ctx, comment) })
	return e.finishComment(ctx, comment, err)
}

// DeleteComment deletes the remote comment and the local mirror.
func (e *Executor) DeleteComment(ctx context.Context, comment *models.Comment) error {
	if err := e.beginComment(ctx, comment); err != nil {
		return err
	}
	var err error
	if comment.BackendID != "" {
		err = e.retry(ctx, func() error { return e.backend.DeleteComment(ctx, comment) })
	}
	if err != nil {
		return e.finishComment(ctx, comment, err)
	}
	return e.store.DeleteComment(ctx, comment.UUID)
}

func (e *Executor) beginComment(ctx context.Context, comment *models.Comment) error {
	state, err := comment.State.Begin()
	if err != nil {
		return err
	}
	comment.State = state
	return e.store.UpdateComment(ctx, comment)
}

func (e *Executor) finishComment(ctx context.Context, comment *models.Comment, opErr error) error {
	if opErr != nil {
		comment.State = models.StateErred
		comment.ErrorMessage = opErr.Error()
	} else {
		comment.State = models.StateOK
		comment.ErrorMessage = ""
	}
	if err := e.store.UpdateComment(ctx, comment); err != nil {
		return err
	}
	return opErr
}

// CreateAttachment uploads a locally stored attachment. Safe to
// rerun: the backend skips the upload once a backend id is present,
// and the id is persisted before the record is marked done.
func (e *Executor) CreateAttachment(ctx context.Context, attachment *models.Attachment, content []byte) error {
	if err := e.beginAttachment(ctx, attachment); err != nil {
		return err
	}
	err := e.retry(ctx, func() error { return e.backend.CreateAttachment(ctx, attachment, content) })
	return e.finishAttachment(ctx, attachment, err)
}

// DeleteAttachment deletes the remote attachment and the local
// mirror. An attachment that never made it remote (empty backend id)
// is deleted locally only.
func (e *Executor) DeleteAttachment(ctx context.Context, attachment *models.Attachment) error {
	if err := e.beginAttachment(ctx, attachment); err != nil {
		return err
	}
	var err error
	if attachment.BackendID != "" {
		err = e.retry(ctx, func() error { return e.backend.DeleteAttachment(ctx, attachment) })
	}
	if err != nil {
		return e.finishAttachment(ctx, attachment, err)
	}
	return e.store.DeleteAttachment(ctx, attachment.UUID)
}

func (e *Executor) beginAttachment(ctx context.Context, attachment *models.Attachment) error {
	state, err := attachment.State.Begin()
	if err != nil {
		return err
	}
	attachment.State = state
	return e.store.UpdateAttachment(ctx, attachment)
}

func (e *Executor) finishAttachment(ctx context.Context, attachment *models.Attachment, opErr error) error {
	if opErr != nil {
		attachment.State = models.StateErred
		attachment.ErrorMessage = opErr.Error()
	} else {
		attachment.State = models.StateOK
		attachment.ErrorMessage = ""
	}
	if err := e.store.UpdateAttachment(ctx, attachment); err != nil {
		return err
	}
	return opErr
}

func (e *Executor) recordEvent(ctx context.Context, kind string, issue *models.Issue, message string) {
	actor := ""
	if issue.User != nil {
		actor = issue.User.Username
	}
	event := &models.Event{
		Kind:     kind,
		IssueKey: issue.BackendID,
		Actor:    actor,
		Message:  message,
	}
	if err := e.store.RecordEvent(ctx, event); err != nil {
		logger.Warn("recording %s event for %s: %v", kind, issue.BackendID, err)
	}
}
