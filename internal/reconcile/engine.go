// Package reconcile applies remote-originated changes, delivered by
// the webhook receiver, to the local mirrored records. Every event is
// checked against the remote tracker before the mirror is touched:
// the webhook payload says that something changed, the remote record
// says what is true now. Local pushes never go through this package;
// they are handled eagerly by the task executor.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/waldur/jirabridge/internal/config"
	"github.com/waldur/jirabridge/internal/jira"
	"github.com/waldur/jirabridge/internal/logger"
	"github.com/waldur/jirabridge/internal/models"
	"github.com/waldur/jirabridge/internal/storage"
)

// Remote is the slice of the backend adapter the engine verifies
// events against.
type Remote interface {
	RemoteIssue(ctx context.Context, key string) (*jira.Issue, error)
	RemoteComment(ctx context.Context, issueKey, commentID string) (*jira.Comment, error)
	ExtractImpact(ctx context.Context, remote *jira.Issue) int
	ExtractResolutionSLA(ctx context.Context, remote *jira.Issue) *float64
}

// IssueEvent carries what the webhook payload itself contributes to
// an issue event: the acting user and the remote comment inventory.
// Field values are re-read from the remote tracker instead.
type IssueEvent struct {
	Actor string

	// CommentTotal and CommentIDs describe the remote comment set at
	// event time. A remote total lower than the local count means
	// comments were deleted remotely; the ids tell which survive.
	CommentTotal int
	CommentIDs   []string
	HasComments  bool
}

// Engine reconciles remote-side changes into the local store.
type Engine struct {
	store  storage.Storage
	remote Remote
	cfg    *config.Config
}

// NewEngine creates an Engine over the given store and remote
// adapter.
func NewEngine(store storage.Storage, remote Remote, cfg *config.Config) *Engine {
	return &Engine{store: store, remote: remote, cfg: cfg}
}

// CreateIssueFromRemote mirrors a remotely created issue. The remote
// record is fetched first and stays canonical: an issue already gone
// again remotely is not mirrored at all. The duplicate guard makes
// redelivered webhook events harmless.
func (e *Engine) CreateIssueFromRemote(ctx context.Context, project *models.Project, key string, ev IssueEvent) (*models.Issue, error) {
	remote, err := e.remote.RemoteIssue(ctx, key)
	if errors.Is(err, jira.ErrNotFound) {
		logger.Debug("issue %s is already gone remotely, ignoring remote create", key)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if existing, err := e.store.GetIssueByBackendID(ctx, key); err == nil {
		logger.Debug("issue %s already mirrored, ignoring remote create", key)
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	issue := &models.Issue{
		UUID:        uuid.NewString(),
		BackendID:   key,
		ProjectUUID: project.UUID,
		State:       models.StateOK,
		Created:     now,
		Updated:     now,
		Modified:    now,
	}
	if err := e.applyRemote(ctx, issue, remote); err != nil {
		return nil, err
	}
	if ev.Actor != "" {
		issue.UpdatedUsername = ev.Actor
	}

	if err := e.store.CreateIssue(ctx, issue); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			logger.Debug("issue %s mirrored concurrently, ignoring remote create", key)
			return e.store.GetIssueByBackendID(ctx, key)
		}
		return nil, err
	}

	e.recordEvent(ctx, models.EventIssueCreated, key, issue.UpdatedUsername, "issue mirrored from remote tracker")
	return issue, nil
}

// UpdateIssueFromRemote applies a remote issue update. The remote
// record is re-fetched and the local one re-read: an issue gone
// remotely is skipped, and a record modified locally while the event
// was in flight wins over it.
func (e *Engine) UpdateIssueFromRemote(ctx context.Context, issue *models.Issue, ev IssueEvent) error {
	start := time.Now().UTC()

	remote, err := e.remote.RemoteIssue(ctx, issue.BackendID)
	if errors.Is(err, jira.ErrNotFound) {
		logger.Debug("issue %s is gone remotely, ignoring remote update", issue.BackendID)
		return nil
	}
	if err != nil {
		return err
	}

	fresh, err := e.store.GetIssue(ctx, issue.UUID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Debug("issue %s disappeared locally, ignoring remote update", issue.BackendID)
		return nil
	}
	if err != nil {
		return err
	}
	if fresh.Modified.After(start) {
		logger.Debug("issue %s changed locally while handling the event, dropping remote update", issue.BackendID)
		return nil
	}

	if err := e.applyRemote(ctx, fresh, remote); err != nil {
		return err
	}
	if ev.Actor != "" {
		fresh.UpdatedUsername = ev.Actor
	}
	fresh.Updated = time.Now().UTC()

	if err := e.store.UpdateIssue(ctx, fresh); err != nil {
		return err
	}
	*issue = *fresh
	e.recordEvent(ctx, models.EventIssueUpdated, issue.BackendID, issue.UpdatedUsername, "issue updated from remote tracker")

	if ev.HasComments {
		return e.FoldComments(ctx, issue, ev.CommentTotal, ev.CommentIDs)
	}
	return nil
}

// applyRemote copies the canonical remote field values onto the local
// record and resolves its priority and type refs against the local
// caches, importing entries the caches have not seen yet.
func (e *Engine) applyRemote(ctx context.Context, issue *models.Issue, remote *jira.Issue) error {
	issue.Summary = remote.Fields.Summary
	issue.Description = remote.Fields.Description
	issue.State = models.StateOK
	if remote.Fields.Status != nil {
		issue.Status = remote.Fields.Status.Name
	}
	if remote.Fields.Resolution != nil {
		issue.Resolution = remote.Fields.Resolution.Name
	} else {
		issue.Resolution = ""
	}
	if remote.Fields.Creator != nil {
		issue.UpdatedUsername = remote.Fields.Creator.Name
	}

	if remote.Fields.Priority != nil {
		priority, err := e.resolvePriority(ctx, remote.Fields.Priority)
		if err != nil {
			return err
		}
		issue.Priority = priority
	}
	if remote.Fields.IssueType != nil {
		issueType, err := e.resolveIssueType(ctx, remote.Fields.IssueType)
		if err != nil {
			return err
		}
		issue.Type = issueType
	}

	issue.Impact = e.remote.ExtractImpact(ctx, remote)
	if sla := e.remote.ExtractResolutionSLA(ctx, remote); sla != nil {
		issue.ResolutionSLA = sla
	}
	return nil
}

func (e *Engine) resolvePriority(ctx context.Context, ref *jira.NamedField) (*models.Priority, error) {
	priority, err := e.store.GetPriorityByBackendID(ctx, ref.ID)
	if err == nil {
		return priority, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	priority = &models.Priority{
		UUID:      uuid.NewString(),
		BackendID: ref.ID,
		Name:      ref.Name,
	}
	if err := e.store.UpsertPriority(ctx, priority); err != nil {
		return nil, err
	}
	return priority, nil
}

func (e *Engine) resolveIssueType(ctx context.Context, ref *jira.NamedField) (*models.IssueType, error) {
	issueType, err := e.store.GetIssueTypeByBackendID(ctx, ref.ID)
	if err == nil {
		return issueType, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	issueType = &models.IssueType{
		UUID:      uuid.NewString(),
		BackendID: ref.ID,
		Name:      ref.Name,
	}
	if err := e.store.UpsertIssueType(ctx, issueType); err != nil {
		return nil, err
	}
	return issueType, nil
}

// DeleteIssueFromRemote removes the local mirror of a remotely
// deleted issue, but only after confirming the remote record is
// really gone. A missing local record is tolerated.
func (e *Engine) DeleteIssueFromRemote(ctx context.Context, key string) error {
	if _, err := e.remote.RemoteIssue(ctx, key); err == nil {
		logger.Debug("issue %s still exists remotely, skipping local delete", key)
		return nil
	} else if !errors.Is(err, jira.ErrNotFound) {
		return err
	}

	issue, err := e.store.GetIssueByBackendID(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Debug("issue %s was never mirrored, ignoring remote delete", key)
		return nil
	}
	if err != nil {
		return err
	}
	if err := e.store.DeleteIssue(ctx, issue.UUID); err != nil {
		return err
	}
	e.recordEvent(ctx, models.EventIssueDeleted, key, issue.UpdatedUsername, "issue deleted on remote tracker")
	return nil
}

// FoldComments drops local comments the remote side no longer has.
// The remote tracker sends no discrete event for comment deletion
// inside an issue update; a remote total lower than the local count
// is the only signal.
func (e *Engine) FoldComments(ctx context.Context, issue *models.Issue, remoteTotal int, remoteIDs []string) error {
	localCount, err := e.store.CountComments(ctx, issue.UUID)
	if err != nil {
		return err
	}
	if remoteTotal >= localCount {
		return nil
	}
	if err := e.store.DeleteCommentsNotIn(ctx, issue.UUID, remoteIDs); err != nil {
		return err
	}
	e.recordEvent(ctx, models.EventCommentDeleted, issue.BackendID, "",
		fmt.Sprintf("%d comment(s) deleted on remote tracker", localCount-remoteTotal))
	return nil
}

// UpsertCommentFromRemote mirrors a remotely created or updated
// comment on the given issue. The body is re-read from the remote
// tracker; a comment already gone again remotely is skipped. The
// cleaned body and impersonated author are recovered from the
// attribution template.
func (e *Engine) UpsertCommentFromRemote(ctx context.Context, issue *models.Issue, commentID string) error {
	rc, err := e.remote.RemoteComment(ctx, issue.BackendID, commentID)
	if errors.Is(err, jira.ErrNotFound) {
		logger.Debug("comment %s is already gone remotely, ignoring remote upsert", commentID)
		return nil
	}
	if err != nil {
		return err
	}
	body, username := models.CleanMessage(e.cfg.CommentTemplate, rc.Body)

	existing, err := e.store.GetCommentByBackendID(ctx, issue.UUID, commentID)
	switch {
	case err == nil:
		existing.Message = body
		existing.State = models.StateOK
		if username != "" {
			existing.User = &models.User{Username: username}
		}
		if err := e.store.UpdateComment(ctx, existing); err != nil {
			return err
		}
		e.recordEvent(ctx, models.EventCommentUpdated, issue.BackendID, username, "comment updated from remote tracker")
		return nil
	case errors.Is(err, storage.ErrNotFound):
		now := time.Now().UTC()
		comment := &models.Comment{
			UUID:      uuid.NewString(),
			BackendID: commentID,
			IssueUUID: issue.UUID,
			Message:   body,
			State:     models.StateOK,
			Created:   now,
			Modified:  now,
		}
		if t, err := jira.ParseTimestamp(rc.Created); err == nil {
			comment.Created = t
		}
		if username != "" {
			comment.User = &models.User{Username: username}
		}
		if err := e.store.CreateComment(ctx, comment); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				logger.Debug("comment %s mirrored concurrently, ignoring remote create", commentID)
				return nil
			}
			return err
		}
		e.recordEvent(ctx, models.EventCommentCreated, issue.BackendID, username, "comment mirrored from remote tracker")
		return nil
	default:
		return err
	}
}

// DeleteCommentFromRemote removes the local mirror of a remotely
// deleted comment, but only after confirming the remote record is
// really gone. A missing local record is tolerated.
func (e *Engine) DeleteCommentFromRemote(ctx context.Context, issue *models.Issue, commentID string) error {
	if _, err := e.remote.RemoteComment(ctx, issue.BackendID, commentID); err == nil {
		logger.Debug("comment %s still exists remotely, skipping local delete", commentID)
		return nil
	} else if !errors.Is(err, jira.ErrNotFound) {
		return err
	}

	comment, err := e.store.GetCommentByBackendID(ctx, issue.UUID, commentID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Debug("comment %s was never mirrored, ignoring remote delete", commentID)
		return nil
	}
	if err != nil {
		return err
	}
	if err := e.store.DeleteComment(ctx, comment.UUID); err != nil {
		return err
	}
	e.recordEvent(ctx, models.EventCommentDeleted, issue.BackendID, "", "comment deleted on remote tracker")
	return nil
}

// recordEvent writes an audit entry. Event log failures are logged
// and swallowed; the mirror update already succeeded.
func (e *Engine) recordEvent(ctx context.Context, kind, issueKey, actor, message string) {
	event := &models.Event{
		Kind:     kind,
		IssueKey: issueKey,
		Actor:    actor,
		Message:  message,
	}
	if err := e.store.RecordEvent(ctx, event); err != nil {
		logger.Warn("recording %s event for %s: %v", kind, issueKey, err)
	}
}
