// Package backend implements the adapter between local mirrored
// records and a remote JIRA instance. All pushes are eager: local
// operations call the remote API synchronously through the task
// executor, while remote-originated changes arrive through the
// webhook receiver and the reconciliation engine.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/waldur/jirabridge/internal/config"
	"github.com/waldur/jirabridge/internal/jira"
	"github.com/waldur/jirabridge/internal/logger"
	"github.com/waldur/jirabridge/internal/models"
	"github.com/waldur/jirabridge/internal/storage"
	"github.com/waldur/jirabridge/internal/telemetry"
)

// Backend pushes local records to the remote tracker and pulls
// remote reference data into the local caches.
type Backend struct {
	client jira.Client
	store  storage.Storage
	cfg    *config.Config

	mu       sync.Mutex
	fieldIDs map[string]string // field name -> remote field id

	calls metric.Int64Counter
}

// New creates a Backend over the given client and store.
func New(client jira.Client, store storage.Storage, cfg *config.Config) *Backend {
	counter, err := telemetry.Meter("backend").Int64Counter("backend.calls")
	if err != nil {
		logger.Warn("backend: create call counter: %v", err)
	}
	return &Backend{
		client:   client,
		store:    store,
		cfg:      cfg,
		fieldIDs: make(map[string]string),
		calls:    counter,
	}
}

func (b *Backend) count(ctx context.Context, op string) {
	if b.calls == nil {
		return
	}
	b.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// Ping checks connectivity and credentials against the remote
// instance.
func (b *Backend) Ping(ctx context.Context) error {
	b.count(ctx, "ping")
	_, err := b.client.Myself(ctx)
	if err != nil {
		if IsCaptcha(err) {
			return wrap("ping", fmt.Errorf("remote instance demands a CAPTCHA, sign in through the web UI to unlock the account: %w", err))
		}
		return wrap("ping", err)
	}
	return nil
}

// Sync refreshes the per-connection reference caches.
func (b *Backend) Sync(ctx context.Context) error {
	if err := b.PullProjectTemplates(ctx); err != nil {
		return err
	}
	return b.PullPriorities(ctx)
}

// GetResourcesForImport lists remote projects that have no local
// mirror yet.
func (b *Backend) GetResourcesForImport(ctx context.Context) ([]jira.Project, error) {
	b.count(ctx, "resources_for_import")
	remote, err := b.client.Projects(ctx)
	if err != nil {
		return nil, wrap("list projects", err)
	}
	local, err := b.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(local))
	for _, p := range local {
		known[p.BackendID] = true
	}
	var out []jira.Project
	for _, p := range remote {
		if !known[p.Key] {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetFieldIDByName resolves a human field name to the remote field
// id, scanning clause names as well. The field list is fetched once
// and cached for the lifetime of the Backend.
func (b *Backend) GetFieldIDByName(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("field name is empty")
	}

	b.mu.Lock()
	if id, ok := b.fieldIDs[name]; ok {
		b.mu.Unlock()
		return id, nil
	}
	b.mu.Unlock()

	fields, err := b.client.Fields(ctx)
	if err != nil {
		return "", wrap("list fields", err)
	}
	for _, f := range fields {
		if f.Name == name {
			b.cacheField(name, f.ID)
			return f.ID, nil
		}
		for _, clause := range f.ClauseNames {
			if clause == name {
				b.cacheField(name, f.ID)
				return f.ID, nil
			}
		}
	}
	return "", wrap("resolve field", fmt.Errorf("field %q not found", name))
}

func (b *Backend) cacheField(name, id string) {
	b.mu.Lock()
	b.fieldIDs[name] = id
	b.mu.Unlock()
}

// PullProjectTemplates refreshes the project template cache and
// prunes templates the remote side no longer offers.
func (b *Backend) PullProjectTemplates(ctx context.Context) error {
	b.count(ctx, "pull_project_templates")
	templates, err := b.client.ProjectTemplates(ctx)
	if err != nil {
		return wrap("pull project templates", err)
	}
	seen := make([]string, 0, len(templates))
	for _, t := range templates {
		seen = append(seen, t.Key)
		record := &models.ProjectTemplate{
			UUID:        uuid.NewString(),
			BackendID:   t.Key,
			Name:        t.Name,
			Description: t.Description,
			IconURL:     t.IconURL,
		}
		if err := b.store.UpsertProjectTemplate(ctx, record); err != nil {
			return err
		}
	}
	return b.store.DeleteProjectTemplatesNotIn(ctx, seen)
}

// PullPriorities refreshes the priority cache and prunes priorities
// the remote side no longer defines.
func (b *Backend) PullPriorities(ctx context.Context) error {
	b.count(ctx, "pull_priorities")
	priorities, err := b.client.Priorities(ctx)
	if err != nil {
		return wrap("pull priorities", err)
	}
	seen := make([]string, 0, len(priorities))
	for _, p := range priorities {
		seen = append(seen, p.ID)
		record := &models.Priority{
			UUID:        uuid.NewString(),
			BackendID:   p.ID,
			Name:        p.Name,
			Description: p.Description,
			IconURL:     p.IconURL,
		}
		if err := b.store.UpsertPriority(ctx, record); err != nil {
			return err
		}
	}
	return b.store.DeletePrioritiesNotIn(ctx, seen)
}

// CreateProject creates the remote project and pulls its issue types.
// The authenticated user becomes the project lead.
func (b *Backend) CreateProject(ctx context.Context, project *models.Project) error {
	b.count(ctx, "create_project")
	me, err := b.client.Myself(ctx)
	if err != nil {
		return wrap("create project", err)
	}
	req := jira.CreateProjectRequest{
		Key:          project.BackendID,
		Name:         project.Name,
		Lead:         me.Name,
		TemplateName: project.TemplateName,
	}
	if err := b.client.CreateProject(ctx, req); err != nil {
		return wrap("create project", err)
	}
	return b.PullIssueTypes(ctx, project)
}

// UpdateProject pushes the project name to the remote side.
func (b *Backend) UpdateProject(ctx context.Context, project *models.Project) error {
	b.count(ctx, "update_project")
	err := b.client.UpdateProject(ctx, project.BackendID, project.Name)
	if IsNotFound(err) {
		logger.Debug("project %s is gone remotely, skipping update", project.BackendID)
		return nil
	}
	return wrap("update project", err)
}

// DeleteProject deletes the remote project. A remote miss is
// tolerated: the record is already gone.
func (b *Backend) DeleteProject(ctx context.Context, project *models.Project) error {
	b.count(ctx, "delete_project")
	err := b.client.DeleteProject(ctx, project.BackendID)
	if IsNotFound(err) {
		logger.Debug("project %s is gone remotely, skipping delete", project.BackendID)
		return nil
	}
	return wrap("delete project", err)
}

// PullIssueTypes reconciles the project's issue type associations
// with the remote project in a three-way diff: remote-only types are
// imported (or reused from the connection cache) and associated,
// local-only associations are dropped, and common types have their
// descriptive fields refreshed.
func (b *Backend) PullIssueTypes(ctx context.Context, project *models.Project) error {
	b.count(ctx, "pull_issue_types")
	remote, err := b.client.Project(ctx, project.BackendID)
	if err != nil {
		return wrap("pull issue types", err)
	}

	remoteByID := make(map[string]jira.IssueType, len(remote.IssueTypes))
	for _, t := range remote.IssueTypes {
		remoteByID[t.ID] = t
	}

	local, err := b.store.ProjectIssueTypes(ctx, project.UUID)
	if err != nil {
		return err
	}
	localByID := make(map[string]*models.IssueType, len(local))
	for _, t := range local {
		localByID[t.BackendID] = t
	}

	for id, rt := range remoteByID {
		lt, ok := localByID[id]
		if !ok {
			record, err := b.store.GetIssueTypeByBackendID(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				record = &models.IssueType{
					UUID:        uuid.NewString(),
					BackendID:   rt.ID,
					Name:        rt.Name,
					Description: rt.Description,
					IconURL:     rt.IconURL,
					Subtask:     rt.Subtask,
				}
				if err := b.store.UpsertIssueType(ctx, record); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
			if err := b.store.AssociateIssueType(ctx, project.UUID, record.UUID); err != nil {
				return err
			}
			continue
		}
		lt.Name = rt.Name
		lt.Description = rt.Description
		lt.IconURL = rt.IconURL
		lt.Subtask = rt.Subtask
		if err := b.store.UpsertIssueType(ctx, lt); err != nil {
			return err
		}
	}

	for id, lt := range localByID {
		if _, ok := remoteByID[id]; !ok {
			if err := b.store.DisassociateIssueType(ctx, project.UUID, lt.UUID); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateIssue creates the issue remotely and backfills the remote
// key, status, resolution and timestamps. Idempotent: an issue that
// already carries a backend id is assumed created by a previous
// attempt and is left alone.
func (b *Backend) CreateIssue(ctx context.Context, issue *models.Issue) error {
	b.count(ctx, "create_issue")
	if issue.BackendID != "" {
		logger.Debug("issue %s already exists remotely as %s, skipping create", issue.UUID, issue.BackendID)
		return nil
	}

	project, err := b.store.GetProject(ctx, issue.ProjectUUID)
	if err != nil {
		return err
	}
	parent, err := b.validateIssue(ctx, project, issue)
	if err != nil {
		return err
	}

	fields := map[string]any{
		"project":     map[string]string{"key": project.BackendID},
		"summary":     issue.Summary,
		"description": issue.GetDescription(b.cfg.ResourceInfoTemplate),
	}

	typeName := b.cfg.DefaultIssueType
	if issue.Type != nil {
		typeName = issue.Type.Name
	}
	fields["issuetype"] = map[string]string{"name": typeName}

	if issue.Priority != nil {
		fields["priority"] = map[string]string{
			"name": b.cfg.MapPriority(issue.Priority.Name),
		}
	}

	if parent != nil {
		fields["parent"] = map[string]string{"key": parent.BackendID}
	}

	if b.cfg.Fields.Reporter != "" && issue.User != nil {
		id, err := b.GetFieldIDByName(ctx, b.cfg.Fields.Reporter)
		if err != nil {
			return err
		}
		fields[id] = issue.User.FullName
	}
	if b.cfg.Fields.Impact != "" && issue.Impact != 0 {
		id, err := b.GetFieldIDByName(ctx, b.cfg.Fields.Impact)
		if err != nil {
			return err
		}
		fields[id] = impactLabel(issue.Impact)
	}

	created, err := b.client.CreateIssue(ctx, fields)
	if err != nil {
		return wrap("create issue", err)
	}

	// Persist the remote key before anything else so a crash between
	// here and the backfill cannot cause a duplicate create on retry.
	issue.BackendID = created.Key
	if err := b.store.UpdateIssue(ctx, issue); err != nil {
		return err
	}

	b.backfillIssue(issue, created)
	return b.store.UpdateIssue(ctx, issue)
}

// validateIssue checks the data-model invariants a remote create
// would bake in: the type must be enabled for the project, and a
// parent link requires a subtask type pointing at a sibling issue.
// Violations are ErrInvalid and must not be retried.
func (b *Backend) validateIssue(ctx context.Context, project *models.Project, issue *models.Issue) (*models.Issue, error) {
	if issue.Type != nil {
		types, err := b.store.ProjectIssueTypes(ctx, project.UUID)
		if err != nil {
			return nil, err
		}
		enabled := false
		for _, tpe := range types {
			if tpe.UUID == issue.Type.UUID {
				enabled = true
				break
			}
		}
		if !enabled {
			return nil, fmt.Errorf("%w: issue type %q is not enabled for project %s", ErrInvalid, issue.Type.Name, project.BackendID)
		}
	}

	if issue.ParentUUID == "" {
		return nil, nil
	}
	if issue.Type == nil || !issue.Type.Subtask {
		return nil, fmt.Errorf("%w: only subtask issue types can have a parent", ErrInvalid)
	}
	parent, err := b.store.GetIssue(ctx, issue.ParentUUID)
	if err != nil {
		return nil, err
	}
	if parent.ProjectUUID != issue.ProjectUUID {
		return nil, fmt.Errorf("%w: parent %s belongs to a different project", ErrInvalid, parent.BackendID)
	}
	return parent, nil
}

func impactLabel(code int) string {
	for _, c := range models.ImpactChoices {
		if c.Code == code {
			return c.Label
		}
	}
	return ""
}

// backfillIssue copies remote-owned fields onto the local record.
func (b *Backend) backfillIssue(issue *models.Issue, remote *jira.Issue) {
	if remote.Fields.Status != nil {
		issue.Status = remote.Fields.Status.Name
	}
	if remote.Fields.Resolution != nil {
		issue.Resolution = remote.Fields.Resolution.Name
	} else {
		issue.Resolution = ""
	}
	if t, err := jira.ParseTimestamp(remote.Fields.Created); err == nil {
		issue.Created = t
	}
	if t, err := jira.ParseTimestamp(remote.Fields.Updated); err == nil {
		issue.Updated = t
	}
	if sla := b.extractResolutionSLA(remote); sla != nil {
		issue.ResolutionSLA = sla
	}
}

// extractResolutionSLA reads the remaining SLA cycle time (seconds)
// from the configured service desk custom field. Best effort: any
// missing piece yields nil.
func (b *Backend) extractResolutionSLA(remote *jira.Issue) *float64 {
	if b.cfg.Fields.ResolutionSLA == "" {
		return nil
	}
	b.mu.Lock()
	fieldID, ok := b.fieldIDs[b.cfg.Fields.ResolutionSLA]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	raw, ok := remote.Fields.Custom[fieldID]
	if !ok {
		return nil
	}
	var payload struct {
		OngoingCycle struct {
			RemainingTime struct {
				Millis *float64 `json:"millis"`
			} `json:"remainingTime"`
		} `json:"ongoingCycle"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	if payload.OngoingCycle.RemainingTime.Millis == nil {
		return nil
	}
	seconds := *payload.OngoingCycle.RemainingTime.Millis / 1000
	return &seconds
}

// UpdateIssue pushes summary, description and priority to the remote
// issue. A remote miss is tolerated.
func (b *Backend) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	b.count(ctx, "update_issue")
	fields := map[string]any{
		"summary":     issue.Summary,
		"description": issue.GetDescription(b.cfg.ResourceInfoTemplate),
	}
	if issue.Priority != nil {
		fields["priority"] = map[string]string{
			"name": b.cfg.MapPriority(issue.Priority.Name),
		}
	}
	err := b.client.UpdateIssue(ctx, issue.BackendID, fields)
	if IsNotFound(err) {
		logger.Debug("issue %s is gone remotely, skipping update", issue.BackendID)
		return nil
	}
	return wrap("update issue", err)
}

// DeleteIssue deletes the remote issue. A remote miss is tolerated.
func (b *Backend) DeleteIssue(ctx context.Context, issue *models.Issue) error {
	b.count(ctx, "delete_issue")
	err := b.client.DeleteIssue(ctx, issue.BackendID)
	if IsNotFound(err) {
		logger.Debug("issue %s is gone remotely, skipping delete", issue.BackendID)
		return nil
	}
	return wrap("delete issue", err)
}

// RemoteIssue fetches an issue from the remote tracker. A vanished
// issue surfaces as jira.ErrNotFound through the wrapper.
func (b *Backend) RemoteIssue(ctx context.Context, key string) (*jira.Issue, error) {
	b.count(ctx, "get_issue")
	issue, err := b.client.Issue(ctx, key)
	if err != nil {
		return nil, wrap("get issue", err)
	}
	return issue, nil
}

// RemoteComment fetches a single comment from the remote tracker.
func (b *Backend) RemoteComment(ctx context.Context, issueKey, commentID string) (*jira.Comment, error) {
	b.count(ctx, "get_comment")
	comment, err := b.client.Comment(ctx, issueKey, commentID)
	if err != nil {
		return nil, wrap("get comment", err)
	}
	return comment, nil
}

// ExtractImpact resolves the configured impact custom field and
// converts its value off the remote issue. Missing configuration or
// an unresolvable field yields zero.
func (b *Backend) ExtractImpact(ctx context.Context, remote *jira.Issue) int {
	if b.cfg.Fields.Impact == "" {
		return 0
	}
	if _, err := b.GetFieldIDByName(ctx, b.cfg.Fields.Impact); err != nil {
		logger.Debug("impact field %q not resolvable: %v", b.cfg.Fields.Impact, err)
		return 0
	}
	return b.extractImpact(remote)
}

// ExtractResolutionSLA resolves the configured SLA custom field and
// reads the remaining cycle time off the remote issue. Best effort.
func (b *Backend) ExtractResolutionSLA(ctx context.Context, remote *jira.Issue) *float64 {
	if b.cfg.Fields.ResolutionSLA == "" {
		return nil
	}
	if _, err := b.GetFieldIDByName(ctx, b.cfg.Fields.ResolutionSLA); err != nil {
		logger.Debug("resolution SLA field %q not resolvable: %v", b.cfg.Fields.ResolutionSLA, err)
		return nil
	}
	return b.extractResolutionSLA(remote)
}

// CreateComment pushes a comment, wrapping the body with the author
// attribution template, and backfills the remote comment id.
func (b *Backend) CreateComment(ctx context.Context, comment *models.Comment) error {
	b.count(ctx, "create_comment")
	if comment.BackendID != "" {
		logger.Debug("comment %s already exists remotely as %s, skipping create", comment.UUID, comment.BackendID)
		return nil
	}
	issue, err := b.store.GetIssue(ctx, comment.IssueUUID)
	if err != nil {
		return err
	}
	body := models.PrepareMessage(b.cfg.CommentTemplate, comment.User, comment.Message)
	created, err := b.client.AddComment(ctx, issue.BackendID, body)
	if err != nil {
		return wrap("create comment", err)
	}
	comment.BackendID = created.ID
	return b.store.UpdateComment(ctx, comment)
}

// UpdateComment pushes the comment body. A remote miss is tolerated.
func (b *Backend) UpdateComment(ctx context.Context, comment *models.Comment) error {
	b.count(ctx, "update_comment")
	issue, err := b.store.GetIssue(ctx, comment.IssueUUID)
	if err != nil {
		return err
	}
	body := models.PrepareMessage(b.cfg.CommentTemplate, comment.User, comment.Message)
	_, err = b.client.UpdateComment(ctx, issue.BackendID, comment.BackendID, body)
	if IsNotFound(err) {
		logger.Debug("comment %s is gone remotely, skipping update", comment.BackendID)
		return nil
	}
	return wrap("update comment", err)
}

// DeleteComment deletes the remote comment. A remote miss is
// tolerated.
func (b *Backend) DeleteComment(ctx context.Context, comment *models.Comment) error {
	b.count(ctx, "delete_comment")
	issue, err := b.store.GetIssue(ctx, comment.IssueUUID)
	if err != nil {
		return err
	}
	err = b.client.DeleteComment(ctx, issue.BackendID, comment.BackendID)
	if IsNotFound(err) {
		logger.Debug("comment %s is gone remotely, skipping delete", comment.BackendID)
		return nil
	}
	return wrap("delete comment", err)
}

// CreateAttachment uploads the attachment content and backfills the
// remote attachment id. Idempotent: a present backend id means a
// previous attempt already uploaded.
func (b *Backend) CreateAttachment(ctx context.Context, attachment *models.Attachment, content []byte) error {
	b.count(ctx, "create_attachment")
	if attachment.BackendID != "" {
		logger.Debug("attachment %s already exists remotely as %s, skipping upload", attachment.UUID, attachment.BackendID)
		return nil
	}
	issue, err := b.store.GetIssue(ctx, attachment.IssueUUID)
	if err != nil {
		return err
	}
	created, err := b.client.AddAttachment(ctx, issue.BackendID, attachment.File, bytes.NewReader(content))
	if err != nil {
		return wrap("create attachment", err)
	}

	// Persist the remote id before anything else so a crash cannot
	// cause a duplicate upload on retry.
	attachment.BackendID = created.ID
	return b.store.UpdateAttachment(ctx, attachment)
}

// DeleteAttachment deletes the remote attachment. A remote miss is
// tolerated.
func (b *Backend) DeleteAttachment(ctx context.Context, attachment *models.Attachment) error {
	b.count(ctx, "delete_attachment")
	err := b.client.DeleteAttachment(ctx, attachment.BackendID)
	if IsNotFound(err) {
		logger.Debug("attachment %s is gone remotely, skipping delete", attachment.BackendID)
		return nil
	}
	return wrap("delete attachment", err)
}

// ImportProjectIssues mirrors remote issues of the project locally,
// comments included. A non-empty query narrows the pull to issues
// matching a JQL text search. Idempotent: issues already mirrored are
// skipped.
func (b *Backend) ImportProjectIssues(ctx context.Context, project *models.Project, query string) error {
	b.count(ctx, "import_project_issues")
	// Resolve custom field ids up front so the per-issue extraction
	// can work off the cache.
	if b.cfg.Fields.Impact != "" {
		if _, err := b.GetFieldIDByName(ctx, b.cfg.Fields.Impact); err != nil {
			logger.Warn("impact field %q not resolvable: %v", b.cfg.Fields.Impact, err)
		}
	}
	if b.cfg.Fields.ResolutionSLA != "" {
		if _, err := b.GetFieldIDByName(ctx, b.cfg.Fields.ResolutionSLA); err != nil {
			logger.Debug("resolution SLA field %q not resolvable: %v", b.cfg.Fields.ResolutionSLA, err)
		}
	}

	jql := fmt.Sprintf(`project = "%s"`, jira.EscapeJQL(project.BackendID))
	if query != "" {
		jql += fmt.Sprintf(` AND text ~ "%s"`, jira.EscapeJQL(query))
	}
	issues, err := b.client.SearchIssues(ctx, jql)
	if err != nil {
		return wrap("import issues", err)
	}

	for i := range issues {
		remote := &issues[i]
		if _, err := b.store.GetIssueByBackendID(ctx, remote.Key); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		issue, err := b.importIssue(ctx, project, remote)
		if err != nil {
			return err
		}
		if err := b.importComments(ctx, issue); err != nil {
			return err
		}
	}
	return nil
}

// importIssue builds and stores the local mirror of a remote issue.
func (b *Backend) importIssue(ctx context.Context, project *models.Project, remote *jira.Issue) (*models.Issue, error) {
	now := time.Now().UTC()
	issue := &models.Issue{
		UUID:        uuid.NewString(),
		BackendID:   remote.Key,
		ProjectUUID: project.UUID,
		Summary:     remote.Fields.Summary,
		Description: remote.Fields.Description,
		State:       models.StateOK,
		Created:     now,
		Modified:    now,
	}
	b.backfillIssue(issue, remote)

	if remote.Fields.Priority != nil {
		priority, err := b.getOrCreatePriority(ctx, remote.Fields.Priority)
		if err != nil {
			return nil, err
		}
		issue.Priority = priority
	}
	if remote.Fields.IssueType != nil {
		issueType, err := b.getOrCreateIssueType(ctx, remote.Fields.IssueType)
		if err != nil {
			return nil, err
		}
		issue.Type = issueType
	}
	if b.cfg.Fields.Impact != "" {
		if impact := b.extractImpact(remote); impact != 0 {
			issue.Impact = impact
		}
	}

	if err := b.store.CreateIssue(ctx, issue); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return b.store.GetIssueByBackendID(ctx, remote.Key)
		}
		return nil, err
	}
	return issue, nil
}

// extractImpact reads the impact custom field value and converts it
// onto the local coded choices.
func (b *Backend) extractImpact(remote *jira.Issue) int {
	b.mu.Lock()
	fieldID, ok := b.fieldIDs[b.cfg.Fields.Impact]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	raw, ok := remote.Fields.Custom[fieldID]
	if !ok {
		return 0
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0
	}
	return ConvertField(value, models.ImpactChoices, nil)
}

func (b *Backend) getOrCreatePriority(ctx context.Context, ref *jira.NamedField) (*models.Priority, error) {
	priority, err := b.store.GetPriorityByBackendID(ctx, ref.ID)
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
	if err := b.store.UpsertPriority(ctx, priority); err != nil {
		return nil, err
	}
	return priority, nil
}

func (b *Backend) getOrCreateIssueType(ctx context.Context, ref *jira.NamedField) (*models.IssueType, error) {
	issueType, err := b.store.GetIssueTypeByBackendID(ctx, ref.ID)
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
	if err := b.store.UpsertIssueType(ctx, issueType); err != nil {
		return nil, err
	}
	return issueType, nil
}

// importComments mirrors the remote issue's comments. The cleaned
// body and impersonated author are recovered from the attribution
// template.
func (b *Backend) importComments(ctx context.Context, issue *models.Issue) error {
	comments, err := b.client.Comments(ctx, issue.BackendID)
	if err != nil {
		return wrap("import comments", err)
	}

	for _, rc := range comments {
		_, err := b.store.GetCommentByBackendID(ctx, issue.UUID, rc.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		body, username := models.CleanMessage(b.cfg.CommentTemplate, rc.Body)
		comment := &models.Comment{
			UUID:      uuid.NewString(),
			BackendID: rc.ID,
			IssueUUID: issue.UUID,
			Message:   body,
			State:     models.StateOK,
			Created:   time.Now().UTC(),
			Modified:  time.Now().UTC(),
		}
		if username != "" {
			comment.User = &models.User{Username: username}
		}
		if t, err := jira.ParseTimestamp(rc.Created); err == nil {
			comment.Created = t
		}
		if err := b.store.CreateComment(ctx, comment); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				continue
			}
			return err
		}
	}
	return nil
}
