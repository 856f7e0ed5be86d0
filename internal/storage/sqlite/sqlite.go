// Package sqlite provides the persistent Storage implementation on a
// local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/waldur/jirabridge/internal/models"
	"github.com/waldur/jirabridge/internal/storage"
)

// Store implements storage.Storage on SQLite.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) the database at dbPath, enables WAL mode,
// and runs any pending schema migrations.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

var _ storage.Storage = (*Store)(nil)

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// wrapErr maps driver errors onto the storage sentinels.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return storage.ErrAlreadyExists
	}
	return err
}

func marshalUser(u *models.User) string {
	if u == nil {
		return ""
	}
	data, err := json.Marshal(u)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalUser(s string) *models.User {
	if s == "" {
		return nil
	}
	var u models.User
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return nil
	}
	return &u
}

func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	const query = `
		INSERT INTO projects (
			uuid, backend_id, name, template_uuid, template_name,
			impact_field, reporter_field, available_for_all,
			state, error_message, created, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		p.UUID, p.BackendID, p.Name, p.TemplateUUID, p.TemplateName,
		p.ImpactField, p.ReporterField, p.AvailableForAll,
		p.State, p.ErrorMessage, p.Created.UTC(), p.Modified.UTC(),
	)
	return wrapErr(err)
}

func (s *Store) GetProject(ctx context.Context, uuid string) (*models.Project, error) {
	var p models.Project
	err := s.db.GetContext(ctx, &p, "SELECT * FROM projects WHERE uuid = ?", uuid)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &p, nil
}

func (s *Store) GetProjectByBackendID(ctx context.Context, backendID string) (*models.Project, error) {
	var p models.Project
	err := s.db.GetContext(ctx, &p,
		"SELECT * FROM projects WHERE backend_id = ? AND backend_id != ''", backendID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]*models.Project, error) {
	var projects []*models.Project
	err := s.db.SelectContext(ctx, &projects, "SELECT * FROM projects ORDER BY created")
	if err != nil {
		return nil, wrapErr(err)
	}
	return projects, nil
}

func (s *Store) UpdateProject(ctx context.Context, p *models.Project) error {
	p.Modified = time.Now().UTC()
	const query = `
		UPDATE projects SET
			backend_id = ?, name = ?, template_uuid = ?, template_name = ?,
			impact_field = ?, reporter_field = ?, available_for_all = ?,
			state = ?, error_message = ?, modified = ?
		WHERE uuid = ?`
	res, err := s.db.ExecContext(ctx, query,
		p.BackendID, p.Name, p.TemplateUUID, p.TemplateName,
		p.ImpactField, p.ReporterField, p.AvailableForAll,
		p.State, p.ErrorMessage, p.Modified, p.UUID,
	)
	if err != nil {
		return wrapErr(err)
	}
	return requireRow(res)
}

func (s *Store) DeleteProject(ctx context.Context, uuid string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE uuid = ?", uuid)
	if err != nil {
		return wrapErr(err)
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM project_issue_types WHERE project_uuid = ?", uuid); err != nil {
		return wrapErr(err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AssociateIssueType(ctx context.Context, projectUUID, issueTypeUUID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO project_issue_types (project_uuid, issue_type_uuid) VALUES (?, ?)",
		projectUUID, issueTypeUUID)
	return wrapErr(err)
}

func (s *Store) DisassociateIssueType(ctx context.Context, projectUUID, issueTypeUUID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM project_issue_types WHERE project_uuid = ? AND issue_type_uuid = ?",
		projectUUID, issueTypeUUID)
	return wrapErr(err)
}

func (s *Store) ProjectIssueTypes(ctx context.Context, projectUUID string) ([]*models.IssueType, error) {
	var types []*models.IssueType
	const query = `
		SELECT t.* FROM issue_types t
		JOIN project_issue_types pt ON pt.issue_type_uuid = t.uuid
		WHERE pt.project_uuid = ?
		ORDER BY t.name`
	if err := s.db.SelectContext(ctx, &types, query, projectUUID); err != nil {
		return nil, wrapErr(err)
	}
	return types, nil
}

func (s *Store) UpsertPriority(ctx context.Context, p *models.Priority) error {
	var existing models.Priority
	err := s.db.GetContext(ctx, &existing,
		"SELECT * FROM priorities WHERE backend_id = ?", p.BackendID)
	switch {
	case err == nil:
		p.UUID = existing.UUID
		_, err = s.db.ExecContext(ctx,
			"UPDATE priorities SET name = ?, description = ?, icon_url = ? WHERE uuid = ?",
			p.Name, p.Description, p.IconURL, p.UUID)
		return wrapErr(err)
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO priorities (uuid, backend_id, name, description, icon_url) VALUES (?, ?, ?, ?, ?)",
			p.UUID, p.BackendID, p.Name, p.Description, p.IconURL)
		return wrapErr(err)
	default:
		return wrapErr(err)
	}
}

func (s *Store) GetPriorityByBackendID(ctx context.Context, backendID string) (*models.Priority, error) {
	var p models.Priority
	err := s.db.GetContext(ctx, &p, "SELECT * FROM priorities WHERE backend_id = ?", backendID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &p, nil
}

func (s *Store) GetPriorityByName(ctx context.Context, name string) (*models.Priority, error) {
	var p models.Priority
	err := s.db.GetContext(ctx, &p, "SELECT * FROM priorities WHERE name = ?", name)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &p, nil
}

func (s *Store) ListPriorities(ctx context.Context) ([]*models.Priority, error) {
	var priorities []*models.Priority
	err := s.db.SelectContext(ctx, &priorities, "SELECT * FROM priorities ORDER BY name")
	if err != nil {
		return nil, wrapErr(err)
	}
	return priorities, nil
}

func (s *Store) DeletePrioritiesNotIn(ctx context.Context, backendIDs []string) error {
	return s.deleteNotIn(ctx, "priorities", backendIDs)
}

// deleteNotIn removes rows of table whose backend_id is not in keep.
// An empty keep list removes everything.
func (s *Store) deleteNotIn(ctx context.Context, table string, keep []string) error {
	if len(keep) == 0 {
		_, err := s.db.ExecContext(ctx, "DELETE FROM "+table)
		return wrapErr(err)
	}
	query, args, err := sqlx.In("DELETE FROM "+table+" WHERE backend_id NOT IN (?)", keep)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return wrapErr(err)
}

func (s *Store) UpsertProjectTemplate(ctx context.Context, t *models.ProjectTemplate) error {
	var existing models.ProjectTemplate
	err := s.db.GetContext(ctx, &existing,
		"SELECT * FROM project_templates WHERE backend_id = ?", t.BackendID)
	switch {
	case err == nil:
		t.UUID = existing.UUID
		_, err = s.db.ExecContext(ctx,
			"UPDATE project_templates SET name = ?, description = ?, icon_url = ? WHERE uuid = ?",
			t.Name, t.Description, t.IconURL, t.UUID)
		return wrapErr(err)
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO project_templates (uuid, backend_id, name, description, icon_url) VALUES (?, ?, ?, ?, ?)",
			t.UUID, t.BackendID, t.Name, t.Description, t.IconURL)
		return wrapErr(err)
	default:
		return wrapErr(err)
	}
}

func (s *Store) ListProjectTemplates(ctx context.Context) ([]*models.ProjectTemplate, error) {
	var templates []*models.ProjectTemplate
	err := s.db.SelectContext(ctx, &templates, "SELECT * FROM project_templates ORDER BY name")
	if err != nil {
		return nil, wrapErr(err)
	}
	return templates, nil
}

func (s *Store) DeleteProjectTemplatesNotIn(ctx context.Context, backendIDs []string) error {
	return s.deleteNotIn(ctx, "project_templates", backendIDs)
}

func (s *Store) UpsertIssueType(ctx context.Context, t *models.IssueType) error {
	var existing models.IssueType
	err := s.db.GetContext(ctx, &existing,
		"SELECT * FROM issue_types WHERE backend_id = ?", t.BackendID)
	switch {
	case err == nil:
		t.UUID = existing.UUID
		_, err = s.db.ExecContext(ctx,
			"UPDATE issue_types SET name = ?, description = ?, icon_url = ?, subtask = ? WHERE uuid = ?",
			t.Name, t.Description, t.IconURL, t.Subtask, t.UUID)
		return wrapErr(err)
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO issue_types (uuid, backend_id, name, description, icon_url, subtask) VALUES (?, ?, ?, ?, ?, ?)",
			t.UUID, t.BackendID, t.Name, t.Description, t.IconURL, t.Subtask)
		return wrapErr(err)
	default:
		return wrapErr(err)
	}
}

func (s *Store) GetIssueTypeByBackendID(ctx context.Context, backendID string) (*models.IssueType, error) {
	var t models.IssueType
	err := s.db.GetContext(ctx, &t, "SELECT * FROM issue_types WHERE backend_id = ?", backendID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &t, nil
}

func (s *Store) GetIssueTypeByName(ctx context.Context, name string) (*models.IssueType, error) {
	var t models.IssueType
	err := s.db.GetContext(ctx, &t, "SELECT * FROM issue_types WHERE name = ?", name)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &t, nil
}

func (s *Store) ListIssueTypes(ctx context.Context) ([]*models.IssueType, error) {
	var types []*models.IssueType
	err := s.db.SelectContext(ctx, &types, "SELECT * FROM issue_types ORDER BY name")
	if err != nil {
		return nil, wrapErr(err)
	}
	return types, nil
}

func (s *Store) DeleteIssueType(ctx context.Context, uuid string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM issue_types WHERE uuid = ?", uuid)
	if err != nil {
		return wrapErr(err)
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM project_issue_types WHERE issue_type_uuid = ?", uuid); err != nil {
		return wrapErr(err)
	}
	return requireRow(res)
}

// issueRow is the flat row shape for the issues table.
type issueRow struct {
	UUID            string    `db:"uuid"`
	BackendID       string    `db:"backend_id"`
	ProjectUUID     string    `db:"project_uuid"`
	TypeUUID        string    `db:"type_uuid"`
	PriorityUUID    string    `db:"priority_uuid"`
	ParentUUID      string    `db:"parent_uuid"`
	Summary         string    `db:"summary"`
	Description     string    `db:"description"`
	Resolution      string    `db:"resolution"`
	Status          string    `db:"status"`
	Impact          int       `db:"impact"`
	UpdatedUsername string    `db:"updated_username"`
	ResolutionSLA   *float64  `db:"resolution_sla"`
	Resource        string    `db:"resource"`
	UserJSON        string    `db:"user_json"`
	State           string    `db:"state"`
	ErrorMessage    string    `db:"error_message"`
	Created         time.Time `db:"created"`
	Updated         time.Time `db:"updated"`
	Modified        time.Time `db:"modified"`
}

func (s *Store) hydrateIssue(ctx context.Context, row *issueRow) (*models.Issue, error) {
	issue := &models.Issue{
		UUID:            row.UUID,
		BackendID:       row.BackendID,
		ProjectUUID:     row.ProjectUUID,
		ParentUUID:      row.ParentUUID,
		Summary:         row.Summary,
		Description:     row.Description,
		Resolution:      row.Resolution,
		Status:          row.Status,
		Impact:          row.Impact,
		UpdatedUsername: row.UpdatedUsername,
		ResolutionSLA:   row.ResolutionSLA,
		Resource:        row.Resource,
		User:            unmarshalUser(row.UserJSON),
		State:           models.SyncState(row.State),
		ErrorMessage:    row.ErrorMessage,
		Created:         row.Created,
		Updated:         row.Updated,
		Modified:        row.Modified,
	}
	if row.TypeUUID != "" {
		var t models.IssueType
		err := s.db.GetContext(ctx, &t, "SELECT * FROM issue_types WHERE uuid = ?", row.TypeUUID)
		if err == nil {
			issue.Type = &t
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	if row.PriorityUUID != "" {
		var p models.Priority
		err := s.db.GetContext(ctx, &p, "SELECT * FROM priorities WHERE uuid = ?", row.PriorityUUID)
		if err == nil {
			issue.Priority = &p
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	return issue, nil
}

func issueArgs(issue *models.Issue) (typeUUID, priorityUUID string) {
	if issue.Type != nil {
		typeUUID = issue.Type.UUID
	}
	if issue.Priority != nil {
		priorityUUID = issue.Priority.UUID
	}
	return typeUUID, priorityUUID
}

func (s *Store) CreateIssue(ctx context.Context, issue *models.Issue) error {
	typeUUID, priorityUUID := issueArgs(issue)
	const query = `
		INSERT INTO issues (
			uuid, backend_id, project_uuid, type_uuid, priority_uuid, parent_uuid,
			summary, description, resolution, status, impact, updated_username,
			resolution_sla, resource, user_json, state, error_message,
			created, updated, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		issue.UUID, issue.BackendID, issue.ProjectUUID, typeUUID, priorityUUID, issue.ParentUUID,
		issue.Summary, issue.Description, issue.Resolution, issue.Status, issue.Impact,
		issue.UpdatedUsername, issue.ResolutionSLA, issue.Resource, marshalUser(issue.User),
		issue.State, issue.ErrorMessage,
		issue.Created.UTC(), issue.Updated.UTC(), issue.Modified.UTC(),
	)
	return wrapErr(err)
}

func (s *Store) GetIssue(ctx context.Context, uuid string) (*models.Issue, error) {
	var row issueRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM issues WHERE uuid = ?", uuid)
	if err != nil {
		return nil, wrapErr(err)
	}
	return s.hydrateIssue(ctx, &row)
}

func (s *Store) GetIssueByBackendID(ctx context.Context, backendID string) (*models.Issue, error) {
	var row issueRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM issues WHERE backend_id = ? AND backend_id != ''", backendID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return s.hydrateIssue(ctx, &row)
}

func (s *Store) ListIssues(ctx context.Context, projectUUID string) ([]*models.Issue, error) {
	var rows []issueRow
	var err error
	if projectUUID == "" {
		err = s.db.SelectContext(ctx, &rows, "SELECT * FROM issues ORDER BY created")
	} else {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM issues WHERE project_uuid = ? ORDER BY created", projectUUID)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	issues := make([]*models.Issue, 0, len(rows))
	for i := range rows {
		issue, err := s.hydrateIssue(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func (s *Store) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	issue.Modified = time.Now().UTC()
	typeUUID, priorityUUID := issueArgs(issue)
	const query = `
		UPDATE issues SET
			backend_id = ?, project_uuid = ?, type_uuid = ?, priority_uuid = ?,
			parent_uuid = ?, summary = ?, description = ?, resolution = ?,
			status = ?, impact = ?, updated_username = ?, resolution_sla = ?,
			resource = ?, user_json = ?, state = ?, error_message = ?,
			updated = ?, modified = ?
		WHERE uuid = ?`
	res, err := s.db.ExecContext(ctx, query,
		issue.BackendID, issue.ProjectUUID, typeUUID, priorityUUID,
		issue.ParentUUID, issue.Summary, issue.Description, issue.Resolution,
		issue.Status, issue.Impact, issue.UpdatedUsername, issue.ResolutionSLA,
		issue.Resource, marshalUser(issue.User), issue.State, issue.ErrorMessage,
		issue.Updated.UTC(), issue.Modified, issue.UUID,
	)
	if err != nil {
		return wrapErr(err)
	}
	return requireRow(res)
}

func (s *Store) DeleteIssue(ctx context.Context, uuid string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE uuid = ?", uuid)
	if err != nil {
		return wrapErr(err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM comments WHERE issue_uuid = ?", uuid); err != nil {
		return wrapErr(err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM attachments WHERE issue_uuid = ?", uuid); err != nil {
		return wrapErr(err)
	}
	return requireRow(res)
}

type commentRow struct {
	UUID         string    `db:"uuid"`
	BackendID    string    `db:"backend_id"`
	IssueUUID    string    `db:"issue_uuid"`
	Message      string    `db:"message"`
	UserJSON     string    `db:"user_json"`
	State        string    `db:"state"`
	ErrorMessage string    `db:"error_message"`
	Created      time.Time `db:"created"`
	Modified     time.Time `db:"modified"`
}

func (r *commentRow) toModel() *models.Comment {
	return &models.Comment{
		UUID:         r.UUID,
		BackendID:    r.BackendID,
		IssueUUID:    r.IssueUUID,
		Message:      r.Message,
		User:         unmarshalUser(r.UserJSON),
		State:        models.SyncState(r.State),
		ErrorMessage: r.ErrorMessage,
		Created:      r.Created,
		Modified:     r.Modified,
	}
}

func (s *Store) CreateComment(ctx context.Context, c *models.Comment) error {
	const query = `
		INSERT INTO comments (
			uuid, backend_id, issue_uuid, message, user_json,
			state, error_message, created, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		c.UUID, c.BackendID, c.IssueUUID, c.Message, marshalUser(c.User),
		c.State, c.ErrorMessage, c.Created.UTC(), c.Modified.UTC(),
	)
	return wrapErr(err)
}

func (s *Store) GetComment(ctx context.Context, uuid string) (*models.Comment, error) {
	var row commentRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM comments WHERE uuid = ?", uuid)
	if err != nil {
		return nil, wrapErr(err)
	}
	return row.toModel(), nil
}

func (s *Store) GetCommentByBackendID(ctx context.Context, issueUUID, backendID string) (*models.Comment, error) {
	var row commentRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM comments WHERE issue_uuid = ? AND backend_id = ? AND backend_id != ''",
		issueUUID, backendID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return row.toModel(), nil
}

func (s *Store) ListComments(ctx context.Context, issueUUID string) ([]*models.Comment, error) {
	var rows []commentRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM comments WHERE issue_uuid = ? ORDER BY created", issueUUID)
	if err != nil {
		return nil, wrapErr(err)
	}
	comments := make([]*models.Comment, 0, len(rows))
	for i := range rows {
		comments = append(comments, rows[i].toModel())
	}
	return comments, nil
}

func (s *Store) CountComments(ctx context.Context, issueUUID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM comments WHERE issue_uuid = ?", issueUUID)
	if err != nil {
		return 0, wrapErr(err)
	}
	return n, nil
}

func (s *Store) UpdateComment(ctx context.Context, c *models.Comment) error {
	c.Modified = time.Now().UTC()
	const query = `
		UPDATE comments SET
			backend_id = ?, message = ?, user_json = ?, state = ?,
			error_message = ?, modified = ?
		WHERE uuid = ?`
	res, err := s.db.ExecContext(ctx, query,
		c.BackendID, c.Message, marshalUser(c.User), c.State,
		c.ErrorMessage, c.Modified, c.UUID,
	)
	if err != nil {
		return wrapErr(err)
	}
	return requireRow(res)
}

func (s *Store) DeleteComment(ctx context.Context, uuid string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM comments WHERE uuid = ?", uuid)
	if err != nil {
		return wrapErr(err)
	}
	return requireRow(res)
}

func (s *Store) DeleteCommentsNotIn(ctx context.Context, issueUUID string, backendIDs []string) error {
	if len(backendIDs) == 0 {
		_, err := s.db.ExecContext(ctx, "DELETE FROM comments WHERE issue_uuid = ?", issueUUID)
		return wrapErr(err)
	}
	query, args, err := sqlx.In(
		"DELETE FROM comments WHERE issue_uuid = ? AND backend_id NOT IN (?)",
		issueUUID, backendIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return wrapErr(err)
}

type attachmentRow struct {
	UUID         string    `db:"uuid"`
	BackendID    string    `db:"backend_id"`
	IssueUUID    string    `db:"issue_uuid"`
	File         string    `db:"file"`
	UserJSON     string    `db:"user_json"`
	State        string    `db:"state"`
	ErrorMessage string    `db:"error_message"`
	Created      time.Time `db:"created"`
	Modified     time.Time `db:"modified"`
}

func (r *attachmentRow) toModel() *models.Attachment {
	return &models.Attachment{
		UUID:         r.UUID,
		BackendID:    r.BackendID,
		IssueUUID:    r.IssueUUID,
		File:         r.File,
		User:         unmarshalUser(r.UserJSON),
		State:        models.SyncState(r.State),
		ErrorMessage: r.ErrorMessage,
		Created:      r.Created,
		Modified:     r.Modified,
	}
}

func (s *Store) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	const query = `
		INSERT INTO attachments (
			uuid, backend_id, issue_uuid, file, user_json,
			state, error_message, created, modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		a.UUID, a.BackendID, a.IssueUUID, a.File, marshalUser(a.User),
		a.State, a.ErrorMessage, a.Created.UTC(), a.Modified.UTC(),
	)
	return wrapErr(err)
}

func (s *Store) GetAttachment(ctx context.Context, uuid string) (*models.Attachment, error) {
	var row attachmentRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM attachments WHERE uuid = ?", uuid)
	if err != nil {
		return nil, wrapErr(err)
	}
	return row.toModel(), nil
}

func (s *Store) GetAttachmentByBackendID(ctx context.Context, issueUUID, backendID string) (*models.Attachment, error) {
	var row attachmentRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM attachments WHERE issue_uuid = ? AND backend_id = ? AND backend_id != ''",
		issueUUID, backendID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return row.toModel(), nil
}

func (s *Store) ListAttachments(ctx context.Context, issueUUID string) ([]*models.Attachment, error) {
	var rows []attachmentRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM attachments WHERE issue_uuid = ? ORDER BY created", issueUUID)
	if err != nil {
		return nil, wrapErr(err)
	}
	attachments := make([]*models.Attachment, 0, len(rows))
	for i := range rows {
		attachments = append(attachments, rows[i].toModel())
	}
	return attachments, nil
}

func (s *Store) UpdateAttachment(ctx context.Context, a *models.Attachment) error {
	a.Modified = time.Now().UTC()
	const query = `
		UPDATE attachments SET
			backend_id = ?, file = ?, user_json = ?, state = ?,
			error_message = ?, modified = ?
		WHERE uuid = ?`
	res, err := s.db.ExecContext(ctx, query,
		a.BackendID, a.File, marshalUser(a.User), a.State,
		a.ErrorMessage, a.Modified, a.UUID,
	)
	if err != nil {
		return wrapErr(err)
	}
	return requireRow(res)
}

func (s *Store) DeleteAttachment(ctx context.Context, uuid string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM attachments WHERE uuid = ?", uuid)
	if err != nil {
		return wrapErr(err)
	}
	return requireRow(res)
}

func (s *Store) RecordEvent(ctx context.Context, e *models.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO events (kind, issue_key, actor, message, created_at) VALUES (?, ?, ?, ?, ?)",
		e.Kind, e.IssueKey, e.Actor, e.Message, e.CreatedAt)
	if err != nil {
		return wrapErr(err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		e.ID = id
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, issueKey string) ([]*models.Event, error) {
	var events []*models.Event
	var err error
	if issueKey == "" {
		err = s.db.SelectContext(ctx, &events, "SELECT * FROM events ORDER BY id")
	} else {
		err = s.db.SelectContext(ctx, &events,
			"SELECT * FROM events WHERE issue_key = ? ORDER BY id", issueKey)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return events, nil
}
