// Package models defines the local records mirrored against JIRA
// entities: projects, issues, comments, attachments, and the
// per-connection property caches (priorities, issue types, project
// templates). Every mirrored record carries a backend_id (the
// JIRA-assigned key or id) used to correlate the two sides, plus a
// sync state machine driven by the task executor.
package models

import (
	"net/url"
	"strings"
	"time"
)

// User identifies the platform user a record belongs to. Records
// created from the JIRA side may carry a nil user.
type User struct {
	UUID     string `json:"uuid" db:"uuid"`
	Username string `json:"username" db:"username"`
	FullName string `json:"full_name" db:"full_name"`
	Email    string `json:"email" db:"email"`
}

// ProjectTemplate is a selectable remote project template, cached
// per connection by PullProjectTemplates.
type ProjectTemplate struct {
	UUID        string `json:"uuid" db:"uuid"`
	BackendID   string `json:"backend_id" db:"backend_id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	IconURL     string `json:"icon_url" db:"icon_url"`
}

// Priority is a cached copy of a remote priority value.
type Priority struct {
	UUID        string `json:"uuid" db:"uuid"`
	BackendID   string `json:"backend_id" db:"backend_id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	IconURL     string `json:"icon_url" db:"icon_url"`
}

// IssueType is a cached copy of a remote issue type. A project only
// offers a subset of the connection-wide issue types; the association
// is maintained by PullIssueTypes.
type IssueType struct {
	UUID        string `json:"uuid" db:"uuid"`
	BackendID   string `json:"backend_id" db:"backend_id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	IconURL     string `json:"icon_url" db:"icon_url"`
	Subtask     bool   `json:"subtask" db:"subtask"`
}

// Project mirrors a JIRA project. BackendID is the remote project key
// and is immutable once the project has been created remotely.
type Project struct {
	UUID            string    `json:"uuid" db:"uuid"`
	BackendID       string    `json:"backend_id" db:"backend_id"`
	Name            string    `json:"name" db:"name"`
	TemplateUUID    string    `json:"template_uuid" db:"template_uuid"`
	TemplateName    string    `json:"template_name" db:"template_name"`
	ImpactField     string    `json:"impact_field" db:"impact_field"`
	ReporterField   string    `json:"reporter_field" db:"reporter_field"`
	AvailableForAll bool      `json:"available_for_all" db:"available_for_all"`
	State           SyncState `json:"state" db:"state"`
	ErrorMessage    string    `json:"error_message" db:"error_message"`
	Created         time.Time `json:"created" db:"created"`
	Modified        time.Time `json:"modified" db:"modified"`
}

// AccessURL returns the remote browse URL for the project.
func (p *Project) AccessURL(baseURL string) string {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/projects/" + p.BackendID)
	if err != nil {
		return ""
	}
	return u.String()
}

// Issue mirrors a JIRA issue. Type and Priority reference the
// per-connection caches; Impact is a local coded enum populated from a
// custom remote field.
type Issue struct {
	UUID        string     `json:"uuid" db:"uuid"`
	BackendID   string     `json:"backend_id" db:"backend_id"`
	ProjectUUID string     `json:"project_uuid" db:"project_uuid"`
	Type        *IssueType `json:"type"`
	Priority    *Priority  `json:"priority"`
	ParentUUID  string     `json:"parent_uuid" db:"parent_uuid"`

	Summary         string `json:"summary" db:"summary"`
	Description     string `json:"description" db:"description"`
	Resolution      string `json:"resolution" db:"resolution"`
	Status          string `json:"status" db:"status"`
	Impact          int    `json:"impact" db:"impact"`
	UpdatedUsername string `json:"updated_username" db:"updated_username"`

	// ResolutionSLA is a best-effort enrichment (seconds remaining in
	// the SLA cycle) extracted from a tracker-specific custom field.
	ResolutionSLA *float64 `json:"resolution_sla" db:"resolution_sla"`

	// Resource optionally names an arbitrary platform resource the
	// issue concerns, e.g. "OpenStack.Instance:abc123".
	Resource string `json:"resource" db:"resource"`

	User         *User     `json:"user"`
	State        SyncState `json:"state" db:"state"`
	ErrorMessage string    `json:"error_message" db:"error_message"`
	Created      time.Time `json:"created" db:"created"`
	Updated      time.Time `json:"updated" db:"updated"`
	Modified     time.Time `json:"modified" db:"modified"`
}

// Key returns the remote issue key, e.g. "PROJ-42".
func (i *Issue) Key() string { return i.BackendID }

// AccessURL returns the remote browse URL for the issue.
func (i *Issue) AccessURL(baseURL string) string {
	if i.BackendID == "" {
		return ""
	}
	return strings.TrimSuffix(baseURL, "/") + "/browse/" + i.BackendID
}

// GetDescription returns the issue description, with the configured
// resource-info block appended when the issue references a resource.
// The template uses the {resource} placeholder.
func (i *Issue) GetDescription(resourceInfoTemplate string) string {
	if resourceInfoTemplate == "" || i.Resource == "" {
		return i.Description
	}
	return i.Description + strings.ReplaceAll(resourceInfoTemplate, "{resource}", i.Resource)
}

// Comment mirrors a JIRA issue comment. Message holds the cleaned
// body; the impersonated author is re-embedded on egress by
// PrepareMessage.
type Comment struct {
	UUID         string    `json:"uuid" db:"uuid"`
	BackendID    string    `json:"backend_id" db:"backend_id"`
	IssueUUID    string    `json:"issue_uuid" db:"issue_uuid"`
	Message      string    `json:"message" db:"message"`
	User         *User     `json:"user"`
	State        SyncState `json:"state" db:"state"`
	ErrorMessage string    `json:"error_message" db:"error_message"`
	Created      time.Time `json:"created" db:"created"`
	Modified     time.Time `json:"modified" db:"modified"`
}

// Attachment mirrors a JIRA issue attachment. File is a reference to
// the stored blob (a path or object key), not the blob itself.
type Attachment struct {
	UUID         string    `json:"uuid" db:"uuid"`
	BackendID    string    `json:"backend_id" db:"backend_id"`
	IssueUUID    string    `json:"issue_uuid" db:"issue_uuid"`
	File         string    `json:"file" db:"file"`
	User         *User     `json:"user"`
	State        SyncState `json:"state" db:"state"`
	ErrorMessage string    `json:"error_message" db:"error_message"`
	Created      time.Time `json:"created" db:"created"`
	Modified     time.Time `json:"modified" db:"modified"`
}

// Event is an audit record written after a successful local mutation.
// Events are recorded by explicit calls from the reconciliation
// engine and task executor, not by implicit save hooks.
type Event struct {
	ID        int64     `json:"id" db:"id"`
	Kind      string    `json:"kind" db:"kind"`
	IssueKey  string    `json:"issue_key" db:"issue_key"`
	Actor     string    `json:"actor" db:"actor"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Event kinds.
const (
	EventIssueCreated   = "issue_created"
	EventIssueUpdated   = "issue_updated"
	EventIssueDeleted   = "issue_deleted"
	EventCommentCreated = "comment_created"
	EventCommentUpdated = "comment_updated"
	EventCommentDeleted = "comment_deleted"
)
