// Package jira provides the remote client adapter: a typed HTTP
// client for the JIRA REST API (v2) covering the resources the
// backend adapter needs. It is the only package that talks to the
// remote tracker directly.
package jira

import "encoding/json"

// User is a JIRA user as returned by /myself and user lookups.
type User struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Project is a JIRA project. IssueTypes is only populated when a
// single project is fetched, not in project listings.
type Project struct {
	ID         string      `json:"id"`
	Key        string      `json:"key"`
	Name       string      `json:"name"`
	IssueTypes []IssueType `json:"issueTypes"`
}

// IssueType is a JIRA issue type descriptor.
type IssueType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IconURL     string `json:"iconUrl"`
	Subtask     bool   `json:"subtask"`
}

// Priority is a JIRA priority descriptor.
type Priority struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IconURL     string `json:"iconUrl"`
}

// ProjectTemplate is an entry from the project-templates resource.
type ProjectTemplate struct {
	Key         string `json:"projectTemplateModuleCompleteKey"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IconURL     string `json:"iconUrl"`
}

// Field is a field-metadata entry from /field, used to resolve custom
// field names to their API identifiers.
type Field struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ClauseNames []string `json:"clauseNames"`
}

// NamedField is the {id, name} shape JIRA uses for enumerated issue
// fields (status, priority, issue type, resolution).
type NamedField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IssueRef is the minimal {id, key} reference JIRA uses for parent
// links.
type IssueRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// IssueFields carries the fields of an issue. Custom fields arrive
// under opaque "customfield_NNNNN" keys and are kept in Custom for
// callers that resolved the id via field metadata.
type IssueFields struct {
	Summary     string       `json:"summary"`
	Description string       `json:"description"`
	Status      *NamedField  `json:"status"`
	Priority    *NamedField  `json:"priority"`
	IssueType   *NamedField  `json:"issuetype"`
	Resolution  *NamedField  `json:"resolution"`
	Project     *Project     `json:"project"`
	Creator     *User        `json:"creator"`
	Parent      *IssueRef    `json:"parent"`
	Created     string       `json:"created"`
	Updated     string       `json:"updated"`
	Comment     *CommentPage `json:"comment"`

	Custom map[string]json.RawMessage `json:"-"`
}

type issueFieldsAlias IssueFields

// UnmarshalJSON captures unrecognized keys into Custom so custom
// field values survive the decode.
func (f *IssueFields) UnmarshalJSON(data []byte) error {
	var a issueFieldsAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range []string{
		"summary", "description", "status", "priority", "issuetype",
		"resolution", "project", "creator", "parent", "created",
		"updated", "comment",
	} {
		delete(raw, known)
	}
	if len(raw) > 0 {
		a.Custom = raw
	}
	*f = IssueFields(a)
	return nil
}

// Issue is a JIRA issue.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// Comment is a JIRA issue comment.
type Comment struct {
	ID      string `json:"id"`
	Body    string `json:"body"`
	Author  *User  `json:"author"`
	Created string `json:"created"`
	Updated string `json:"updated"`
}

// CommentPage is the paginated comment container embedded in issue
// fields and returned by the comment listing endpoint.
type CommentPage struct {
	Total    int       `json:"total"`
	Comments []Comment `json:"comments"`
}

// Attachment is a JIRA attachment descriptor.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Size     int64  `json:"size"`
}

// SearchResult is a JQL search response page.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// CreateProjectRequest is the payload for project creation.
type CreateProjectRequest struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Lead         string `json:"lead"`
	TemplateName string `json:"projectTemplateKey,omitempty"`
}
