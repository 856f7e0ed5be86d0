package jira

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the explicit interface the backend adapter consumes. It
// lists every remote operation the core needs; there is no
// open-ended passthrough to the underlying transport.
type Client interface {
	Myself(ctx context.Context) (*User, error)

	Projects(ctx context.Context) ([]Project, error)
	Project(ctx context.Context, idOrKey string) (*Project, error)
	CreateProject(ctx context.Context, req CreateProjectRequest) error
	UpdateProject(ctx context.Context, key, name string) error
	DeleteProject(ctx context.Context, key string) error
	ProjectTemplates(ctx context.Context) ([]ProjectTemplate, error)

	Fields(ctx context.Context) ([]Field, error)
	Priorities(ctx context.Context) ([]Priority, error)

	CreateIssue(ctx context.Context, fields map[string]any) (*Issue, error)
	Issue(ctx context.Context, key string) (*Issue, error)
	SearchIssues(ctx context.Context, jql string) ([]Issue, error)
	UpdateIssue(ctx context.Context, key string, fields map[string]any) error
	DeleteIssue(ctx context.Context, key string) error

	Comments(ctx context.Context, issueKey string) ([]Comment, error)
	Comment(ctx context.Context, issueKey, id string) (*Comment, error)
	AddComment(ctx context.Context, issueKey, body string) (*Comment, error)
	UpdateComment(ctx context.Context, issueKey, id, body string) (*Comment, error)
	DeleteComment(ctx context.Context, issueKey, id string) error

	AddAttachment(ctx context.Context, issueKey, filename string, r io.Reader) (*Attachment, error)
	Attachment(ctx context.Context, id string) (*Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error
}

// HTTPClient talks to a JIRA instance over its REST API v2 with basic
// authentication.
type HTTPClient struct {
	URL      string
	Username string
	Password string

	httpClient *http.Client
}

// Options configures a new HTTPClient.
type Options struct {
	URL      string
	Username string
	Password string

	// Verify enables TLS certificate verification. Defaults to false:
	// self-signed internal instances are the common deployment.
	Verify bool

	Timeout time.Duration
}

// NewClient creates an HTTPClient for the given instance.
func NewClient(opts Options) *HTTPClient {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport
	if !opts.Verify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &HTTPClient{
		URL:      strings.TrimSuffix(opts.URL, "/"),
		Username: opts.Username,
		Password: opts.Password,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) api(path string) string {
	return c.URL + "/rest/api/2" + path
}

// Myself returns the authenticated user.
func (c *HTTPClient) Myself(ctx context.Context) (*User, error) {
	var u User
	if err := c.get(ctx, c.api("/myself"), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Projects lists all projects visible to the configured credentials.
func (c *HTTPClient) Projects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.get(ctx, c.api("/project"), &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// Project fetches a single project with its issue types.
func (c *HTTPClient) Project(ctx context.Context, idOrKey string) (*Project, error) {
	var p Project
	if err := c.get(ctx, c.api("/project/"+url.PathEscape(idOrKey)), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject creates a remote project.
func (c *HTTPClient) CreateProject(ctx context.Context, req CreateProjectRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal create project request: %w", err)
	}
	_, err = c.doRequest(ctx, http.MethodPost, c.api("/project"), data)
	return err
}

// UpdateProject renames a remote project.
func (c *HTTPClient) UpdateProject(ctx context.Context, key, name string) error {
	data, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("marshal update project request: %w", err)
	}
	_, err = c.doRequest(ctx, http.MethodPut, c.api("/project/"+url.PathEscape(key)), data)
	return err
}

// DeleteProject deletes a remote project.
func (c *HTTPClient) DeleteProject(ctx context.Context, key string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, c.api("/project/"+url.PathEscape(key)), nil)
	return err
}

// ProjectTemplates lists the selectable project templates. This is
// not part of the stable API surface; the endpoint predates API v3
// and is kept for server installations.
func (c *HTTPClient) ProjectTemplates(ctx context.Context) ([]ProjectTemplate, error) {
	var result struct {
		ProjectTemplates []ProjectTemplate `json:"projectTemplates"`
	}
	err := c.get(ctx, c.URL+"/rest/project-templates/latest/templates", &result)
	if err != nil {
		return nil, err
	}
	return result.ProjectTemplates, nil
}

// Fields returns the field metadata list, including custom fields.
func (c *HTTPClient) Fields(ctx context.Context) ([]Field, error) {
	var fields []Field
	if err := c.get(ctx, c.api("/field"), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Priorities lists the instance-wide priorities.
func (c *HTTPClient) Priorities(ctx context.Context) ([]Priority, error) {
	var priorities []Priority
	if err := c.get(ctx, c.api("/priority"), &priorities); err != nil {
		return nil, err
	}
	return priorities, nil
}

// CreateIssue creates an issue and returns its full representation.
// The create response only carries id/key/self, so the issue is
// fetched back.
func (c *HTTPClient) CreateIssue(ctx context.Context, fields map[string]any) (*Issue, error) {
	data, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return nil, fmt.Errorf("marshal create request: %w", err)
	}
	body, err := c.doRequest(ctx, http.MethodPost, c.api("/issue"), data)
	if err != nil {
		return nil, err
	}
	var created IssueRef
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}
	return c.Issue(ctx, created.Key)
}

// Issue fetches a single issue by key.
func (c *HTTPClient) Issue(ctx context.Context, key string) (*Issue, error) {
	var issue Issue
	if err := c.get(ctx, c.api("/issue/"+url.PathEscape(key)), &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// SearchIssues runs a JQL query and returns all matching issues,
// following pagination.
func (c *HTTPClient) SearchIssues(ctx context.Context, jql string) ([]Issue, error) {
	var all []Issue
	startAt := 0
	const maxResults = 100

	for {
		params := url.Values{
			"jql":        {jql},
			"startAt":    {fmt.Sprintf("%d", startAt)},
			"maxResults": {fmt.Sprintf("%d", maxResults)},
		}
		var page SearchResult
		if err := c.get(ctx, c.api("/search?"+params.Encode()), &page); err != nil {
			return nil, fmt.Errorf("search issues: %w", err)
		}
		all = append(all, page.Issues...)
		if startAt+len(page.Issues) >= page.Total || len(page.Issues) == 0 {
			break
		}
		startAt += len(page.Issues)
	}
	return all, nil
}

// UpdateIssue updates issue fields.
func (c *HTTPClient) UpdateIssue(ctx context.Context, key string, fields map[string]any) error {
	data, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return fmt.Errorf("marshal update request: %w", err)
	}
	_, err = c.doRequest(ctx, http.MethodPut, c.api("/issue/"+url.PathEscape(key)), data)
	return err
}

// DeleteIssue deletes an issue.
func (c *HTTPClient) DeleteIssue(ctx context.Context, key string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, c.api("/issue/"+url.PathEscape(key)), nil)
	return err
}

// Comments lists all comments of an issue.
func (c *HTTPClient) Comments(ctx context.Context, issueKey string) ([]Comment, error) {
	var page CommentPage
	err := c.get(ctx, c.api("/issue/"+url.PathEscape(issueKey)+"/comment"), &page)
	if err != nil {
		return nil, err
	}
	return page.Comments, nil
}

// Comment fetches a single comment.
func (c *HTTPClient) Comment(ctx context.Context, issueKey, id string) (*Comment, error) {
	var comment Comment
	u := c.api("/issue/" + url.PathEscape(issueKey) + "/comment/" + url.PathEscape(id))
	if err := c.get(ctx, u, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// AddComment creates a comment on an issue.
func (c *HTTPClient) AddComment(ctx context.Context, issueKey, body string) (*Comment, error) {
	data, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return nil, fmt.Errorf("marshal comment: %w", err)
	}
	respBody, err := c.doRequest(ctx, http.MethodPost, c.api("/issue/"+url.PathEscape(issueKey)+"/comment"), data)
	if err != nil {
		return nil, err
	}
	var comment Comment
	if err := json.Unmarshal(respBody, &comment); err != nil {
		return nil, fmt.Errorf("parse comment response: %w", err)
	}
	return &comment, nil
}

// UpdateComment replaces a comment body.
func (c *HTTPClient) UpdateComment(ctx context.Context, issueKey, id, body string) (*Comment, error) {
	data, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return nil, fmt.Errorf("marshal comment: %w", err)
	}
	u := c.api("/issue/" + url.PathEscape(issueKey) + "/comment/" + url.PathEscape(id))
	respBody, err := c.doRequest(ctx, http.MethodPut, u, data)
	if err != nil {
		return nil, err
	}
	var comment Comment
	if err := json.Unmarshal(respBody, &comment); err != nil {
		return nil, fmt.Errorf("parse comment response: %w", err)
	}
	return &comment, nil
}

// DeleteComment deletes a comment.
func (c *HTTPClient) DeleteComment(ctx context.Context, issueKey, id string) error {
	u := c.api("/issue/" + url.PathEscape(issueKey) + "/comment/" + url.PathEscape(id))
	_, err := c.doRequest(ctx, http.MethodDelete, u, nil)
	return err
}

// AddAttachment uploads an attachment to an issue.
func (c *HTTPClient) AddAttachment(ctx context.Context, issueKey, filename string, r io.Reader) (*Attachment, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build attachment form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish attachment form: %w", err)
	}

	u := c.api("/issue/" + url.PathEscape(issueKey) + "/attachments")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.Username, c.Password)
	req.Header.Set("Content-Type", w.FormDataContentType())
	// Required by JIRA for multipart uploads.
	req.Header.Set("X-Atlassian-Token", "no-check")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var attachments []Attachment
	if err := json.Unmarshal(body, &attachments); err != nil {
		return nil, fmt.Errorf("parse attachment response: %w", err)
	}
	if len(attachments) == 0 {
		return nil, fmt.Errorf("attachment upload returned no entries")
	}
	return &attachments[0], nil
}

// Attachment fetches an attachment descriptor by id.
func (c *HTTPClient) Attachment(ctx context.Context, id string) (*Attachment, error) {
	var a Attachment
	if err := c.get(ctx, c.api("/attachment/"+url.PathEscape(id)), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAttachment deletes an attachment.
func (c *HTTPClient) DeleteAttachment(ctx context.Context, id string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, c.api("/attachment/"+url.PathEscape(id)), nil)
	return err
}

// get issues a GET request and decodes the JSON response into out.
func (c *HTTPClient) get(ctx context.Context, apiURL string, out any) error {
	body, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// doRequest executes an authenticated request and returns the
// response body.
func (c *HTTPClient) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("jira URL not configured")
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.Username, c.Password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "jirabridge/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
			Captcha:    resp.Header.Get("X-Seraph-LoginReason") == "AUTHENTICATED_FAILED",
		}
	}
	return respBody, nil
}

// ParseTimestamp parses JIRA's timestamp formats.
func ParseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	formats := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05-0700",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
		time.RFC3339Nano,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %s", ts)
}

// jqlEscaper escapes characters JQL treats as operators inside quoted
// text terms.
var jqlEscaper = strings.NewReplacer(
	`\`, `\\`, `"`, `\"`, `^`, `\^`, `~`, `\~`, `*`, `\*`, `?`, `\?`,
	`:`, `\:`, `(`, `\(`, `)`, `\)`, `[`, `\[`, `]`, `\]`, `{`, `\{`,
	`}`, `\}`, `|`, `\|`, `!`, `\!`, `#`, `\#`, `&`, `\&`, `+`, `\+`,
	`-`, `\-`,
)

// EscapeJQL escapes a free-text search term for embedding in a quoted
// JQL clause.
func EscapeJQL(term string) string {
	return jqlEscaper.Replace(term)
}
