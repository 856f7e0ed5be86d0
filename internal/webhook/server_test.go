package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/waldur/jirabridge/internal/config"
	"github.com/waldur/jirabridge/internal/jira"
	"github.com/waldur/jirabridge/internal/models"
	"github.com/waldur/jirabridge/internal/reconcile"
	"github.com/waldur/jirabridge/internal/storage/memory"
)

// fakeRemote serves canned remote records to the reconciliation
// engine. Keys absent from the maps behave like records deleted on
// the remote side.
type fakeRemote struct {
	issues   map[string]*jira.Issue
	comments map[string]*jira.Comment
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		issues:   make(map[string]*jira.Issue),
		comments: make(map[string]*jira.Comment),
	}
}

func (f *fakeRemote) RemoteIssue(ctx context.Context, key string) (*jira.Issue, error) {
	issue, ok := f.issues[key]
	if !ok {
		return nil, jira.ErrNotFound
	}
	return issue, nil
}

func (f *fakeRemote) RemoteComment(ctx context.Context, issueKey, commentID string) (*jira.Comment, error) {
	comment, ok := f.comments[issueKey+"/"+commentID]
	if !ok {
		return nil, jira.ErrNotFound
	}
	return comment, nil
}

func (f *fakeRemote) ExtractImpact(ctx context.Context, remote *jira.Issue) int { return 0 }

func (f *fakeRemote) ExtractResolutionSLA(ctx context.Context, remote *jira.Issue) *float64 {
	return nil
}

func newTestServer(t *testing.T) (*Server, *memory.Store, *fakeRemote) {
	t.Helper()
	store := memory.New()
	remote := newFakeRemote()
	cfg := &config.Config{CommentTemplate: config.DefaultCommentTemplate}
	engine := reconcile.NewEngine(store, remote, cfg)
	return NewServer(ServerConfig{Store: store, Engine: engine}), store, remote
}

func seedProject(t *testing.T, store *memory.Store) *models.Project {
	t.Helper()
	now := time.Now().UTC()
	project := &models.Project{
		UUID:      uuid.NewString(),
		BackendID: "TST",
		Name:      "Test",
		State:     models.StateOK,
		Created:   now,
		Modified:  now,
	}
	if err := store.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return project
}

func seedIssue(t *testing.T, store *memory.Store, project *models.Project, key string) *models.Issue {
	t.Helper()
	now := time.Now().UTC().Add(-time.Hour)
	issue := &models.Issue{
		UUID:        uuid.NewString(),
		BackendID:   key,
		ProjectUUID: project.UUID,
		Summary:     "seeded",
		State:       models.StateOK,
		Created:     now,
		Updated:     now,
		Modified:    now,
	}
	if err := store.CreateIssue(context.Background(), issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	return issue
}

func postEvent(t *testing.T, s *Server, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/webhook-receiver/", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) EventResponse {
	t.Helper()
	var resp EventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, w.Body.String())
	}
	return resp
}

func TestIssueCreatedEvent(t *testing.T) {
	s, store, remote := newTestServer(t)
	seedProject(t, store)

	remote.issues["TST-5"] = &jira.Issue{
		Key: "TST-5",
		Fields: jira.IssueFields{
			Summary:     "database is down",
			Description: "postgres stopped responding",
			Status:      &jira.NamedField{ID: "1", Name: "Open"},
			IssueType:   &jira.NamedField{ID: "10", Name: "Incident"},
		},
	}

	payload := map[string]any{
		"webhookEvent": "jira:issue_created",
		"timestamp":    time.Now().UnixMilli(),
		"issue": map[string]any{
			"key": "TST-5",
			"fields": map[string]any{
				"summary":     "database is down",
				"description": "postgres stopped responding",
				"issuetype":   map[string]string{"id": "10", "name": "Incident"},
				"status":      map[string]string{"name": "Open"},
				"project":     map[string]string{"key": "TST"},
			},
		},
		"user": map[string]string{"key": "alice", "displayName": "Alice"},
	}

	w := postEvent(t, s, payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	resp := decodeResponse(t, w)
	if !resp.Success || resp.IssueKey != "TST-5" {
		t.Errorf("response = %+v", resp)
	}

	issue, err := store.GetIssueByBackendID(context.Background(), "TST-5")
	if err != nil {
		t.Fatalf("issue not mirrored: %v", err)
	}
	if issue.Summary != "database is down" {
		t.Errorf("summary = %q", issue.Summary)
	}
	if issue.Status != "Open" {
		t.Errorf("status = %q", issue.Status)
	}

	// Redelivery is harmless.
	w = postEvent(t, s, payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("redelivery status = %d", w.Code)
	}
	issues, err := store.ListIssues(context.Background(), "")
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if len(issues) != 1 {
		t.Errorf("issue count = %d after redelivery, want 1", len(issues))
	}
}

func TestIssueCreatedEventVanishedRemotely(t *testing.T) {
	s, store, _ := newTestServer(t)
	seedProject(t, store)

	// The issue named by the event no longer exists on the remote
	// tracker; the event is accepted but nothing is mirrored.
	payload := map[string]any{
		"webhookEvent": "jira:issue_created",
		"issue": map[string]any{
			"key": "TST-404",
			"fields": map[string]any{
				"summary": "ghost",
				"project": map[string]string{"key": "TST"},
			},
		},
	}

	w := postEvent(t, s, payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	if _, err := store.GetIssueByBackendID(context.Background(), "TST-404"); err == nil {
		t.Errorf("mirrored an issue that does not exist remotely")
	}
}

func TestIssueUpdatedEvent(t *testing.T) {
	s, store, remote := newTestServer(t)
	project := seedProject(t, store)
	seedIssue(t, store, project, "TST-1")

	remote.issues["TST-1"] = &jira.Issue{
		Key: "TST-1",
		Fields: jira.IssueFields{
			Summary:    "updated remotely",
			Status:     &jira.NamedField{ID: "5", Name: "Resolved"},
			Resolution: &jira.NamedField{ID: "1", Name: "Done"},
		},
	}

	payload := map[string]any{
		"webhookEvent": "jira:issue_updated",
		"issue": map[string]any{
			"key": "TST-1",
			"fields": map[string]any{
				"summary":    "updated remotely",
				"status":     map[string]string{"name": "Resolved"},
				"resolution": map[string]string{"name": "Done"},
				"project":    map[string]string{"key": "TST"},
			},
		},
	}

	w := postEvent(t, s, payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}

	issue, err := store.GetIssueByBackendID(context.Background(), "TST-1")
	if err != nil {
		t.Fatalf("GetIssueByBackendID: %v", err)
	}
	if issue.Summary != "updated remotely" {
		t.Errorf("summary = %q", issue.Summary)
	}
	if issue.Resolution != "Done" {
		t.Errorf("resolution = %q", issue.Resolution)
	}
}

func TestIssueUpdatedFoldsDeletedComments(t *testing.T) {
	s, store, remote := newTestServer(t)
	project := seedProject(t, store)
	issue := seedIssue(t, store, project, "TST-1")
	remote.issues["TST-1"] = &jira.Issue{
		Key:    "TST-1",
		Fields: jira.IssueFields{Summary: "seeded"},
	}

	ctx := context.Background()
	for _, id := range []string{"10", "11", "12"} {
		comment := &models.Comment{
			UUID:      uuid.NewString(),
			BackendID: id,
			IssueUUID: issue.UUID,
			Message:   "m" + id,
			State:     models.StateOK,
			Created:   time.Now().UTC(),
			Modified:  time.Now().UTC(),
		}
		if err := store.CreateComment(ctx, comment); err != nil {
			t.Fatalf("CreateComment: %v", err)
		}
	}

	payload := map[string]any{
		"webhookEvent": "jira:issue_updated",
		"issue": map[string]any{
			"key": "TST-1",
			"fields": map[string]any{
				"summary": "seeded",
				"project": map[string]string{"key": "TST"},
				"comment": map[string]any{
					"total":    1,
					"comments": []map[string]string{{"id": "10", "body": "m10"}},
				},
			},
		},
	}

	w := postEvent(t, s, payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}

	comments, err := store.ListComments(ctx, issue.UUID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 1 || comments[0].BackendID != "10" {
		t.Errorf("surviving comments = %+v, want only 10", comments)
	}
}

func TestIssueDeletedEvent(t *testing.T) {
	s, store, _ := newTestServer(t)
	project := seedProject(t, store)
	seedIssue(t, store, project, "TST-1")

	payload := map[string]any{
		"webhookEvent": "jira:issue_deleted",
		"issue":        map[string]any{"key": "TST-1"},
	}
	w := postEvent(t, s, payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	if _, err := store.GetIssueByBackendID(context.Background(), "TST-1"); err == nil {
		t.Errorf("issue still mirrored after remote delete")
	}

	// Deleting an issue that was never mirrored is a no-op.
	payload["issue"] = map[string]any{"key": "TST-404"}
	w = postEvent(t, s, payload)
	if w.Code != http.StatusCreated {
		t.Errorf("unknown issue delete status = %d, want 201", w.Code)
	}
}

func TestIssueDeletedEventSkipsWhileRemoteExists(t *testing.T) {
	s, store, remote := newTestServer(t)
	project := seedProject(t, store)
	seedIssue(t, store, project, "TST-1")
	remote.issues["TST-1"] = &jira.Issue{Key: "TST-1"}

	payload := map[string]any{
		"webhookEvent": "jira:issue_deleted",
		"issue":        map[string]any{"key": "TST-1"},
	}
	w := postEvent(t, s, payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	if _, err := store.GetIssueByBackendID(context.Background(), "TST-1"); err != nil {
		t.Errorf("local mirror gone although the remote issue still exists: %v", err)
	}
}

func TestCommentEvents(t *testing.T) {
	s, store, remote := newTestServer(t)
	project := seedProject(t, store)
	issue := seedIssue(t, store, project, "TST-1")

	remote.comments["TST-1/77"] = &jira.Comment{
		ID:   "77",
		Body: "hi\n\n_(added by Alice Lebowski [alice] via G-Cloud Portal)_",
	}
	payload := map[string]any{
		"webhookEvent": "comment_created",
		"issue":        map[string]any{"key": "TST-1"},
		"comment": map[string]string{
			"id":   "77",
			"body": "hi\n\n_(added by Alice Lebowski [alice] via G-Cloud Portal)_",
		},
	}
	w := postEvent(t, s, payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("comment_created status = %d (body %s)", w.Code, w.Body.String())
	}

	comment, err := store.GetCommentByBackendID(context.Background(), issue.UUID, "77")
	if err != nil {
		t.Fatalf("comment not mirrored: %v", err)
	}
	if comment.Message != "hi" {
		t.Errorf("message = %q", comment.Message)
	}

	delete(remote.comments, "TST-1/77")
	payload["webhookEvent"] = "comment_deleted"
	w = postEvent(t, s, payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("comment_deleted status = %d", w.Code)
	}
	if _, err := store.GetCommentByBackendID(context.Background(), issue.UUID, "77"); err == nil {
		t.Errorf("comment still mirrored after remote delete")
	}
}

func TestValidationErrors(t *testing.T) {
	s, store, _ := newTestServer(t)
	seedProject(t, store)

	tests := []struct {
		name      string
		payload   map[string]any
		wantField string
	}{
		{
			name:      "missing event",
			payload:   map[string]any{"issue": map[string]any{"key": "TST-1"}},
			wantField: "webhookEvent",
		},
		{
			name: "unsupported event",
			payload: map[string]any{
				"webhookEvent": "jira:worklog_updated",
				"issue":        map[string]any{"key": "TST-1"},
			},
			wantField: "webhookEvent",
		},
		{
			name:      "missing issue key",
			payload:   map[string]any{"webhookEvent": "jira:issue_deleted"},
			wantField: "issue.key",
		},
		{
			name: "missing project key",
			payload: map[string]any{
				"webhookEvent": "jira:issue_created",
				"issue": map[string]any{
					"key":    "TST-5",
					"fields": map[string]any{"summary": "s"},
				},
			},
			wantField: "issue.fields.project.key",
		},
		{
			name: "unknown project",
			payload: map[string]any{
				"webhookEvent": "jira:issue_created",
				"issue": map[string]any{
					"key": "OTHER-1",
					"fields": map[string]any{
						"summary": "s",
						"project": map[string]string{"key": "OTHER"},
					},
				},
			},
			wantField: "issue.fields.project.key",
		},
		{
			name: "comment event without comment id",
			payload: map[string]any{
				"webhookEvent": "comment_created",
				"issue":        map[string]any{"key": "TST-1"},
			},
			wantField: "comment.id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postEvent(t, s, tt.payload)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
			resp := decodeResponse(t, w)
			if resp.Field != tt.wantField {
				t.Errorf("field = %q, want %q", resp.Field, tt.wantField)
			}
		})
	}
}

func TestMalformedJSON(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook-receiver/", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/webhook-receiver/", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
