package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Options{
		URL:      srv.URL,
		Username: "robot",
		Password: "secret",
		Verify:   true,
	})
	return client, srv
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2024-05-01T10:30:00.000+0000", false},
		{"2024-05-01T10:30:00.000Z", false},
		{"2024-05-01T10:30:00+0200", false},
		{"2024-05-01T10:30:00Z", false},
		{"2024-05-01T10:30:00+02:00", false},
		{"", true},
		{"yesterday", true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimestamp(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tt.in, err)
			continue
		}
		if got.Year() != 2024 || got.Month() != time.May {
			t.Errorf("ParseTimestamp(%q) = %v", tt.in, got)
		}
	}
}

func TestMyselfSendsBasicAuth(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "robot" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(User{Name: "robot", DisplayName: "Robot"})
	}))

	me, err := client.Myself(context.Background())
	if err != nil {
		t.Fatalf("Myself: %v", err)
	}
	if me.Name != "robot" {
		t.Errorf("name = %q", me.Name)
	}
}

func TestCaptchaDetection(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seraph-LoginReason", "AUTHENTICATED_FAILED")
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.Myself(context.Background())
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !IsCaptcha(err) {
		t.Errorf("IsCaptcha(%v) = false, want true", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("error = %v", err)
	}
}

func TestNotFoundIsSentinel(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.Issue(context.Background(), "TST-404")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSearchIssuesPaginates(t *testing.T) {
	const total = 250
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))

		var issues []Issue
		for i := startAt; i < total && i < startAt+maxResults; i++ {
			issues = append(issues, Issue{Key: fmt.Sprintf("TST-%d", i+1)})
		}
		_ = json.NewEncoder(w).Encode(SearchResult{
			StartAt:    startAt,
			MaxResults: maxResults,
			Total:      total,
			Issues:     issues,
		})
	}))

	issues, err := client.SearchIssues(context.Background(), "project=TST")
	if err != nil {
		t.Fatalf("SearchIssues: %v", err)
	}
	if len(issues) != total {
		t.Fatalf("issue count = %d, want %d", len(issues), total)
	}
	if issues[0].Key != "TST-1" || issues[total-1].Key != fmt.Sprintf("TST-%d", total) {
		t.Errorf("pagination order broken: %s ... %s", issues[0].Key, issues[total-1].Key)
	}
}

func TestCreateIssueFetchesBack(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/rest/api/2/issue":
			var req struct {
				Fields map[string]any `json:"fields"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if req.Fields["summary"] != "hello" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(IssueRef{ID: "10001", Key: "TST-9"})
		case r.Method == http.MethodGet && r.URL.Path == "/rest/api/2/issue/TST-9":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":  "10001",
				"key": "TST-9",
				"fields": map[string]any{
					"summary": "hello",
					"status":  map[string]string{"name": "Open"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	issue, err := client.CreateIssue(context.Background(), map[string]any{"summary": "hello"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if issue.Key != "TST-9" {
		t.Errorf("key = %q", issue.Key)
	}
	if issue.Fields.Status == nil || issue.Fields.Status.Name != "Open" {
		t.Errorf("status = %+v", issue.Fields.Status)
	}
}

func TestIssueFieldsCapturesCustomFields(t *testing.T) {
	raw := []byte(`{
		"summary": "s",
		"customfield_10100": "Medium - One department or service is affected",
		"customfield_10200": {"ongoingCycle": {"remainingTime": {"millis": 3600000}}}
	}`)
	var fields IssueFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields.Summary != "s" {
		t.Errorf("summary = %q", fields.Summary)
	}
	if _, ok := fields.Custom["customfield_10100"]; !ok {
		t.Errorf("customfield_10100 not captured")
	}
	if _, ok := fields.Custom["customfield_10200"]; !ok {
		t.Errorf("customfield_10200 not captured")
	}
	if _, ok := fields.Custom["summary"]; ok {
		t.Errorf("known field leaked into Custom")
	}
}

func TestAddAttachmentHeaders(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Atlassian-Token") != "no-check" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode([]Attachment{{ID: "500", Filename: "report.txt"}})
	}))

	a, err := client.AddAttachment(context.Background(), "TST-1", "report.txt", strings.NewReader("contents"))
	if err != nil {
		t.Fatalf("AddAttachment: %v", err)
	}
	if a.ID != "500" {
		t.Errorf("id = %q", a.ID)
	}
}

func TestEscapeJQL(t *testing.T) {
	got := EscapeJQL(`name (test)`)
	want := `name \(test\)`
	if got != want {
		t.Errorf("EscapeJQL = %q, want %q", got, want)
	}
}
