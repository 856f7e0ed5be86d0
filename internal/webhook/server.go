// Package webhook receives change notifications from the remote
// tracker and feeds them to the reconciliation engine.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/waldur/jirabridge/internal/logger"
	"github.com/waldur/jirabridge/internal/models"
	"github.com/waldur/jirabridge/internal/reconcile"
	"github.com/waldur/jirabridge/internal/storage"
	"github.com/waldur/jirabridge/internal/telemetry"
)

// Server handles HTTP requests from the remote tracker's webhook.
type Server struct {
	store      storage.Storage
	engine     *reconcile.Engine
	mux        *http.ServeMux
	httpServer *http.Server

	eventCounter metric.Int64Counter
}

// ServerConfig holds configuration for the webhook server.
type ServerConfig struct {
	Store  storage.Storage
	Engine *reconcile.Engine
}

// NewServer creates a new webhook server.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		store:  cfg.Store,
		engine: cfg.Engine,
		mux:    http.NewServeMux(),
	}

	counter, err := telemetry.Meter("webhook").Int64Counter("webhook.events")
	if err == nil {
		s.eventCounter = counter
	}

	s.mux.HandleFunc("/api/webhook-receiver/", s.handleEvent)
	s.mux.HandleFunc("/health", s.handleHealth)

	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// EventResponse is the JSON response body.
type EventResponse struct {
	Success  bool   `json:"success"`
	Event    string `json:"event,omitempty"`
	IssueKey string `json:"issue_key,omitempty"`
	Field    string `json:"field,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleEvent handles POST /api/webhook-receiver/.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "", "method not allowed: use POST")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "", "failed to read request body")
		return
	}
	defer func() { _ = r.Body.Close() }()

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "", fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	ctx := r.Context()
	if ferr := payload.validate(); ferr != nil {
		s.countEvent(ctx, payload.WebhookEvent, "rejected")
		logger.Warn("webhook rejected event %q: %v", payload.WebhookEvent, ferr)
		s.writeFieldError(w, ferr)
		return
	}

	s.countEvent(ctx, payload.WebhookEvent, "accepted")

	if err := s.dispatch(ctx, &payload); err != nil {
		var ferr *fieldError
		if errors.As(err, &ferr) {
			s.writeFieldError(w, ferr)
			return
		}
		logger.Error("webhook %s for %s: %v", payload.WebhookEvent, payload.Issue.Key, err)
		s.writeError(w, http.StatusInternalServerError, payload.WebhookEvent, err.Error())
		return
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(EventResponse{
		Success:  true,
		Event:    payload.WebhookEvent,
		IssueKey: payload.Issue.Key,
	})
}

// dispatch routes a validated payload to the engine. Every accepted
// event answers 201, mirroring the tracker-facing contract.
func (s *Server) dispatch(ctx context.Context, payload *Payload) error {
	switch payload.WebhookEvent {
	case EventIssueCreated:
		project, err := s.resolveProject(ctx, payload)
		if err != nil {
			return err
		}
		_, err = s.engine.CreateIssueFromRemote(ctx, project, payload.Issue.Key, issueEvent(payload))
		return err

	case EventIssueUpdated:
		issue, err := s.resolveIssue(ctx, payload.Issue.Key)
		if err != nil {
			return err
		}
		// An embedded top-level comment means the update event was
		// really a comment change.
		if payload.Comment != nil {
			return s.engine.UpsertCommentFromRemote(ctx, issue, payload.Comment.ID)
		}
		return s.engine.UpdateIssueFromRemote(ctx, issue, issueEvent(payload))

	case EventIssueDeleted:
		return s.engine.DeleteIssueFromRemote(ctx, payload.Issue.Key)

	case EventCommentCreated, EventCommentUpdated:
		issue, err := s.resolveIssue(ctx, payload.Issue.Key)
		if err != nil {
			return err
		}
		return s.engine.UpsertCommentFromRemote(ctx, issue, payload.Comment.ID)

	case EventCommentDeleted:
		issue, err := s.resolveIssue(ctx, payload.Issue.Key)
		if err != nil {
			return err
		}
		return s.engine.DeleteCommentFromRemote(ctx, issue, payload.Comment.ID)
	}
	return fmt.Errorf("unhandled event %s", payload.WebhookEvent)
}

// resolveProject maps the payload's project key to the local mirror.
// An unknown project is a request error: the webhook is pointed at a
// project this deployment does not manage.
func (s *Server) resolveProject(ctx context.Context, payload *Payload) (*models.Project, error) {
	key := payload.Issue.Fields.Project.Key
	project, err := s.store.GetProjectByBackendID(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &fieldError{Field: "issue.fields.project.key", Message: fmt.Sprintf("project %s is not managed here", key)}
	}
	return project, err
}

// resolveIssue maps an issue key to the local mirror.
func (s *Server) resolveIssue(ctx context.Context, key string) (*models.Issue, error) {
	issue, err := s.store.GetIssueByBackendID(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &fieldError{Field: "issue.key", Message: fmt.Sprintf("issue %s is not mirrored here", key)}
	}
	return issue, err
}

// issueEvent extracts what the payload itself contributes: the actor
// and the comment inventory. Field values are re-read from the remote
// tracker by the engine.
func issueEvent(payload *Payload) reconcile.IssueEvent {
	ev := reconcile.IssueEvent{Actor: payload.Actor()}
	fields := payload.Issue.Fields
	if fields == nil || fields.Comment == nil {
		return ev
	}
	ev.HasComments = true
	ev.CommentTotal = fields.Comment.Total
	for _, c := range fields.Comment.Comments {
		ev.CommentIDs = append(ev.CommentIDs, c.ID)
	}
	return ev
}

func (s *Server) countEvent(ctx context.Context, event, result string) {
	if s.eventCounter == nil {
		return
	}
	s.eventCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("result", result),
	))
}

// handleHealth handles GET /health for load balancer checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, event, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(EventResponse{
		Success: false,
		Event:   event,
		Error:   message,
	})
}

// writeFieldError writes a 400 naming the offending payload field.
func (s *Server) writeFieldError(w http.ResponseWriter, ferr *fieldError) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(EventResponse{
		Success: false,
		Field:   ferr.Field,
		Error:   ferr.Error(),
	})
}
