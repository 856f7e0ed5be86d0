package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/waldur/jirabridge/internal/models"
	"github.com/waldur/jirabridge/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedProject(t *testing.T, s *Store) *models.Project {
	t.Helper()
	now := time.Now().UTC().Add(-time.Minute)
	project := &models.Project{
		UUID:      uuid.NewString(),
		BackendID: "TST",
		Name:      "Test",
		State:     models.StateOK,
		Created:   now,
		Modified:  now,
	}
	if err := s.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return project
}

func TestProjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	project := seedProject(t, s)

	got, err := s.GetProjectByBackendID(ctx, "TST")
	if err != nil {
		t.Fatalf("GetProjectByBackendID: %v", err)
	}
	if got.UUID != project.UUID || got.Name != "Test" {
		t.Errorf("got %+v", got)
	}

	got.Name = "Renamed"
	if err := s.UpdateProject(ctx, got); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	fresh, err := s.GetProject(ctx, project.UUID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if fresh.Name != "Renamed" {
		t.Errorf("name = %q", fresh.Name)
	}
	if !fresh.Modified.After(project.Modified) {
		t.Errorf("modified timestamp not bumped")
	}
}

func TestIssueUniqueBackendID(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	project := seedProject(t, s)

	now := time.Now().UTC()
	issue := &models.Issue{
		UUID:        uuid.NewString(),
		BackendID:   "TST-1",
		ProjectUUID: project.UUID,
		Summary:     "one",
		State:       models.StateOK,
		Created:     now,
		Updated:     now,
		Modified:    now,
	}
	if err := s.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	dup := *issue
	dup.UUID = uuid.NewString()
	if err := s.CreateIssue(ctx, &dup); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("duplicate backend id = %v, want ErrAlreadyExists", err)
	}

	// Unpushed records don't collide on the empty backend id.
	for i := 0; i < 2; i++ {
		local := *issue
		local.UUID = uuid.NewString()
		local.BackendID = ""
		if err := s.CreateIssue(ctx, &local); err != nil {
			t.Errorf("unpushed create %d: %v", i, err)
		}
	}
}

func TestIssueHydratesRefs(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	project := seedProject(t, s)

	priority := &models.Priority{UUID: uuid.NewString(), BackendID: "2", Name: "Major"}
	if err := s.UpsertPriority(ctx, priority); err != nil {
		t.Fatalf("UpsertPriority: %v", err)
	}
	issueType := &models.IssueType{UUID: uuid.NewString(), BackendID: "10", Name: "Task"}
	if err := s.UpsertIssueType(ctx, issueType); err != nil {
		t.Fatalf("UpsertIssueType: %v", err)
	}

	sla := 3600.0
	now := time.Now().UTC()
	issue := &models.Issue{
		UUID:          uuid.NewString(),
		BackendID:     "TST-1",
		ProjectUUID:   project.UUID,
		Type:          issueType,
		Priority:      priority,
		Summary:       "hydrate",
		ResolutionSLA: &sla,
		User:          &models.User{Username: "alice", FullName: "Alice"},
		State:         models.StateOK,
		Created:       now,
		Updated:       now,
		Modified:      now,
	}
	if err := s.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	got, err := s.GetIssueByBackendID(ctx, "TST-1")
	if err != nil {
		t.Fatalf("GetIssueByBackendID: %v", err)
	}
	if got.Priority == nil || got.Priority.Name != "Major" {
		t.Errorf("priority = %+v", got.Priority)
	}
	if got.Type == nil || got.Type.Name != "Task" {
		t.Errorf("type = %+v", got.Type)
	}
	if got.ResolutionSLA == nil || *got.ResolutionSLA != 3600 {
		t.Errorf("sla = %v", got.ResolutionSLA)
	}
	if got.User == nil || got.User.Username != "alice" {
		t.Errorf("user = %+v", got.User)
	}
}

func TestCommentFoldQueries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	project := seedProject(t, s)

	now := time.Now().UTC()
	issue := &models.Issue{
		UUID:        uuid.NewString(),
		BackendID:   "TST-1",
		ProjectUUID: project.UUID,
		Summary:     "c",
		State:       models.StateOK,
		Created:     now,
		Updated:     now,
		Modified:    now,
	}
	if err := s.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	for _, id := range []string{"10", "11", "12"} {
		comment := &models.Comment{
			UUID:      uuid.NewString(),
			BackendID: id,
			IssueUUID: issue.UUID,
			Message:   "m" + id,
			State:     models.StateOK,
			Created:   now,
			Modified:  now,
		}
		if err := s.CreateComment(ctx, comment); err != nil {
			t.Fatalf("CreateComment %s: %v", id, err)
		}
	}

	n, err := s.CountComments(ctx, issue.UUID)
	if err != nil || n != 3 {
		t.Fatalf("CountComments = %d, %v", n, err)
	}

	if err := s.DeleteCommentsNotIn(ctx, issue.UUID, []string{"10"}); err != nil {
		t.Fatalf("DeleteCommentsNotIn: %v", err)
	}
	comments, err := s.ListComments(ctx, issue.UUID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 1 || comments[0].BackendID != "10" {
		t.Errorf("surviving comments = %+v", comments)
	}
}

func TestIssueTypeAssociations(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	project := seedProject(t, s)

	issueType := &models.IssueType{UUID: uuid.NewString(), BackendID: "10", Name: "Task"}
	if err := s.UpsertIssueType(ctx, issueType); err != nil {
		t.Fatalf("UpsertIssueType: %v", err)
	}
	if err := s.AssociateIssueType(ctx, project.UUID, issueType.UUID); err != nil {
		t.Fatalf("AssociateIssueType: %v", err)
	}
	// Re-association is a no-op.
	if err := s.AssociateIssueType(ctx, project.UUID, issueType.UUID); err != nil {
		t.Fatalf("repeat AssociateIssueType: %v", err)
	}

	types, err := s.ProjectIssueTypes(ctx, project.UUID)
	if err != nil {
		t.Fatalf("ProjectIssueTypes: %v", err)
	}
	if len(types) != 1 || types[0].Name != "Task" {
		t.Errorf("types = %+v", types)
	}

	if err := s.DisassociateIssueType(ctx, project.UUID, issueType.UUID); err != nil {
		t.Fatalf("DisassociateIssueType: %v", err)
	}
	types, err = s.ProjectIssueTypes(ctx, project.UUID)
	if err != nil {
		t.Fatalf("ProjectIssueTypes: %v", err)
	}
	if len(types) != 0 {
		t.Errorf("types = %+v after disassociate", types)
	}
}

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, kind := range []string{models.EventIssueCreated, models.EventIssueUpdated} {
		event := &models.Event{Kind: kind, IssueKey: "TST-1", Actor: "alice"}
		if err := s.RecordEvent(ctx, event); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
		if event.ID == 0 {
			t.Errorf("event id not assigned")
		}
	}

	events, err := s.ListEvents(ctx, "TST-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("event count = %d", len(events))
	}
	if events[0].Kind != models.EventIssueCreated {
		t.Errorf("first event = %s", events[0].Kind)
	}
}

func TestAttachmentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	project := seedProject(t, s)

	issue := &models.Issue{
		UUID:        uuid.NewString(),
		BackendID:   "TST-1",
		ProjectUUID: project.UUID,
		Summary:     "has attachment",
		State:       models.StateOK,
		Created:     time.Now().UTC(),
		Modified:    time.Now().UTC(),
	}
	if err := s.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	attachment := &models.Attachment{
		UUID:      uuid.NewString(),
		IssueUUID: issue.UUID,
		File:      "dump.log",
		User:      &models.User{Username: "alice"},
		State:     models.StateCreating,
		Created:   time.Now().UTC(),
		Modified:  time.Now().UTC(),
	}
	if err := s.CreateAttachment(ctx, attachment); err != nil {
		t.Fatalf("CreateAttachment: %v", err)
	}

	attachment.BackendID = "900"
	attachment.State = models.StateOK
	if err := s.UpdateAttachment(ctx, attachment); err != nil {
		t.Fatalf("UpdateAttachment: %v", err)
	}

	fresh, err := s.GetAttachment(ctx, attachment.UUID)
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if fresh.BackendID != "900" || fresh.State != models.StateOK {
		t.Errorf("attachment = %+v", fresh)
	}
	if fresh.User == nil || fresh.User.Username != "alice" {
		t.Errorf("user = %+v, want alice", fresh.User)
	}

	missing := &models.Attachment{UUID: uuid.NewString()}
	if err := s.UpdateAttachment(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("update of unknown attachment = %v, want ErrNotFound", err)
	}
}
