// Package memory provides an in-memory Storage implementation backed
// by maps. It is used by tests and by ephemeral runs that do not
// configure a database path.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/waldur/jirabridge/internal/models"
	"github.com/waldur/jirabridge/internal/storage"
)

// Store is a map-backed Storage. All methods are safe for concurrent
// use. Returned records are copies; callers mutate them freely and
// persist via the Update methods.
type Store struct {
	mu sync.RWMutex

	projects     map[string]*models.Project
	projectTypes map[string]map[string]bool // project uuid -> issue type uuids

	priorities map[string]*models.Priority
	templates  map[string]*models.ProjectTemplate
	issueTypes map[string]*models.IssueType

	issues      map[string]*models.Issue
	comments    map[string]*models.Comment
	attachments map[string]*models.Attachment

	events      []*models.Event
	nextEventID int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		projects:     make(map[string]*models.Project),
		projectTypes: make(map[string]map[string]bool),
		priorities:   make(map[string]*models.Priority),
		templates:    make(map[string]*models.ProjectTemplate),
		issueTypes:   make(map[string]*models.IssueType),
		issues:       make(map[string]*models.Issue),
		comments:     make(map[string]*models.Comment),
		attachments:  make(map[string]*models.Attachment),
		nextEventID:  1,
	}
}

var _ storage.Storage = (*Store)(nil)

func copyProject(p *models.Project) *models.Project {
	cp := *p
	return &cp
}

func copyIssue(i *models.Issue) *models.Issue {
	cp := *i
	if i.Type != nil {
		t := *i.Type
		cp.Type = &t
	}
	if i.Priority != nil {
		pr := *i.Priority
		cp.Priority = &pr
	}
	if i.User != nil {
		u := *i.User
		cp.User = &u
	}
	if i.ResolutionSLA != nil {
		sla := *i.ResolutionSLA
		cp.ResolutionSLA = &sla
	}
	return &cp
}

func copyComment(c *models.Comment) *models.Comment {
	cp := *c
	if c.User != nil {
		u := *c.User
		cp.User = &u
	}
	return &cp
}

func copyAttachment(a *models.Attachment) *models.Attachment {
	cp := *a
	if a.User != nil {
		u := *a.User
		cp.User = &u
	}
	return &cp
}

// CreateProject stores a new project. A duplicate backend id is
// rejected with ErrAlreadyExists.
func (s *Store) CreateProject(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.UUID]; ok {
		return storage.ErrAlreadyExists
	}
	if p.BackendID != "" {
		for _, existing := range s.projects {
			if existing.BackendID == p.BackendID {
				return storage.ErrAlreadyExists
			}
		}
	}
	s.projects[p.UUID] = copyProject(p)
	return nil
}

func (s *Store) GetProject(_ context.Context, uuid string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[uuid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyProject(p), nil
}

func (s *Store) GetProjectByBackendID(_ context.Context, backendID string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.BackendID == backendID {
			return copyProject(p), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListProjects(_ context.Context) ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, copyProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

func (s *Store) UpdateProject(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.UUID]; !ok {
		return storage.ErrNotFound
	}
	cp := copyProject(p)
	cp.Modified = time.Now().UTC()
	s.projects[p.UUID] = cp
	p.Modified = cp.Modified
	return nil
}

func (s *Store) DeleteProject(_ context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[uuid]; !ok {
		return storage.ErrNotFound
	}
	delete(s.projects, uuid)
	delete(s.projectTypes, uuid)
	return nil
}

func (s *Store) AssociateIssueType(_ context.Context, projectUUID, issueTypeUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectUUID]; !ok {
		return storage.ErrNotFound
	}
	if s.projectTypes[projectUUID] == nil {
		s.projectTypes[projectUUID] = make(map[string]bool)
	}
	s.projectTypes[projectUUID][issueTypeUUID] = true
	return nil
}

func (s *Store) DisassociateIssueType(_ context.Context, projectUUID, issueTypeUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projectTypes[projectUUID], issueTypeUUID)
	return nil
}

func (s *Store) ProjectIssueTypes(_ context.Context, projectUUID string) ([]*models.IssueType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.IssueType
	for uuid := range s.projectTypes[projectUUID] {
		if t, ok := s.issueTypes[uuid]; ok {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpsertPriority(_ context.Context, p *models.Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.priorities {
		if existing.BackendID == p.BackendID {
			p.UUID = existing.UUID
			cp := *p
			s.priorities[existing.UUID] = &cp
			return nil
		}
	}
	cp := *p
	s.priorities[p.UUID] = &cp
	return nil
}

func (s *Store) GetPriorityByBackendID(_ context.Context, backendID string) (*models.Priority, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.priorities {
		if p.BackendID == backendID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) GetPriorityByName(_ context.Context, name string) (*models.Priority, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.priorities {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListPriorities(_ context.Context) ([]*models.Priority, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Priority, 0, len(s.priorities))
	for _, p := range s.priorities {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeletePrioritiesNotIn(_ context.Context, backendIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := make(map[string]bool, len(backendIDs))
	for _, id := range backendIDs {
		keep[id] = true
	}
	for uuid, p := range s.priorities {
		if !keep[p.BackendID] {
			delete(s.priorities, uuid)
		}
	}
	return nil
}

func (s *Store) UpsertProjectTemplate(_ context.Context, t *models.ProjectTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.templates {
		if existing.BackendID == t.BackendID {
			t.UUID = existing.UUID
			cp := *t
			s.templates[existing.UUID] = &cp
			return nil
		}
	}
	cp := *t
	s.templates[t.UUID] = &cp
	return nil
}

func (s *Store) ListProjectTemplates(_ context.Context) ([]*models.ProjectTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ProjectTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteProjectTemplatesNotIn(_ context.Context, backendIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := make(map[string]bool, len(backendIDs))
	for _, id := range backendIDs {
		keep[id] = true
	}
	for uuid, t := range s.templates {
		if !keep[t.BackendID] {
			delete(s.templates, uuid)
		}
	}
	return nil
}

func (s *Store) UpsertIssueType(_ context.Context, t *models.IssueType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.issueTypes {
		if existing.BackendID == t.BackendID {
			t.UUID = existing.UUID
			cp := *t
			s.issueTypes[existing.UUID] = &cp
			return nil
		}
	}
	cp := *t
	s.issueTypes[t.UUID] = &cp
	return nil
}

func (s *Store) GetIssueTypeByBackendID(_ context.Context, backendID string) (*models.IssueType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.issueTypes {
		if t.BackendID == backendID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) GetIssueTypeByName(_ context.Context, name string) (*models.IssueType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.issueTypes {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListIssueTypes(_ context.Context) ([]*models.IssueType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.IssueType, 0, len(s.issueTypes))
	for _, t := range s.issueTypes {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteIssueType(_ context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issueTypes[uuid]; !ok {
		return storage.ErrNotFound
	}
	delete(s.issueTypes, uuid)
	for _, types := range s.projectTypes {
		delete(types, uuid)
	}
	return nil
}

// CreateIssue stores a new issue. A duplicate backend id within the
// store is rejected with ErrAlreadyExists; this is the guard that
// keeps webhook deliveries and eager pushes from double-creating.
func (s *Store) CreateIssue(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[issue.UUID]; ok {
		return storage.ErrAlreadyExists
	}
	if issue.BackendID != "" {
		for _, existing := range s.issues {
			if existing.BackendID == issue.BackendID {
				return storage.ErrAlreadyExists
			}
		}
	}
	s.issues[issue.UUID] = copyIssue(issue)
	return nil
}

func (s *Store) GetIssue(_ context.Context, uuid string) (*models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issue, ok := s.issues[uuid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyIssue(issue), nil
}

func (s *Store) GetIssueByBackendID(_ context.Context, backendID string) (*models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, issue := range s.issues {
		if issue.BackendID == backendID {
			return copyIssue(issue), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListIssues(_ context.Context, projectUUID string) ([]*models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Issue
	for _, issue := range s.issues {
		if projectUUID == "" || issue.ProjectUUID == projectUUID {
			out = append(out, copyIssue(issue))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

func (s *Store) UpdateIssue(_ context.Context, issue *models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[issue.UUID]; !ok {
		return storage.ErrNotFound
	}
	cp := copyIssue(issue)
	cp.Modified = time.Now().UTC()
	s.issues[issue.UUID] = cp
	issue.Modified = cp.Modified
	return nil
}

func (s *Store) DeleteIssue(_ context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[uuid]; !ok {
		return storage.ErrNotFound
	}
	delete(s.issues, uuid)
	for cuuid, c := range s.comments {
		if c.IssueUUID == uuid {
			delete(s.comments, cuuid)
		}
	}
	for auuid, a := range s.attachments {
		if a.IssueUUID == uuid {
			delete(s.attachments, auuid)
		}
	}
	return nil
}

func (s *Store) CreateComment(_ context.Context, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[c.UUID]; ok {
		return storage.ErrAlreadyExists
	}
	if c.BackendID != "" {
		for _, existing := range s.comments {
			if existing.IssueUUID == c.IssueUUID && existing.BackendID == c.BackendID {
				return storage.ErrAlreadyExists
			}
		}
	}
	s.comments[c.UUID] = copyComment(c)
	return nil
}

func (s *Store) GetComment(_ context.Context, uuid string) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[uuid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyComment(c), nil
}

func (s *Store) GetCommentByBackendID(_ context.Context, issueUUID, backendID string) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.comments {
		if c.IssueUUID == issueUUID && c.BackendID == backendID {
			return copyComment(c), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListComments(_ context.Context, issueUUID string) ([]*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Comment
	for _, c := range s.comments {
		if c.IssueUUID == issueUUID {
			out = append(out, copyComment(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

func (s *Store) CountComments(_ context.Context, issueUUID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.comments {
		if c.IssueUUID == issueUUID {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateComment(_ context.Context, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[c.UUID]; !ok {
		return storage.ErrNotFound
	}
	cp := copyComment(c)
	cp.Modified = time.Now().UTC()
	s.comments[c.UUID] = cp
	c.Modified = cp.Modified
	return nil
}

func (s *Store) DeleteComment(_ context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[uuid]; !ok {
		return storage.ErrNotFound
	}
	delete(s.comments, uuid)
	return nil
}

func (s *Store) DeleteCommentsNotIn(_ context.Context, issueUUID string, backendIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := make(map[string]bool, len(backendIDs))
	for _, id := range backendIDs {
		keep[id] = true
	}
	for uuid, c := range s.comments {
		if c.IssueUUID == issueUUID && !keep[c.BackendID] {
			delete(s.comments, uuid)
		}
	}
	return nil
}

func (s *Store) CreateAttachment(_ context.Context, a *models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attachments[a.UUID]; ok {
		return storage.ErrAlreadyExists
	}
	s.attachments[a.UUID] = copyAttachment(a)
	return nil
}

func (s *Store) GetAttachment(_ context.Context, uuid string) (*models.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attachments[uuid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyAttachment(a), nil
}

func (s *Store) GetAttachmentByBackendID(_ context.Context, issueUUID, backendID string) (*models.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attachments {
		if a.IssueUUID == issueUUID && a.BackendID == backendID {
			return copyAttachment(a), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListAttachments(_ context.Context, issueUUID string) ([]*models.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Attachment
	for _, a := range s.attachments {
		if a.IssueUUID == issueUUID {
			out = append(out, copyAttachment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

func (s *Store) UpdateAttachment(_ context.Context, a *models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attachments[a.UUID]; !ok {
		return storage.ErrNotFound
	}
	cp := copyAttachment(a)
	cp.Modified = time.Now().UTC()
	s.attachments[a.UUID] = cp
	a.Modified = cp.Modified
	return nil
}

func (s *Store) DeleteAttachment(_ context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attachments[uuid]; !ok {
		return storage.ErrNotFound
	}
	delete(s.attachments, uuid)
	return nil
}

func (s *Store) RecordEvent(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.ID = s.nextEventID
	s.nextEventID++
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, &cp)
	e.ID = cp.ID
	return nil
}

func (s *Store) ListEvents(_ context.Context, issueKey string) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, e := range s.events {
		if issueKey == "" || e.IssueKey == issueKey {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }
