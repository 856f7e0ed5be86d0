package webhook

// Event names the remote tracker delivers.
const (
	EventIssueCreated   = "jira:issue_created"
	EventIssueUpdated   = "jira:issue_updated"
	EventIssueDeleted   = "jira:issue_deleted"
	EventCommentCreated = "comment_created"
	EventCommentUpdated = "comment_updated"
	EventCommentDeleted = "comment_deleted"
)

// Payload is the webhook request body. Only the fields the receiver
// consumes are declared; everything else is ignored.
type Payload struct {
	WebhookEvent string        `json:"webhookEvent"`
	Timestamp    int64         `json:"timestamp"`
	Issue        *IssuePayload `json:"issue"`
	Comment      *CommentBody  `json:"comment"`
	User         *UserPayload  `json:"user"`
}

// IssuePayload is the issue block of a webhook event.
type IssuePayload struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields *IssueBlock `json:"fields"`
}

// IssueBlock carries the issue fields a webhook event delivers.
type IssueBlock struct {
	Summary     string        `json:"summary"`
	Description string        `json:"description"`
	Resolution  *NamedBlock   `json:"resolution"`
	IssueType   *TypeBlock    `json:"issuetype"`
	Priority    *NamedBlock   `json:"priority"`
	Status      *NamedBlock   `json:"status"`
	Project     *ProjectBlock `json:"project"`
	Comment     *CommentList  `json:"comment"`
}

// NamedBlock is a {"name": ...} reference.
type NamedBlock struct {
	Name string `json:"name"`
}

// TypeBlock is the issuetype reference.
type TypeBlock struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectBlock is the project reference.
type ProjectBlock struct {
	Key string `json:"key"`
}

// CommentList is the comment collection embedded in issue events.
type CommentList struct {
	Total    int           `json:"total"`
	Comments []CommentBody `json:"comments"`
}

// CommentBody is a single comment, either embedded in an issue event
// or carried as the top-level comment of a comment event.
type CommentBody struct {
	ID      string `json:"id"`
	Body    string `json:"body"`
	Created string `json:"created"`
	Updated string `json:"updated"`
}

// UserPayload identifies the remote actor.
type UserPayload struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Actor returns the best available actor identifier.
func (p *Payload) Actor() string {
	if p.User == nil {
		return ""
	}
	if p.User.Name != "" {
		return p.User.Name
	}
	return p.User.Key
}

var knownEvents = map[string]bool{
	EventIssueCreated:   true,
	EventIssueUpdated:   true,
	EventIssueDeleted:   true,
	EventCommentCreated: true,
	EventCommentUpdated: true,
	EventCommentDeleted: true,
}

// fieldError is a request validation failure tied to a payload field.
type fieldError struct {
	Field   string
	Message string
}

func (e *fieldError) Error() string {
	return e.Field + ": " + e.Message
}

// validate checks the structural requirements of the payload for its
// event type.
func (p *Payload) validate() *fieldError {
	if p.WebhookEvent == "" {
		return &fieldError{Field: "webhookEvent", Message: "is required"}
	}
	if !knownEvents[p.WebhookEvent] {
		return &fieldError{Field: "webhookEvent", Message: "unsupported event " + p.WebhookEvent}
	}
	if p.Issue == nil || p.Issue.Key == "" {
		return &fieldError{Field: "issue.key", Message: "is required"}
	}
	switch p.WebhookEvent {
	case EventIssueCreated, EventIssueUpdated:
		if p.Issue.Fields == nil {
			return &fieldError{Field: "issue.fields", Message: "is required"}
		}
		if p.Issue.Fields.Project == nil || p.Issue.Fields.Project.Key == "" {
			return &fieldError{Field: "issue.fields.project.key", Message: "is required"}
		}
	case EventCommentCreated, EventCommentUpdated, EventCommentDeleted:
		if p.Comment == nil || p.Comment.ID == "" {
			return &fieldError{Field: "comment.id", Message: "is required"}
		}
	}
	return nil
}
