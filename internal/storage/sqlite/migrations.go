package sqlite

// migration holds a single schema migration with its target version
// and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations. Versions are
// sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	uuid              TEXT PRIMARY KEY,
	backend_id        TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL,
	template_uuid     TEXT NOT NULL DEFAULT '',
	template_name     TEXT NOT NULL DEFAULT '',
	impact_field      TEXT NOT NULL DEFAULT '',
	reporter_field    TEXT NOT NULL DEFAULT '',
	available_for_all INTEGER NOT NULL DEFAULT 0,
	state             TEXT NOT NULL,
	error_message     TEXT NOT NULL DEFAULT '',
	created           DATETIME NOT NULL,
	modified          DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_backend_id
	ON projects(backend_id) WHERE backend_id != '';

CREATE TABLE IF NOT EXISTS project_issue_types (
	project_uuid    TEXT NOT NULL,
	issue_type_uuid TEXT NOT NULL,
	PRIMARY KEY (project_uuid, issue_type_uuid)
);

CREATE TABLE IF NOT EXISTS priorities (
	uuid        TEXT PRIMARY KEY,
	backend_id  TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	icon_url    TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_priorities_backend_id
	ON priorities(backend_id);

CREATE TABLE IF NOT EXISTS project_templates (
	uuid        TEXT PRIMARY KEY,
	backend_id  TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	icon_url    TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_project_templates_backend_id
	ON project_templates(backend_id);

CREATE TABLE IF NOT EXISTS issue_types (
	uuid        TEXT PRIMARY KEY,
	backend_id  TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	icon_url    TEXT NOT NULL DEFAULT '',
	subtask     INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_issue_types_backend_id
	ON issue_types(backend_id);

CREATE TABLE IF NOT EXISTS issues (
	uuid             TEXT PRIMARY KEY,
	backend_id       TEXT NOT NULL DEFAULT '',
	project_uuid     TEXT NOT NULL,
	type_uuid        TEXT NOT NULL DEFAULT '',
	priority_uuid    TEXT NOT NULL DEFAULT '',
	parent_uuid      TEXT NOT NULL DEFAULT '',
	summary          TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	resolution       TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT '',
	impact           INTEGER NOT NULL DEFAULT 0,
	updated_username TEXT NOT NULL DEFAULT '',
	resolution_sla   REAL,
	resource         TEXT NOT NULL DEFAULT '',
	user_json        TEXT NOT NULL DEFAULT '',
	state            TEXT NOT NULL,
	error_message    TEXT NOT NULL DEFAULT '',
	created          DATETIME NOT NULL,
	updated          DATETIME NOT NULL,
	modified         DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_issues_backend_id
	ON issues(backend_id) WHERE backend_id != '';
CREATE INDEX IF NOT EXISTS idx_issues_project ON issues(project_uuid);

CREATE TABLE IF NOT EXISTS comments (
	uuid          TEXT PRIMARY KEY,
	backend_id    TEXT NOT NULL DEFAULT '',
	issue_uuid    TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	user_json     TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created       DATETIME NOT NULL,
	modified      DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_comments_backend_id
	ON comments(issue_uuid, backend_id) WHERE backend_id != '';
CREATE INDEX IF NOT EXISTS idx_comments_issue ON comments(issue_uuid);

CREATE TABLE IF NOT EXISTS attachments (
	uuid          TEXT PRIMARY KEY,
	backend_id    TEXT NOT NULL DEFAULT '',
	issue_uuid    TEXT NOT NULL,
	file          TEXT NOT NULL DEFAULT '',
	user_json     TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created       DATETIME NOT NULL,
	modified      DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_attachments_backend_id
	ON attachments(issue_uuid, backend_id) WHERE backend_id != '';
CREATE INDEX IF NOT EXISTS idx_attachments_issue ON attachments(issue_uuid);

CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	issue_key  TEXT NOT NULL DEFAULT '',
	actor      TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_issue_key ON events(issue_key);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
