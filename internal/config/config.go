// Package config loads the service configuration from a yaml file and
// environment variables. The resulting Config value is passed
// explicitly to every component that needs it; nothing reads settings
// from ambient globals.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultCommentTemplate is the template applied to comments pushed to
// the remote tracker. CleanMessage recovers the original body and
// author from it on the way back.
const DefaultCommentTemplate = "{body}\n\n_(added by {user.full_name} [{user.username}] via G-Cloud Portal)_"

// Jira holds connection settings for the remote tracker.
type Jira struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// Verify enables TLS certificate verification.
	Verify bool `mapstructure:"verify"`

	// Project restricts pull operations to a single project key.
	// Empty means all visible projects.
	Project string `mapstructure:"project"`

	Timeout time.Duration `mapstructure:"timeout"`
}

// Fields names the custom fields the adapter writes on issue
// creation. Names are resolved to field ids via the remote field
// metadata.
type Fields struct {
	Impact        string `mapstructure:"impact"`
	Reporter      string `mapstructure:"reporter"`
	ResolutionSLA string `mapstructure:"resolution_sla"`
}

// Server holds the webhook receiver settings.
type Server struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Database holds the local store settings.
type Database struct {
	// Path is the sqlite database file. Empty selects the in-memory
	// store.
	Path string `mapstructure:"path"`
}

// Config is the full service configuration.
type Config struct {
	Jira     Jira     `mapstructure:"jira"`
	Fields   Fields   `mapstructure:"fields"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`

	// DefaultIssueType is used when an issue carries no explicit type.
	DefaultIssueType string `mapstructure:"default_issue_type"`

	// CommentTemplate wraps comment bodies pushed to the remote side.
	CommentTemplate string `mapstructure:"comment_template"`

	// ResourceInfoTemplate, when set, is appended to issue
	// descriptions for issues linked to a resource. The {resource}
	// placeholder is replaced with the resource name.
	ResourceInfoTemplate string `mapstructure:"resource_info_template"`

	// PriorityMapping translates local priority names to the remote
	// instance's naming scheme.
	PriorityMapping map[string]string `mapstructure:"priority_mapping"`

	LogLevel string `mapstructure:"log_level"`
}

// MapPriority returns the remote name for a local priority name. The
// lookup ignores case because viper lower-cases map keys read from a
// config file. The name passes through unchanged when no mapping
// entry matches.
func (c *Config) MapPriority(name string) string {
	for local, remote := range c.PriorityMapping {
		if strings.EqualFold(local, name) {
			return remote
		}
	}
	return name
}

// Load reads configuration from the given file (optional) and from
// JIRABRIDGE_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("jira.verify", false)
	v.SetDefault("jira.timeout", 30*time.Second)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("default_issue_type", "Task")
	v.SetDefault("comment_template", DefaultCommentTemplate)
	v.SetDefault("priority_mapping", map[string]string{
		"Minor":    "3 - Minor",
		"Major":    "2 - Major",
		"Critical": "1 - Critical",
	})
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("JIRABRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that required connection settings are present.
func (c *Config) Validate() error {
	if c.Jira.URL == "" {
		return fmt.Errorf("jira.url is required")
	}
	if c.Jira.Username == "" {
		return fmt.Errorf("jira.username is required")
	}
	return nil
}
