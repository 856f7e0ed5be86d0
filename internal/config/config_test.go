package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "Task", cfg.DefaultIssueType)
	assert.Equal(t, DefaultCommentTemplate, cfg.CommentTemplate)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Jira.Verify)
	assert.Equal(t, "3 - Minor", cfg.PriorityMapping["Minor"])
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content, err := yaml.Marshal(map[string]any{
		"jira": map[string]any{
			"url":      "https://jira.example.com",
			"username": "robot",
			"password": "secret",
			"verify":   true,
		},
		"fields": map[string]any{
			"impact":   "Impact",
			"reporter": "Original Reporter",
		},
		"database": map[string]any{
			"path": "/var/lib/jirabridge/bridge.db",
		},
		"priority_mapping": map[string]string{
			"Minor": "4 - Low",
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, content, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://jira.example.com", cfg.Jira.URL)
	assert.True(t, cfg.Jira.Verify)
	assert.Equal(t, "Impact", cfg.Fields.Impact)
	assert.Equal(t, "Original Reporter", cfg.Fields.Reporter)
	assert.Equal(t, "/var/lib/jirabridge/bridge.db", cfg.Database.Path)
	assert.Equal(t, "4 - Low", cfg.MapPriority("Minor"))
	assert.NoError(t, cfg.Validate())
}

func TestMapPriorityPassThrough(t *testing.T) {
	cfg := &Config{PriorityMapping: map[string]string{"Major": "2 - Major"}}
	assert.Equal(t, "2 - Major", cfg.MapPriority("Major"))
	assert.Equal(t, "Blocker", cfg.MapPriority("Blocker"))
}

func TestMapPriorityIgnoresKeyCase(t *testing.T) {
	// Keys arrive lower-cased when the mapping comes from a file.
	cfg := &Config{PriorityMapping: map[string]string{"minor": "4 - Low"}}
	assert.Equal(t, "4 - Low", cfg.MapPriority("Minor"))
	assert.Equal(t, "4 - Low", cfg.MapPriority("minor"))
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.Jira.URL = "https://jira.example.com"
	assert.Error(t, cfg.Validate())

	cfg.Jira.Username = "robot"
	assert.NoError(t, cfg.Validate())
}
