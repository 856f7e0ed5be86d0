package backend

import (
	"testing"

	"github.com/waldur/jirabridge/internal/models"
)

func TestConvertField(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		choices []models.Choice
		mapping map[string]string
		want    int
	}{
		{
			name:    "direct label match",
			value:   "Minor",
			choices: models.PriorityChoices,
			want:    models.PriorityMinor,
		},
		{
			name:    "critical",
			value:   "Critical",
			choices: models.PriorityChoices,
			want:    models.PriorityCritical,
		},
		{
			name:    "unknown value falls back to zero",
			value:   "Blocker",
			choices: models.PriorityChoices,
			want:    0,
		},
		{
			name:    "empty value falls back to zero",
			value:   "",
			choices: models.PriorityChoices,
			want:    0,
		},
		{
			name:    "mapping translates remote naming",
			value:   "2 - Major",
			choices: models.PriorityChoices,
			mapping: map[string]string{"2 - Major": "Major"},
			want:    models.PriorityMajor,
		},
		{
			name:    "mapping miss keeps the original value",
			value:   "Minor",
			choices: models.PriorityChoices,
			mapping: map[string]string{"2 - Major": "Major"},
			want:    models.PriorityMinor,
		},
		{
			name:    "impact label",
			value:   "Medium - One department or service is affected",
			choices: models.ImpactChoices,
			want:    models.ImpactMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertField(tt.value, tt.choices, tt.mapping)
			if got != tt.want {
				t.Errorf("ConvertField(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}
