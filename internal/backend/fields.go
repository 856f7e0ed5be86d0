package backend

import "github.com/waldur/jirabridge/internal/models"

// ConvertField maps a remote field value onto a local coded choice.
// The value is first translated through mapping (remote name -> local
// label) when a mapping is provided, then looked up in choices by
// label. An unknown value yields code 0, the "undefined" choice.
func ConvertField(value string, choices []models.Choice, mapping map[string]string) int {
	if mapping != nil {
		if mapped, ok := mapping[value]; ok {
			value = mapped
		}
	}
	for _, c := range choices {
		if c.Label == value {
			return c.Code
		}
	}
	return 0
}
