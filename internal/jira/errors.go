package jira

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the remote object does not exist. The
// backend adapter treats it as tolerated drift, not a failure.
var ErrNotFound = errors.New("jira: not found")

// APIError is a non-2xx response from the JIRA API.
type APIError struct {
	StatusCode int
	Message    string

	// Captcha is set when the response carries the
	// X-Seraph-LoginReason: AUTHENTICATED_FAILED header, meaning the
	// account is locked behind a CAPTCHA challenge and retrying with
	// the same credentials cannot succeed.
	Captcha bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira API returned %d: %s", e.StatusCode, e.Message)
}

// IsCaptcha reports whether err carries a CAPTCHA-triggered
// authentication rejection.
func IsCaptcha(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Captcha
}
