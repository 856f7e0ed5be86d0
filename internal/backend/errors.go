package backend

import (
	"errors"
	"fmt"

	"github.com/waldur/jirabridge/internal/jira"
)

// ErrInvalid marks a local record that violates a data-model
// invariant. The push can never succeed, so callers must not retry.
var ErrInvalid = errors.New("invalid record")

// Error wraps a remote client failure so callers can treat every
// backend failure uniformly while still unwrapping the cause.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("jira backend: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrap annotates a client error with the failed operation. Nil passes
// through.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// IsNotFound reports whether err means the remote record no longer
// exists.
func IsNotFound(err error) bool {
	return errors.Is(err, jira.ErrNotFound)
}

// IsCaptcha reports whether the remote instance is demanding an
// interactive CAPTCHA, which means the configured credentials are
// locked out until a human signs in through the web UI.
func IsCaptcha(err error) bool {
	return jira.IsCaptcha(err)
}
