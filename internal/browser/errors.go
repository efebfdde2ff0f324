package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned when the portal username or password is not configured.
	ErrMissingCredentials = errors.New("missing credentials in environment variables REYREY_USERNAME and REYREY_PASSWORD")

	// ErrTokenNotExtracted is returned when neither the requested cookie nor the fallback is set.
	ErrTokenNotExtracted = errors.New("could not extract token")
)

// LoginError reports a failed login or session verification attempt.
type LoginError struct {
	Stage   string // "launch", "navigate", "form", "submit", "verify"
	Message string // text shown by the portal, if any
	Err     error
}

func (e *LoginError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("login %s failed: %s: %v", e.Stage, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("login %s failed: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("login %s failed: %s", e.Stage, e.Message)
	}
}

func (e *LoginError) Unwrap() error {
	return e.Err
}
