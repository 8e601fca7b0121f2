package session

import (
	"errors"
	"fmt"
	"strings"
)

// AuthError means the upstream rejected our credentials and the user
// has to supply new ones. It is never retried automatically, which
// separates it from transient transport failures that the next tick
// or user action will retry.
type AuthError struct {
	Op     string
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("%s: authentication rejected", e.Op)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return msg
}

// IsAuthError reports whether err carries an AuthError anywhere in
// its chain.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
