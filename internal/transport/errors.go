package transport

import (
	"errors"
	"fmt"
)

// Error is returned for network failures and non-2xx responses. Body holds
// the raw response text for diagnostics.
type Error struct {
	Target     string
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %v", e.Target, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("transport: %s returned %s: %s", e.Target, e.Status, e.Body)
	}
	return fmt.Sprintf("transport: %s returned %s", e.Target, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status from err, or 0 if err is not a
// transport error or never got a response.
func StatusCode(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
