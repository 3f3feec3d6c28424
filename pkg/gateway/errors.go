package gateway

import (
	"errors"
	"fmt"
)

// Generic classifications. The cause is wrapped alongside for logging only.
var (
	ErrLoginFailed  = errors.New("login failed")
	ErrUploadFailed = errors.New("upload failed")
	ErrQueryFailed  = errors.New("query failed")
)

// Input errors, raised before any request is built
var (
	ErrNoFiles    = errors.New("no files selected")
	ErrEmptyQuery = errors.New("empty query text")
)

// StatusError is a non-2xx response from the service
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("service returned status %d", e.Code)
	}
	return fmt.Sprintf("service returned status %d: %s", e.Code, e.Body)
}

// StatusCode extracts the HTTP status from err, or 0 when the failure happened before a response
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
