package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

var (
	// ErrDaemonNotRunning is returned when the daemon is not running
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied is returned when the user does not have permission to perform the requested action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when the daemon does not know the endpoint, usually
	// because it is older than the client.
	ErrNotFound = errors.New("404 not found")
)

// StatusError is a non-2xx answer from the daemon. Body is the daemon's error
// message.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	msg := e.Body
	// Handlers answer errors as a JSON string.
	if s, err := strconv.Unquote(e.Body); err == nil {
		msg = s
	}
	return fmt.Sprintf("got %d: %s", e.Code, msg)
}

// IsConflict reports whether err means the daemon was busy with another job.
func IsConflict(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusConflict
}
