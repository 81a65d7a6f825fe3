// Package apierr defines the error shapes surfaced by the API client and how the
// read and write paths classify them.
package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/IsaacDSC/gquery/internal/inflight"
)

var (
	// ErrUnauthenticated is returned when the access token could not be refreshed.
	// It is terminal: callers must not retry it.
	ErrUnauthenticated = errors.New("unauthenticated: session expired")
	// ErrMalformedResponse is returned when a 2xx body is not valid JSON.
	ErrMalformedResponse = errors.New("malformed response: invalid JSON body")
)

// Error is a non-2xx response translated into the application error shape.
type Error struct {
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
	StatusCode  int               `json:"statusCode,omitempty"`
}

func (e *Error) Error() string {
	if len(e.FieldErrors) == 0 {
		return e.Message
	}

	fields := make([]string, 0, len(e.FieldErrors))
	for f, msg := range e.FieldErrors {
		fields = append(fields, f+": "+msg)
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(fields, ", "))
}

// Is lets errors.Is(err, ErrUnauthenticated) match a 401 response.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthenticated && e.StatusCode == http.StatusUnauthorized
}

type envelope struct {
	Error *Error `json:"error"`
}

// FromResponse builds an *Error from a non-2xx response. The JSON envelope
// {"error":{...}} is used when present; otherwise the message is
// "<status line>: <body text>".
func FromResponse(status string, code int, body []byte) *Error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		if env.Error.StatusCode == 0 {
			env.Error.StatusCode = code
		}
		return env.Error
	}

	msg := status
	if text := strings.TrimSpace(string(body)); text != "" {
		msg = fmt.Sprintf("%s: %s", status, text)
	}
	return &Error{Message: msg, StatusCode: code}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsAborted reports whether err is a cancellation. Aborts are never retried and
// never surfaced as an error state.
func IsAborted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, inflight.ErrSuperseded) || errors.Is(err, inflight.ErrCleared)
}

// IsRetryable reports whether err may be retried under the backoff policy:
// transport failures, non-2xx responses and malformed bodies are; aborts and
// authentication failures are not.
func IsRetryable(err error) bool {
	if err == nil || IsAborted(err) {
		return false
	}
	return !errors.Is(err, ErrUnauthenticated)
}
