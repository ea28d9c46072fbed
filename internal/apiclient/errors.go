package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMalformedResponse is returned when a success body has an unexpected shape
var ErrMalformedResponse = errors.New("malformed response")

// TransportError means the backend could not be reached or the overall
// request timeout elapsed
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was the request deadline
func (e *TransportError) Timeout() bool {
	var t interface{ Timeout() bool }
	if errors.As(e.Err, &t) {
		return t.Timeout()
	}
	return false
}

// HTTPError is a non-success response. Message holds the human readable
// detail extracted from the body, if any.
type HTTPError struct {
	Status  int
	Body    []byte
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("request failed with status %d (%s)", e.Status, http.StatusText(e.Status))
}

// NotFound reports a 404 response
func (e *HTTPError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// Unauthorized reports a rejected or missing token
func (e *HTTPError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// extractMessage pulls a display message out of an error body. The backend
// uses "detail" for framework errors, "error" for its own validation and
// "non_field_errors" for rejected credentials.
func extractMessage(body []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "error", "message"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	if raw, ok := obj["non_field_errors"]; ok {
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return list[0]
		}
	}
	return ""
}

// UserMessage picks the text shown to a user for err: the server message,
// then the error text, then fallback.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
