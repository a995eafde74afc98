package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError is returned when the API answers with a non-2xx status.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Body       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// DecodeError is returned when a response body is not the expected JSON.
type DecodeError struct {
	Method string
	Path   string
	Err    error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s %s: decoding response: %v", e.Method, e.Path, e.Err)
}

// Unwrap returns the underlying decode error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// maxErrorBody bounds the raw body used as a fallback error message.
const maxErrorBody = 512

// ParseErrorMessage extracts an error message from an API error body.
// It looks at error, message, msg, error.message and error.description in that order
// and falls back to the (truncated) raw body.
func ParseErrorMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"error", "message", "msg"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return s
			}
		}
		if nested, ok := payload["error"].(map[string]any); ok {
			for _, key := range []string{"message", "description"} {
				if s, ok := nested[key].(string); ok && s != "" {
					return s
				}
			}
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	return msg
}
