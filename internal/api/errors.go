package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api: %s %s: %d", e.Method, e.Path, e.StatusCode)
}

// IsAuthError reports whether the response indicates a credential problem.
func (e *StatusError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func newStatusError(method, path string, resp *http.Response) *StatusError {
	statusErr := &StatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
	}

	// Best effort: surface the backend's message field when present.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(body) > 0 {
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			if payload.Message != "" {
				statusErr.Message = payload.Message
			} else if payload.Error != "" {
				statusErr.Message = payload.Error
			}
		}
	}
	return statusErr
}
