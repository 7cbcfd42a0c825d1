package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidMethod is returned for methods other than GET, POST, PUT, PATCH and DELETE.
	ErrInvalidMethod = errors.New("invalid HTTP method")

	// ErrEmptyToken is returned when setting an empty authorization token.
	ErrEmptyToken = errors.New("token must be a non-empty string")

	// ErrNoContentType is returned by Response.Data when the response has no content type.
	ErrNoContentType = errors.New("no content-type header")

	// ErrUnsupportedContentType is returned by Response.Data for content types
	// that are neither JSON nor text.
	ErrUnsupportedContentType = errors.New("unsupported content-type")
)

// Problem is the default error body returned by the Maplink platform.
type Problem struct {
	Status  int               `json:"status"`
	Title   string            `json:"title"`
	Type    string            `json:"type"`
	Details []json.RawMessage `json:"details,omitempty"`
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	FetchID    string
	Method     string
	URL        string
	StatusCode int
	Status     string
	Problem    *Problem
	Body       []byte
}

func (e *StatusError) Error() string {
	msg := e.Status
	if msg == "" {
		msg = fmt.Sprintf("%d", e.StatusCode)
	}
	if e.Problem != nil && e.Problem.Title != "" {
		msg += ": " + e.Problem.Title
	}
	if e.Method != "" {
		return fmt.Sprintf("%s %s: %s", e.Method, e.URL, msg)
	}
	return msg
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
