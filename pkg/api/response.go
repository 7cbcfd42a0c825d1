package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Response is the incoming side of one fetch. The body is read in full
// when the response arrives, so it can be parsed any number of times.
type Response struct {
	FetchID    string      `json:"fetchId"`
	StatusCode int         `json:"status"`
	Status     string      `json:"statusText"`
	OK         bool        `json:"ok"`
	Headers    http.Header `json:"headers"`
	Request    *Request    `json:"-"`

	body []byte
}

// NewResponse creates a response from a received status, headers and body.
func NewResponse(fetchID string, statusCode int, status string, headers http.Header, body []byte) *Response {
	if headers == nil {
		headers = http.Header{}
	}
	return &Response{
		FetchID:    fetchID,
		StatusCode: statusCode,
		Status:     status,
		OK:         statusCode >= 200 && statusCode < 300,
		Headers:    headers,
		body:       body,
	}
}

// ContentType returns the Content-Type header.
func (r *Response) ContentType() string {
	return r.Headers.Get("Content-Type")
}

// Data parses the body by content type: JSON is decoded into a generic
// value and text/* is returned as a string.
func (r *Response) Data() (any, error) {
	ct := strings.ToLower(r.ContentType())
	switch {
	case ct == "":
		return nil, ErrNoContentType
	case strings.Contains(ct, "application/json"):
		var v any
		if err := json.Unmarshal(r.body, &v); err != nil {
			return nil, fmt.Errorf("parse JSON response: %w", err)
		}
		return v, nil
	case strings.Contains(ct, "text/"):
		return string(r.body), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, ct)
	}
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Bytes returns a copy of the body.
func (r *Response) Bytes() []byte {
	return append([]byte(nil), r.body...)
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.body)
}

// Clone returns a deep copy of r, including its request.
func (r *Response) Clone() *Response {
	c := &Response{
		FetchID:    r.FetchID,
		StatusCode: r.StatusCode,
		Status:     r.Status,
		OK:         r.OK,
		Headers:    r.Headers.Clone(),
		body:       r.Bytes(),
	}
	if r.Request != nil {
		c.Request = r.Request.Clone()
	}
	return c
}
