package monitor

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/wesleyorama2/maplink/pkg/api"
)

// Outcome of a fetch as shown on the monitor.
const (
	TypeSuccess = "success" // 2xx with a readable body
	TypeFailure = "failure" // non-2xx with a readable body
	TypeError   = "error"   // transport failure or unreadable body
)

// FetchEvent is the monitor's record of one completed fetch.
type FetchEvent struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Data FetchData `json:"data"`
}

// FetchData describes the request and response of a fetch.
type FetchData struct {
	JobID     string       `json:"jobId,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Duration  int64        `json:"duration"` // milliseconds
	Request   RequestData  `json:"request"`
	Response  ResponseData `json:"response"`
}

// RequestData is the part of a request kept by the monitor.
type RequestData struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Body   any    `json:"body,omitempty"`
}

// ResponseData is the part of a response kept by the monitor.
type ResponseData struct {
	OK     bool   `json:"ok"`
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Type   string `json:"type"`
}

// NewFetchEvent builds an event from a completed fetch.
func NewFetchEvent(f *api.Fetch) FetchEvent {
	name := f.Name
	if name == "" {
		name = "fetch"
	}

	ev := FetchEvent{
		ID:   f.ID,
		Name: name,
		Data: FetchData{
			JobID:     f.Tag(),
			Timestamp: time.Now(),
			Duration:  f.Duration().Milliseconds(),
		},
	}

	if f.Request != nil {
		ev.Data.Request = RequestData{
			Method: f.Request.Method,
			URL:    f.Request.URL.String(),
			Body:   requestBody(f.Request),
		}
	}

	resp := f.Response
	if resp == nil {
		err := f.Err
		if err == nil {
			err = errors.New("no response")
		}
		ev.Data.Response = ResponseData{Type: TypeError, Data: err.Error()}
		return ev
	}

	ev.Data.Response = ResponseData{
		OK:     resp.OK,
		Code:   resp.StatusCode,
		Status: resp.Status,
	}

	data, err := resp.Data()
	switch {
	case err != nil:
		ev.Data.Response.Type = TypeError
		ev.Data.Response.Data = err.Error()
	case resp.OK:
		ev.Data.Response.Type = TypeSuccess
		ev.Data.Response.Data = data
	default:
		ev.Data.Response.Type = TypeFailure
		ev.Data.Response.Data = data
	}
	return ev
}

// requestBody hides form bodies, which carry client credentials.
func requestBody(r *api.Request) any {
	switch b := r.Body.(type) {
	case url.Values:
		return "[form]"
	case []byte:
		return string(b)
	default:
		if strings.HasPrefix(r.Headers.Get("Content-Type"), "application/x-www-form-urlencoded") {
			return "[form]"
		}
		return b
	}
}
