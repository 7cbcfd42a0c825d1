package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var validMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Request is the outgoing side of one fetch. Before hooks may change it;
// it is frozen once sent and observers receive clones.
type Request struct {
	FetchID string      `json:"fetchId"`
	Method  string      `json:"method"`
	URL     *URL        `json:"url"`
	Body    any         `json:"body,omitempty"`
	Headers http.Header `json:"headers"`

	params Params
}

// NewRequest creates a request for base with params applied to its query.
func NewRequest(fetchID, method string, base *URL, body any, headers http.Header, params Params) (*Request, error) {
	method = strings.ToUpper(method)
	if !validMethods[method] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	if headers == nil {
		headers = http.Header{}
	}

	r := &Request{
		FetchID: fetchID,
		Method:  method,
		URL:     base.Clone(),
		Body:    body,
		Headers: headers,
		params:  params.Clone(),
	}
	r.URL.SetParams(r.params)
	return r, nil
}

// Params returns a copy of the query parameters.
func (r *Request) Params() Params {
	return r.params.Clone()
}

// SetParam sets a query parameter and updates the URL.
func (r *Request) SetParam(key string, value any) {
	r.params[key] = fmt.Sprint(value)
	r.URL.SetParams(r.params)
}

// Payload serializes the body. Strings, byte slices and form values are
// sent as they are, nil is an empty body and anything else is JSON.
func (r *Request) Payload() ([]byte, error) {
	switch b := r.Body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	case url.Values:
		return []byte(b.Encode()), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return data, nil
	}
}

func (r *Request) contentType() string {
	switch r.Body.(type) {
	case nil, string, []byte:
		return ""
	case url.Values:
		return "application/x-www-form-urlencoded"
	default:
		return "application/json"
	}
}

// Clone returns a deep copy of r. Map and slice bodies built from plain
// JSON values are copied; other body values are shared.
func (r *Request) Clone() *Request {
	return &Request{
		FetchID: r.FetchID,
		Method:  r.Method,
		URL:     r.URL.Clone(),
		Body:    cloneBody(r.Body),
		Headers: r.Headers.Clone(),
		params:  r.params.Clone(),
	}
}

// Build converts r into a *http.Request bound to ctx.
func (r *Request) Build(ctx context.Context) (*http.Request, error) {
	payload, err := r.Payload()
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header = r.Headers.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if ct := r.contentType(); ct != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", ct)
	}
	return req, nil
}

func cloneBody(v any) any {
	switch b := v.(type) {
	case []byte:
		return append([]byte(nil), b...)
	case url.Values:
		out := make(url.Values, len(b))
		for k, vs := range b {
			out[k] = append([]string(nil), vs...)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(b))
		for k, x := range b {
			out[k] = cloneBody(x)
		}
		return out
	case []any:
		out := make([]any, len(b))
		for i, x := range b {
			out[i] = cloneBody(x)
		}
		return out
	default:
		return v
	}
}

// injectCallback adds cb to bodies that can carry it.
func injectCallback(body any, cb *Callback) any {
	if cb == nil {
		return body
	}
	switch b := body.(type) {
	case CallbackCarrier:
		c := *cb
		return b.WithCallback(&c)
	case map[string]any:
		out := cloneBody(b).(map[string]any)
		out["callback"] = *cb
		return out
	default:
		return body
	}
}
