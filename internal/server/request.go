package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// maxBodySize caps request bodies; callbacks are small JSON documents.
// Larger bodies are answered with 413.
const maxBodySize = 1 << 20

// Request is an incoming request as seen by a route handler.
type Request struct {
	r *http.Request

	once    sync.Once
	body    []byte
	readErr error
}

func newRequest(w http.ResponseWriter, r *http.Request) *Request {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	return &Request{r: r}
}

// Method returns the HTTP method.
func (r *Request) Method() string { return r.r.Method }

// Endpoint returns the request path and query.
func (r *Request) Endpoint() string { return r.r.URL.RequestURI() }

// Headers returns the request headers.
func (r *Request) Headers() http.Header { return r.r.Header }

// Param returns the value of a ":name" path parameter.
func (r *Request) Param(name string) string { return chi.URLParam(r.r, name) }

// Query returns a query string value.
func (r *Request) Query(name string) string { return r.r.URL.Query().Get(name) }

// Context returns the request context. It is done when the client goes away.
func (r *Request) Context() context.Context { return r.r.Context() }

// Body reads the full request body. It can be called more than once.
func (r *Request) Body() ([]byte, error) {
	r.once.Do(func() {
		r.body, r.readErr = io.ReadAll(r.r.Body)
		if r.readErr != nil {
			r.readErr = fmt.Errorf("read request body: %w", r.readErr)
		}
	})
	return r.body, r.readErr
}

// Data returns the body decoded as JSON when the content type says so,
// and as a string otherwise.
func (r *Request) Data() (any, error) {
	body, err := r.Body()
	if err != nil {
		return nil, err
	}
	if !strings.Contains(r.r.Header.Get("Content-Type"), "application/json") {
		return string(body), nil
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decode JSON body: %w", err)
	}
	return v, nil
}

// Decode unmarshals a JSON body into v regardless of content type.
func (r *Request) Decode(v any) error {
	body, err := r.Body()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode JSON body: %w", err)
	}
	return nil
}
