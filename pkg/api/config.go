package api

import (
	"fmt"
	"net/http"
)

// Callback is the webhook the platform calls when an asynchronous job
// changes state.
type Callback struct {
	URL      string `json:"url"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// CallbackCarrier is implemented by request bodies that carry a callback.
// WithCallback returns a copy of the body with cb set; the receiver is
// left untouched.
type CallbackCarrier interface {
	WithCallback(cb *Callback) any
}

// Defaults is the configuration applied to every call of an Api.
type Defaults struct {
	Name     string
	Headers  http.Header
	Params   Params
	Callback *Callback
}

// Clone returns a deep copy of d.
func (d Defaults) Clone() Defaults {
	out := Defaults{
		Name:    d.Name,
		Headers: d.Headers.Clone(),
		Params:  d.Params.Clone(),
	}
	if out.Headers == nil {
		out.Headers = http.Header{}
	}
	if d.Callback != nil {
		cb := *d.Callback
		out.Callback = &cb
	}
	return out
}

// Merge resolves a call's configuration on top of d. Call values win key
// by key; d itself is never modified.
func (d Defaults) Merge(call RequestConfig) RequestConfig {
	out := call
	out.Headers = d.Headers.Clone()
	if out.Headers == nil {
		out.Headers = http.Header{}
	}
	for k, v := range call.Headers {
		out.Headers[k] = append([]string(nil), v...)
	}

	out.Params = d.Params.Clone()
	for k, v := range call.Params {
		out.Params[k] = v
	}

	if out.Name == "" {
		out.Name = d.Name
	}
	if out.Callback == nil && d.Callback != nil {
		cb := *d.Callback
		out.Callback = &cb
	}
	return out
}

// Config is an Api's base URL and defaults.
type Config struct {
	BaseURL  *URL
	Defaults Defaults
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	return Config{
		BaseURL:  c.BaseURL.Clone(),
		Defaults: c.Defaults.Clone(),
	}
}

// RequestConfig is the resolved configuration of a single call.
type RequestConfig struct {
	FetchID  string
	Name     string
	Headers  http.Header
	Params   Params
	Callback *Callback

	before []HookFunc
	after  []HookFunc
}

// FetchOption customizes a single call.
type FetchOption func(*RequestConfig)

// WithName names the fetch. Names group fetches on the monitor.
func WithName(name string) FetchOption {
	return func(c *RequestConfig) { c.Name = name }
}

// WithHeader sets a header for this call only.
func WithHeader(key, value string) FetchOption {
	return func(c *RequestConfig) {
		if c.Headers == nil {
			c.Headers = http.Header{}
		}
		c.Headers.Set(key, value)
	}
}

// WithHeaders sets several headers for this call only.
func WithHeaders(h map[string]string) FetchOption {
	return func(c *RequestConfig) {
		for k, v := range h {
			WithHeader(k, v)(c)
		}
	}
}

// WithParam sets a query parameter for this call only.
func WithParam(key string, value any) FetchOption {
	return func(c *RequestConfig) {
		if c.Params == nil {
			c.Params = Params{}
		}
		c.Params[key] = fmt.Sprint(value)
	}
}

// WithParams sets several query parameters for this call only.
func WithParams(p Params) FetchOption {
	return func(c *RequestConfig) {
		for k, v := range p {
			WithParam(k, v)(c)
		}
	}
}

// WithCallback injects cb into the request body.
func WithCallback(cb Callback) FetchOption {
	return func(c *RequestConfig) { c.Callback = &cb }
}

// WithFetchID overrides the generated fetch id.
func WithFetchID(id string) FetchOption {
	return func(c *RequestConfig) { c.FetchID = id }
}

// WithBeforeFetch adds a hook that runs before this call only, after the
// instance and global hooks.
func WithBeforeFetch(fn HookFunc) FetchOption {
	return func(c *RequestConfig) { c.before = append(c.before, fn) }
}

// WithAfterFetch adds a hook that runs after this call only.
func WithAfterFetch(fn HookFunc) FetchOption {
	return func(c *RequestConfig) { c.after = append(c.after, fn) }
}
