package api

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Params holds query parameters. Values are already stringified.
type Params map[string]string

// Clone returns a copy of p. A nil map clones to an empty one.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// URL is an absolute URL with endpoint joining and query serialization.
type URL struct {
	u *url.URL
}

// ParseURL parses an absolute URL.
func ParseURL(raw string) (*URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: must be absolute", raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return &URL{u: u}, nil
}

// MustParseURL is like ParseURL but panics on error.
func MustParseURL(raw string) *URL {
	u, err := ParseURL(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// JoinEndpoint joins endpoint onto the current path and returns u.
// "/geocode/v1" joined with "suggestions" becomes "/geocode/v1/suggestions".
func (u *URL) JoinEndpoint(endpoint string) *URL {
	if endpoint == "" {
		return u
	}
	u.u.Path = path.Join("/", u.u.Path, endpoint)
	u.u.RawPath = ""
	return u
}

// SetParams replaces the query string with params. Keys are written in
// sorted order; nil or empty params clear the query.
func (u *URL) SetParams(params Params) {
	u.u.RawQuery = ""
	if len(params) == 0 {
		return
	}

	q := make(url.Values, len(params))
	for k, v := range params {
		q.Add(k, v)
	}
	u.u.RawQuery = q.Encode()
}

// Params returns the first value of every query parameter.
func (u *URL) Params() Params {
	out := Params{}
	for k, v := range u.u.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// Path returns the URL path.
func (u *URL) Path() string { return u.u.Path }

// Host returns the host, including the port if any.
func (u *URL) Host() string { return u.u.Host }

// Clone returns a deep copy of u.
func (u *URL) Clone() *URL {
	c := *u.u
	if u.u.User != nil {
		user := *u.u.User
		c.User = &user
	}
	return &URL{u: &c}
}

// URL returns a copy of the underlying net/url value.
func (u *URL) URL() *url.URL {
	return u.Clone().u
}

func (u *URL) String() string {
	return u.u.String()
}

// MarshalText lets URLs appear as plain strings in JSON event payloads.
func (u *URL) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}
