// Package jsonpath reads single values out of JSON payloads returned by
// the Maplink platform.
//
// Paths use a small JSONPath subset ($.a.b[0]['c']) translated to gjson
// syntax. Bare gjson paths (a.b.0.c) are accepted as well.
package jsonpath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrEmptyDocument is returned when the payload is empty.
	ErrEmptyDocument = errors.New("empty JSON document")

	// ErrEmptyPath is returned for an empty path expression.
	ErrEmptyPath = errors.New("empty JSONPath expression")

	// ErrInvalidDocument is returned when the payload is not JSON.
	ErrInvalidDocument = errors.New("invalid JSON document")
)

// NotFoundError reports a path that does not exist in the document.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s", e.Path)
}

// Extract returns the value at path as a string. Objects and arrays are
// returned as raw JSON, null as "null".
func Extract(body []byte, path string) (string, error) {
	res, err := get(body, path)
	if err != nil {
		return "", err
	}
	if res.Type == gjson.Null {
		return "null", nil
	}
	return res.String(), nil
}

// Raw returns the raw JSON at path.
func Raw(body []byte, path string) ([]byte, error) {
	res, err := get(body, path)
	if err != nil {
		return nil, err
	}
	return []byte(res.Raw), nil
}

// First returns the first non-empty string found among paths. It is used
// to pull a human readable message out of error payloads whose shape
// varies between endpoints.
func First(body []byte, paths ...string) (string, bool) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return "", false
	}
	for _, p := range paths {
		res := gjson.GetBytes(body, toGjson(p))
		if res.Exists() && res.Type != gjson.Null && res.String() != "" {
			return res.String(), true
		}
	}
	return "", false
}

func get(body []byte, path string) (gjson.Result, error) {
	if len(body) == 0 {
		return gjson.Result{}, ErrEmptyDocument
	}
	if path == "" {
		return gjson.Result{}, ErrEmptyPath
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, ErrInvalidDocument
	}

	res := gjson.GetBytes(body, toGjson(path))
	if !res.Exists() {
		return gjson.Result{}, &NotFoundError{Path: path}
	}
	return res, nil
}

// toGjson converts $.users[0]['name'] into users.0.name.
func toGjson(path string) string {
	if !strings.HasPrefix(path, "$") {
		return path
	}

	p := strings.TrimPrefix(path, "$")
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return "@this"
	}

	r := strings.NewReplacer(
		"['", ".", "']", "",
		`["`, ".", `"]`, "",
		"[", ".", "]", "",
	)
	p = r.Replace(p)
	return strings.TrimPrefix(p, ".")
}
