package api

import (
	"encoding/json"

	"github.com/wesleyorama2/maplink/pkg/jsonpath"
)

// Result turns the outcome of a call into a typed value. It is meant to
// wrap a verb call directly:
//
//	out, err := api.Result[[]Suggestion](a.Get(ctx, "suggestions"))
//
// A 2xx JSON body is decoded into T; an empty 2xx body yields the zero
// value. Other statuses yield a *StatusError.
func Result[T any](resp *Response, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if !resp.OK {
		return out, NewStatusError(resp)
	}
	if len(resp.body) == 0 {
		return out, nil
	}
	if err := resp.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// NewStatusError describes a non-2xx response, decoding the platform's
// error body when present.
func NewStatusError(resp *Response) *StatusError {
	se := &StatusError{
		FetchID:    resp.FetchID,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       resp.Bytes(),
	}
	if resp.Request != nil {
		se.Method = resp.Request.Method
		se.URL = resp.Request.URL.String()
	}

	var p Problem
	if json.Unmarshal(resp.body, &p) == nil && (p.Title != "" || p.Type != "") {
		se.Problem = &p
		return se
	}

	if title, ok := jsonpath.First(resp.body, "$.title", "$.message", "$.error_description", "$.error", "$.fault.faultstring"); ok {
		se.Problem = &Problem{Status: resp.StatusCode, Title: title}
	}
	return se
}
