package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrStreamingUnsupported is returned by Push when the connection cannot
// be flushed.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Response writes the answer to a Request. It is either sent once with
// Send or streamed with Push.
type Response struct {
	w http.ResponseWriter
	r *http.Request

	status    int
	written   bool
	streaming bool
}

func newResponse(w http.ResponseWriter, r *http.Request) *Response {
	return &Response{w: w, r: r, status: http.StatusOK}
}

// Status sets the status code used by Send.
func (res *Response) Status(code int) *Response {
	res.status = code
	return res
}

// SetHeader sets a response header. It has no effect once writing started.
func (res *Response) SetHeader(key, value string) *Response {
	res.w.Header().Set(key, value)
	return res
}

// Written reports whether the response was sent or streaming started.
func (res *Response) Written() bool { return res.written }

// Send writes body and completes the response. Strings and byte slices
// default to text/plain, other values are encoded as JSON. A nil body
// sends the status alone.
func (res *Response) Send(body any) error {
	if res.written {
		return errors.New("response already written")
	}
	res.written = true

	if body == nil {
		res.w.WriteHeader(res.status)
		return nil
	}

	var data []byte
	contentType := "text/plain; charset=utf-8"
	switch b := body.(type) {
	case string:
		data = []byte(b)
	case []byte:
		data = b
	default:
		var err error
		if data, err = json.Marshal(b); err != nil {
			res.w.WriteHeader(http.StatusInternalServerError)
			return fmt.Errorf("encode response: %w", err)
		}
		contentType = "application/json"
	}

	h := res.w.Header()
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", contentType)
	}
	h.Set("Content-Length", strconv.Itoa(len(data)))

	res.w.WriteHeader(res.status)
	_, err := res.w.Write(data)
	return err
}

// Push writes a server-sent event and flushes it. The first push sends
// the event-stream headers.
func (res *Response) Push(ev Event) error {
	flusher, ok := res.w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	if !res.streaming {
		if res.written {
			return errors.New("response already written")
		}
		h := res.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		res.w.WriteHeader(http.StatusOK)
		res.streaming = true
		res.written = true
	}

	if _, err := res.w.Write([]byte(ev.String())); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	flusher.Flush()
	return nil
}

// Done is closed when the client disconnects or the server shuts down.
func (res *Response) Done() <-chan struct{} {
	return res.r.Context().Done()
}
