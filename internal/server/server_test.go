package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(Config{Port: 3000})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestNew_Config(t *testing.T) {
	for _, port := range []int{0, -1, 65536} {
		_, err := New(Config{Port: port})
		assert.Error(t, err, "port %d should be rejected", port)
	}

	s, err := New(Config{Port: 8080})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/", s.URL())

	s, err = New(Config{Port: 8080, PublicURL: "https://hooks.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/", s.URL())
}

func TestToChiPattern(t *testing.T) {
	tests := map[string]string{
		"/callback":         "/callback",
		"jobs/:id":          "/jobs/{id}",
		"/jobs/:id/events/": "/jobs/{id}/events",
		"/":                 "/",
		"/a/:x/:y_z":        "/a/{x}/{y_z}",
	}
	for in, want := range tests {
		if got := toChiPattern(in); got != want {
			t.Errorf("toChiPattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestServer_Routing(t *testing.T) {
	s, ts := newTestServer(t)

	s.Get("/jobs/:id", func(req *Request, _ *Response) (any, error) {
		return map[string]string{"id": req.Param("id")}, nil
	})
	s.Post("/echo", func(req *Request, _ *Response) (any, error) {
		return req.Data()
	})
	s.Get("/fail", func(*Request, *Response) (any, error) {
		return nil, errors.New("boom")
	})
	s.Get("/text", func(_ *Request, res *Response) (any, error) {
		res.Status(http.StatusAccepted)
		return "accepted", nil
	})

	resp, err := http.Get(ts.URL + "/jobs/42/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"id":"42"}`, string(body))

	resp, err = http.Post(ts.URL+"/echo", "application/json", strings.NewReader(`{"a":[1,2]}`))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `{"a":[1,2]}`, string(body))

	resp, err = http.Post(ts.URL+"/echo", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "hi", string(body))
	assert.Equal(t, "2", resp.Header.Get("Content-Length"))

	resp, err = http.Get(ts.URL + "/fail")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"boom"}`, string(body))

	resp, err = http.Get(ts.URL + "/text")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
}

func TestServer_BodyTooLarge(t *testing.T) {
	s, ts := newTestServer(t)

	s.Post("/echo", func(req *Request, _ *Response) (any, error) {
		body, err := req.Body()
		if err != nil {
			return nil, err
		}
		return map[string]int{"size": len(body)}, nil
	})

	resp, err := http.Post(ts.URL+"/echo", "text/plain", strings.NewReader(strings.Repeat("x", maxBodySize)))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, fmt.Sprintf(`{"size":%d}`, maxBodySize), string(body))

	resp, err = http.Post(ts.URL+"/echo", "text/plain", strings.NewReader(strings.Repeat("x", maxBodySize+1)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestServer_NotFoundAndMethodNotAllowed(t *testing.T) {
	s, ts := newTestServer(t)
	s.Post("/callback", func(*Request, *Response) (any, error) { return nil, nil })

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodGet, "/callback", http.StatusNotFound},
		{http.MethodPut, "/callback", http.StatusNotFound},
		{http.MethodOptions, "/nope", http.StatusMethodNotAllowed},
		{http.MethodTrace, "/callback", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Empty(t, body)
		})
	}
}

func TestServer_Push(t *testing.T) {
	s, ts := newTestServer(t)

	s.Get("/stream", func(_ *Request, res *Response) (any, error) {
		for i := 0; i < 2; i++ {
			if err := res.Push(Event{ID: fmt.Sprint(i), Name: "tick", Data: map[string]int{"n": i}}); err != nil {
				return nil, err
			}
		}
		<-res.Done()
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 8 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		lines = append(lines, strings.TrimRight(line, "\n"))
	}

	assert.Equal(t, []string{
		"id: 0", "event: tick", `data: {"n":0}`, "",
		"id: 1", "event: tick", `data: {"n":1}`, "",
	}, lines)
}

func TestEvent_String(t *testing.T) {
	ev := Event{ID: "1", Name: "card", Data: "<div>\n<p>x</p>\n</div>"}
	want := "id: 1\nevent: card\ndata: <div>\ndata: <p>x</p>\ndata: </div>\n\n"
	assert.Equal(t, want, ev.String())

	assert.NotEmpty(t, NewEvent("x", nil).ID)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServer_ServeAndShutdown(t *testing.T) {
	port := freePort(t)
	s, err := New(Config{Port: port, ShutdownTimeout: time.Second})
	require.NoError(t, err)
	s.Get("/ping", func(*Request, *Response) (any, error) { return "pong", nil })

	closed := make(chan struct{})
	s.OnClose(func() { close(closed) })

	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/ping", port))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	<-closed
}

func TestServer_ListenPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	s, err := New(Config{Port: ln.Addr().(*net.TCPAddr).Port})
	require.NoError(t, err)
	assert.Error(t, s.Listen())
}
