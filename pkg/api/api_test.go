package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/maplink/internal/logging"
)

type captured struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   string
}

func newEchoServer(t *testing.T) (*httptest.Server, func() captured) {
	t.Helper()

	var mu sync.Mutex
	var last captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		last = captured{r.Method, r.URL.Path, r.URL.Query(), r.Header.Clone(), string(body)}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	return srv, func() captured {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func TestApi_VerbsAndMerge(t *testing.T) {
	srv, last := newEchoServer(t)

	a, err := New(srv.URL, WithDefaults(Defaults{
		Headers: http.Header{"X-Default": {"d"}},
		Params:  Params{"country": "BR"},
	}))
	require.NoError(t, err)
	a.JoinEndpoint("/geocode/v1")

	_, err = a.Get(context.Background(), "suggestions",
		WithParam("q", "Paulista"),
		WithHeader("X-Call", "c"),
	)
	require.NoError(t, err)

	got := last()
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/geocode/v1/suggestions", got.Path)
	assert.Equal(t, "BR", got.Query.Get("country"))
	assert.Equal(t, "Paulista", got.Query.Get("q"))
	assert.Equal(t, "d", got.Header.Get("X-Default"))
	assert.Equal(t, "c", got.Header.Get("X-Call"))

	// Call configuration must not leak into the defaults.
	d := a.Defaults()
	assert.Empty(t, d.Headers.Get("X-Call"))
	assert.NotContains(t, d.Params, "q")

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch} {
		_, err := a.Do(context.Background(), method, "multi-geocode", map[string]any{"a": 1})
		require.NoError(t, err)
		got := last()
		assert.Equal(t, method, got.Method)
		assert.JSONEq(t, `{"a":1}`, got.Body)
		assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	}

	_, err = a.Delete(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, last().Method)
}

func TestApi_InvalidMethod(t *testing.T) {
	a, err := New("http://localhost:1")
	require.NoError(t, err)

	_, err = a.Do(context.Background(), "TRACE", "/", nil)
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestApi_Tokens(t *testing.T) {
	srv, last := newEchoServer(t)
	a, err := New(srv.URL)
	require.NoError(t, err)

	assert.ErrorIs(t, a.SetBearerToken(""), ErrEmptyToken)
	assert.ErrorIs(t, a.SetBasicToken(""), ErrEmptyToken)

	require.NoError(t, a.SetBearerToken("abc"))
	_, err = a.Get(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", last().Header.Get("Authorization"))

	require.NoError(t, a.SetBasicToken("user:pass"))
	_, err = a.Get(context.Background(), "/")
	require.NoError(t, err)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass"))
	assert.Equal(t, want, last().Header.Get("Authorization"))
}

type carrierBody struct {
	Name     string    `json:"name"`
	Callback *Callback `json:"callback,omitempty"`
}

func (b *carrierBody) WithCallback(cb *Callback) any {
	c := *b
	c.Callback = cb
	return &c
}

func TestApi_CallbackInjection(t *testing.T) {
	srv, last := newEchoServer(t)
	a, err := New(srv.URL)
	require.NoError(t, err)
	a.SetCallback(&Callback{URL: "http://hooks.local/callback"})

	body := map[string]any{"name": "problem"}
	_, err = a.Post(context.Background(), "problems", body)
	require.NoError(t, err)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(last().Body), &sent))
	assert.Equal(t, map[string]any{"url": "http://hooks.local/callback"}, sent["callback"])
	assert.NotContains(t, body, "callback", "caller's body must not be modified")

	carrier := &carrierBody{Name: "job"}
	_, err = a.Post(context.Background(), "problems", carrier)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"job","callback":{"url":"http://hooks.local/callback"}}`, last().Body)
	assert.Nil(t, carrier.Callback, "caller's body must not be modified")

	// String bodies are sent untouched.
	_, err = a.Post(context.Background(), "raw", "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", last().Body)
}

func TestApi_Lifecycle(t *testing.T) {
	srv, _ := newEchoServer(t)
	a, err := New(srv.URL)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	a.OnFetchStart(func(*Fetch) { record("fetchStart") })
	a.OnRequest(func(*Request) { record("request") })
	a.OnResponse(func(*Response) { record("response") })
	a.OnFetchEnd(func(*Fetch) { record("fetchEnd") })

	a.BeforeFetch(func(context.Context, *Fetch) error { record("before:instance"); return nil })
	global := NewHook(BeforeFetch, func(context.Context, *Fetch) error { record("before:global"); return nil }, nil)
	a.Hooks().Append(global)
	a.AfterFetch(func(context.Context, *Fetch) error { record("after:instance"); return errors.New("ignored") })

	resp, err := a.Get(context.Background(), "/",
		WithBeforeFetch(func(ctx context.Context, f *Fetch) error {
			record("before:call")
			fc, ok := FromContext(ctx)
			require.True(t, ok)
			assert.Equal(t, f.ID, fc.FetchID)
			return nil
		}),
		WithAfterFetch(func(context.Context, *Fetch) error { record("after:call"); return nil }),
		WithFetchID("fixed-id"),
	)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", resp.FetchID)

	want := []string{
		"fetchStart",
		"before:instance", "before:global", "before:call",
		"request", "response",
		"after:instance", "after:call",
		"fetchEnd",
	}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("lifecycle order mismatch (-want +got):\n%s", diff)
	}
}

func TestApi_TransportErrorStillEnds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	a, err := New(base, WithTimeout(time.Second))
	require.NoError(t, err)

	afterRan := false
	var ended *Fetch
	a.AfterFetch(func(_ context.Context, f *Fetch) error {
		afterRan = true
		return nil
	})
	a.OnFetchEnd(func(f *Fetch) { ended = f })

	_, err = a.Get(context.Background(), "/")
	require.Error(t, err)
	assert.True(t, afterRan)
	require.NotNil(t, ended)
	assert.Error(t, ended.Err)
	assert.Nil(t, ended.Response)
}

func TestApi_PanickingHookIsRecovered(t *testing.T) {
	srv, _ := newEchoServer(t)

	var buf bytes.Buffer
	a, err := New(srv.URL, WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)

	a.BeforeFetch(func(context.Context, *Fetch) error { panic("before boom") })
	afterRan := false
	a.AfterFetch(func(context.Context, *Fetch) error { panic("after boom") })
	a.AfterFetch(func(context.Context, *Fetch) error { afterRan = true; return nil })
	ended := false
	a.OnFetchEnd(func(*Fetch) { ended = true })

	resp, err := a.Get(context.Background(), "/")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.True(t, afterRan)
	assert.True(t, ended)
	assert.Contains(t, buf.String(), "hook panicked: before boom")
	assert.Contains(t, buf.String(), "hook panicked: after boom")
}

func TestApi_TimingPhases(t *testing.T) {
	srv, _ := newEchoServer(t)
	a, err := New(srv.URL)
	require.NoError(t, err)

	var f *Fetch
	a.OnFetchEnd(func(x *Fetch) { f = x })

	_, err = a.Get(context.Background(), "/")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Positive(t, f.Timing.TCPConnect)
	assert.Positive(t, f.Timing.TimeToFirstByte)
	assert.Equal(t, f.Duration(), f.Timing.Total)
}

func TestApi_BeforeHookCanModifyRequest(t *testing.T) {
	srv, last := newEchoServer(t)
	a, err := New(srv.URL)
	require.NoError(t, err)

	a.BeforeFetch(func(_ context.Context, f *Fetch) error {
		f.Request.Headers.Set("Authorization", "Bearer late")
		f.Request.SetParam("page", 2)
		f.SetTag("job-1")
		return nil
	})

	var tag string
	a.OnFetchEnd(func(f *Fetch) { tag = f.Tag() })

	_, err = a.Get(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, "Bearer late", last().Header.Get("Authorization"))
	assert.Equal(t, "2", last().Query.Get("page"))
	assert.Equal(t, "job-1", tag)
}

func TestApi_Clone(t *testing.T) {
	a, err := New("https://api.maplink.global")
	require.NoError(t, err)
	a.SetHeader("X-Origin", "root")

	var cloned *Api
	a.OnClone(func(c *Api) { cloned = c })

	c := a.Clone()
	require.Same(t, c, cloned)

	c.JoinEndpoint("/trip")
	c.SetHeader("X-Origin", "clone")
	require.NoError(t, c.SetBearerToken("t"))

	assert.Equal(t, "/", a.BaseURL().Path())
	assert.Equal(t, "/trip", c.BaseURL().Path())
	assert.Equal(t, "root", a.Defaults().Headers.Get("X-Origin"))
	assert.Empty(t, a.Defaults().Headers.Get("Authorization"))
	assert.Same(t, a.Hooks(), c.Hooks())

	// Events are shared: a listener on the clone hears clones of the root.
	heard := 0
	off := c.OnClone(func(*Api) { heard++ })
	a.Clone()
	off()
	a.Clone()
	assert.Equal(t, 1, heard)
}

func TestApi_RateLimit(t *testing.T) {
	srv, _ := newEchoServer(t)
	a, err := New(srv.URL, WithRateLimit(20, 1))
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := a.Get(context.Background(), "/")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	stats, ok := a.Clone().RateStats()
	require.True(t, ok)
	assert.Equal(t, int64(3), stats.Scheduled)
	assert.Equal(t, 20.0, stats.Rate)
	assert.Equal(t, 1.0, stats.MaxBurst)

	unlimited, err := New(srv.URL)
	require.NoError(t, err)
	_, ok = unlimited.RateStats()
	assert.False(t, ok)
}

func TestApi_HooksLogWithFetchID(t *testing.T) {
	srv, _ := newEchoServer(t)

	var buf bytes.Buffer
	a, err := New(srv.URL, WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)
	a.BeforeFetch(func(ctx context.Context, _ *Fetch) error {
		l := logging.Ctx(ctx, zerolog.Nop())
		l.Info().Msg("from hook")
		return nil
	})

	_, err = a.Get(context.Background(), "/", WithFetchID("log-1"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"fetch_id":"log-1","message":"from hook"`)

	// A logger already in the context is used instead of the Api's.
	var own bytes.Buffer
	ctx := logging.ContextWithLogger(context.Background(), zerolog.New(&own))
	_, err = a.Get(ctx, "/", WithFetchID("log-2"))
	require.NoError(t, err)
	assert.Contains(t, own.String(), `"fetch_id":"log-2"`)
	assert.NotContains(t, buf.String(), "log-2")
}

func TestApi_Duration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a, err := New(srv.URL)
	require.NoError(t, err)

	var f *Fetch
	a.OnFetchEnd(func(x *Fetch) { f = x })

	_, err = a.Get(context.Background(), "/")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.GreaterOrEqual(t, f.Duration(), 20*time.Millisecond)
	assert.Equal(t, f.Duration(), f.Timing.Total)
}
