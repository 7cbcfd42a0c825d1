package monitor

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/maplink/internal/server"
	"github.com/wesleyorama2/maplink/pkg/api"
)

func newPlatform(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"title":"not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"secret","path":"` + r.URL.Path + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newWatched(t *testing.T, cfg Config, opts ...Option) (*Monitor, *api.Api) {
	t.Helper()
	a, err := api.New(newPlatform(t).URL)
	require.NoError(t, err)

	m := New(cfg, opts...)
	m.Watch(a)
	t.Cleanup(m.Close)
	return m, a
}

func TestMonitor_RecordsFetches(t *testing.T) {
	m, a := newWatched(t, Config{})
	ctx := context.Background()

	_, err := a.Get(ctx, "suggestions", api.WithName("geocode"))
	require.NoError(t, err)
	_, err = a.Get(ctx, "missing", api.WithName("geocode"))
	require.NoError(t, err)
	_, err = a.Post(ctx, "oauth", url.Values{"client_secret": {"s"}}, api.WithName("auth"))
	require.NoError(t, err)

	events := m.Events()
	require.Len(t, events, 2, "auth fetches are not recorded")

	first := events[0]
	assert.Equal(t, "geocode", first.Name)
	assert.Equal(t, TypeSuccess, first.Data.Response.Type)
	assert.Equal(t, http.MethodGet, first.Data.Request.Method)
	assert.True(t, strings.HasSuffix(first.Data.Request.URL, "/suggestions"))
	assert.Equal(t, 200, first.Data.Response.Code)

	assert.Equal(t, TypeFailure, events[1].Data.Response.Type)
	assert.Equal(t, 404, events[1].Data.Response.Code)

	stats := m.Stats().Snapshot()
	require.Len(t, stats, 1)
	assert.Equal(t, "geocode", stats[0].Name)
	assert.Equal(t, int64(2), stats[0].Count)
	assert.Equal(t, int64(1), stats[0].ByType[TypeSuccess])
	assert.Equal(t, int64(1), stats[0].ByType[TypeFailure])
}

func TestMonitor_TransportError(t *testing.T) {
	a, err := api.New("http://127.0.0.1:1")
	require.NoError(t, err)
	m := New(Config{})
	m.Watch(a)
	defer m.Close()

	_, err = a.Get(context.Background(), "x")
	require.Error(t, err)

	events := m.Events()
	require.Len(t, events, 1)
	assert.Equal(t, TypeError, events[0].Data.Response.Type)
	assert.NotEmpty(t, events[0].Data.Response.Data)
}

func TestMonitor_FormBodyRedacted(t *testing.T) {
	m, a := newWatched(t, Config{Ignore: []string{}})

	_, err := a.Post(context.Background(), "oauth", url.Values{"client_secret": {"s"}}, api.WithName("auth"))
	require.NoError(t, err)

	events := m.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "[form]", events[0].Data.Request.Body)
}

func TestMonitor_MaxEvents(t *testing.T) {
	m, a := newWatched(t, Config{MaxEvents: 3})

	for i := 0; i < 5; i++ {
		_, err := a.Get(context.Background(), "n", api.WithParam("i", i))
		require.NoError(t, err)
	}

	events := m.Events()
	require.Len(t, events, 3)
	assert.True(t, strings.HasSuffix(events[0].Data.Request.URL, "i=2"), events[0].Data.Request.URL)
}

func TestMonitor_CloseStopsWatching(t *testing.T) {
	a, err := api.New(newPlatform(t).URL)
	require.NoError(t, err)
	m := New(Config{})
	m.Watch(a)

	ch, _ := m.Subscribe()
	m.Close()

	_, ok := <-ch
	assert.False(t, ok, "subscription channel closed")

	_, err = a.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, m.Events())
}

func TestMonitor_Await(t *testing.T) {
	m := New(Config{})

	// Already buffered.
	m.HandleCallback(CallbackEvent{JobID: "j1", Type: CallbackStatusChange, Description: StatusSolved})
	ev, err := m.Await(context.Background(), SolvedJob("j1"))
	require.NoError(t, err)
	assert.Equal(t, "j1", ev.JobID)
	assert.False(t, ev.ReceivedAt.IsZero())

	// Arrives later.
	go func() {
		time.Sleep(20 * time.Millisecond)
		m.HandleCallback(CallbackEvent{JobID: "j2", Type: CallbackProgress, Description: "50"})
		m.HandleCallback(CallbackEvent{JobID: "j2", Type: CallbackStatusChange, Description: StatusFailed})
	}()
	ev, err = m.Await(context.Background(), FinalJob("j2"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, ev.Description)
	assert.False(t, ev.Solved())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Await(ctx, SolvedJob("never"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMonitor_OnCallback(t *testing.T) {
	m := New(Config{})

	var got []string
	off := m.OnCallback(func(ev CallbackEvent) { got = append(got, "a:"+ev.JobID) })
	m.OnCallback(func(ev CallbackEvent) { got = append(got, "b:"+ev.JobID) })

	m.HandleCallback(CallbackEvent{JobID: "1", Type: CallbackProgress})
	off()
	off()
	m.HandleCallback(CallbackEvent{JobID: "2", Type: CallbackProgress})

	assert.Equal(t, []string{"a:1", "b:1", "b:2"}, got)
	assert.Len(t, m.Callbacks(), 2)
}

func TestMonitor_Prune(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	m, a := newWatched(t, Config{SpoilTime: time.Hour}, WithClock(clock))

	_, err := a.Get(context.Background(), "old")
	require.NoError(t, err)
	m.HandleCallback(CallbackEvent{JobID: "old", Type: CallbackProgress})

	now = now.Add(90 * time.Minute)
	_, err = a.Get(context.Background(), "new")
	require.NoError(t, err)

	assert.Equal(t, 2, m.Prune())
	events := m.Events()
	require.Len(t, events, 1)
	assert.True(t, strings.HasSuffix(events[0].Data.Request.URL, "/new"))
	assert.Empty(t, m.Callbacks())
}

func TestJanitor_Serve(t *testing.T) {
	m := New(Config{PruneInterval: 5 * time.Millisecond, SpoilTime: time.Nanosecond})
	m.HandleCallback(CallbackEvent{JobID: "x", Type: CallbackProgress})

	j := m.Janitor()
	assert.Equal(t, "monitor-janitor", j.String())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Serve(ctx) }()

	assert.Eventually(t, func() bool { return len(m.Callbacks()) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func newMonitorServer(t *testing.T, m *Monitor) *httptest.Server {
	t.Helper()
	s, err := server.New(server.Config{Port: 3000})
	require.NoError(t, err)
	m.Register(s)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestRoutes_Callback(t *testing.T) {
	m := New(Config{})
	ts := newMonitorServer(t, m)

	for _, path := range []string{"/", "/callback"} {
		resp, err := http.Post(ts.URL+path, "application/json",
			strings.NewReader(`{"jobId":"j1","type":"STATUS_CHANGE","description":"SOLVED","createdAt":1700000000000}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	callbacks := m.Callbacks()
	require.Len(t, callbacks, 2)
	assert.True(t, callbacks[0].Solved())
	assert.Equal(t, time.UnixMilli(1700000000000), callbacks[0].Time())

	resp, err := http.Post(ts.URL+"/callback", "application/json", strings.NewReader(`{"type":""}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(body, &problem))
	assert.Equal(t, "invalid callback", problem.Error)
	assert.NotEmpty(t, problem.Details)
	assert.Len(t, m.Callbacks(), 2)
}

func TestRoutes_CallbackBasicAuth(t *testing.T) {
	m := New(Config{CallbackUser: "maplink", CallbackPassword: "pw"})
	ts := newMonitorServer(t, m)

	post := func(user, pass string) int {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/callback",
			strings.NewReader(`{"jobId":"j1","type":"PROGRESS"}`))
		req.Header.Set("Content-Type", "application/json")
		if user != "" {
			req.SetBasicAuth(user, pass)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, post("", ""))
	assert.Equal(t, http.StatusUnauthorized, post("maplink", "wrong"))
	assert.Equal(t, http.StatusOK, post("maplink", "pw"))
	assert.Len(t, m.Callbacks(), 1)
}

func TestRoutes_FetchStream(t *testing.T) {
	m, a := newWatched(t, Config{})
	ts := newMonitorServer(t, m)

	_, err := a.Get(context.Background(), "before", api.WithName("replayed"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/fetch-stream", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	nextData := func(event string) string {
		t.Helper()
		var name string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: ") && name == event:
				return strings.TrimPrefix(line, "data: ")
			}
		}
	}

	nextData("ready")

	var ev FetchEvent
	require.NoError(t, json.Unmarshal([]byte(nextData("fetch")), &ev))
	assert.Equal(t, "replayed", ev.Name)

	_, err = a.Get(context.Background(), "after", api.WithName("live"))
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal([]byte(nextData("fetch")), &ev))
	assert.Equal(t, "live", ev.Name)
	assert.Equal(t, TypeSuccess, ev.Data.Response.Type)
}

func TestRoutes_PageAndStats(t *testing.T) {
	m, a := newWatched(t, Config{})
	ts := newMonitorServer(t, m)

	_, err := a.Get(context.Background(), "suggestions", api.WithName("geocode"))
	require.NoError(t, err)
	m.HandleCallback(CallbackEvent{JobID: "job-7", Type: CallbackStatusChange, Description: StatusSolved})

	resp, err := http.Get(ts.URL + "/monitor")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
	page := string(body)
	assert.Contains(t, page, `sse-connect="/fetch-stream/html"`)
	assert.Contains(t, page, "job-7")
	assert.Contains(t, page, `class="card success"`)

	resp, err = http.Get(ts.URL + "/monitor/stats")
	require.NoError(t, err)
	var stats []NameStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	require.Len(t, stats, 1)
	assert.Equal(t, "geocode", stats[0].Name)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "maplink_fetch_total")
}

func TestRoutes_Rate(t *testing.T) {
	m, _ := newWatched(t, Config{})
	ts := newMonitorServer(t, m)

	resp, err := http.Get(ts.URL + "/monitor/rate")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	a, err := api.New(newPlatform(t).URL, api.WithRateLimit(1000, 4))
	require.NoError(t, err)
	limited := New(Config{})
	limited.Watch(a)
	t.Cleanup(limited.Close)
	ts = newMonitorServer(t, limited)

	_, err = a.Get(context.Background(), "suggestions")
	require.NoError(t, err)

	resp, err = http.Get(ts.URL + "/monitor/rate")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		Rate      float64 `json:"rate"`
		MaxBurst  float64 `json:"maxBurst"`
		Scheduled int64   `json:"scheduled"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1000.0, stats.Rate)
	assert.Equal(t, 4.0, stats.MaxBurst)
	assert.Equal(t, int64(1), stats.Scheduled)
}
