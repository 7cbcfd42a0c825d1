package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/maplink/internal/auth"
)

type call struct {
	Method string
	Path   string
	Query  map[string][]string
	Auth   string
	Body   string
}

type platform struct {
	*httptest.Server

	mu    sync.Mutex
	calls []call
}

func newPlatform(t *testing.T) *platform {
	t.Helper()
	p := &platform{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == auth.Endpoint {
			_, _ = w.Write([]byte(`{"access_token":"token-1"}`))
			return
		}

		body, _ := io.ReadAll(r.Body)
		p.mu.Lock()
		p.calls = append(p.calls, call{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		p.mu.Unlock()

		switch {
		case r.URL.Path == "/geocode/v1/suggestions":
			_, _ = w.Write([]byte(`{"found":1,"results":[{"id":"1","label":"Avenida Paulista, 1000"}]}`))
		case r.URL.Path == "/trip/v2/calculations":
			_, _ = w.Write([]byte(`{"id":"calc-1","totalDistance":1200}`))
		case strings.HasPrefix(r.URL.Path, "/planning/v1/jobs/"):
			_, _ = w.Write([]byte(`{"jobId":"job-9","type":"STATUS_CHANGE","description":"SOLVED"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
		}
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *platform) recorded() []call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]call(nil), p.calls...)
}

// syncBuffer is written by server goroutines while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeConfig(t *testing.T, p *platform, extra string) string {
	t.Helper()
	return writeFile(t, "maplink.yaml", fmt.Sprintf("client_id: id\nclient_secret: secret\nbase_url: %s\n%s", p.URL, extra))
}

// resetFlags restores every flag to its default, since the commands are
// package level and keep their values between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	resetFlags(RootCmd)
	RootCmd.SetOut(stdout)
	RootCmd.SetErr(stderr)
	RootCmd.SetArgs(args)
	return RootCmd.ExecuteContext(ctx)
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), &stdout, &stderr, args...)
	return stdout.String(), stderr.String(), err
}

func TestGeocodeSearch(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "")

	stdout, _, err := runCLI(t, "--config", cfg, "-o", "json", "geocode", "search", "Avenida", "Paulista")
	require.NoError(t, err)

	var got struct {
		Found   int `json:"found"`
		Results []struct {
			Label string `json:"label"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, 1, got.Found)
	assert.Equal(t, "Avenida Paulista, 1000", got.Results[0].Label)

	calls := p.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "GET", calls[0].Method)
	assert.Equal(t, []string{"Avenida Paulista"}, calls[0].Query["q"])
	assert.Equal(t, []string{"false"}, calls[0].Query["globalSearch"])
	assert.Equal(t, "Bearer token-1", calls[0].Auth)
}

func TestGeocodeSearch_Verbose(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "")

	_, stderr, err := runCLI(t, "--config", cfg, "-v", "geocode", "search", "--global", "Lisboa")
	require.NoError(t, err)

	assert.Contains(t, stderr, "[geocode] GET "+p.URL+"/geocode/v1/suggestions")
	assert.Contains(t, stderr, "◀ 200 OK")
	assert.NotContains(t, stderr, "[auth]")
	assert.Equal(t, []string{"true"}, p.recorded()[0].Query["globalSearch"])
}

func TestGeocodeSearch_NeedsQueryOrFile(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "")

	_, _, err := runCLI(t, "--config", cfg, "geocode", "search")
	assert.EqualError(t, err, "give either a query or --file")
	assert.Empty(t, p.recorded())
}

func TestTripCalculate(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "")
	req := writeFile(t, "trip.yaml", `
calculationMode: "{{MODE}}"
points:
  - {latitude: -23.5, longitude: -46.6}
  - {latitude: -23.6, longitude: -46.7}
`)

	stdout, _, err := runCLI(t, "--config", cfg, "-o", "yaml", "--var", "MODE=THE_SHORTEST",
		"trip", "calculate", "--file", req, "--points-mode", "polyline")
	require.NoError(t, err)
	assert.Contains(t, stdout, "totalDistance: 1200")

	calls := p.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "POST", calls[0].Method)
	assert.Equal(t, []string{"polyline"}, calls[0].Query["pointsMode"])
	assert.JSONEq(t,
		`{"calculationMode":"THE_SHORTEST","points":[{"latitude":-23.5,"longitude":-46.6},{"latitude":-23.6,"longitude":-46.7}]}`,
		calls[0].Body)
}

func TestTripCalculate_ConfigVariables(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "variables:\n  MODE: THE_FASTEST\n")
	req := writeFile(t, "trip.yaml", "calculationMode: \"{{MODE}}\"\npoints: [{latitude: 1, longitude: 2}, {latitude: 3, longitude: 4}]\n")

	_, _, err := runCLI(t, "--config", cfg, "trip", "calculate", "--file", req)
	require.NoError(t, err)
	_, _, err = runCLI(t, "--config", cfg, "--var", "MODE=THE_SHORTEST", "trip", "calculate", "--file", req)
	require.NoError(t, err)

	calls := p.recorded()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Body, `"calculationMode":"THE_FASTEST"`)
	assert.Contains(t, calls[1].Body, `"calculationMode":"THE_SHORTEST"`)
}

func TestTripCalculate_Errors(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "")
	req := writeFile(t, "trip.yaml", "calculationMode: THE_FASTEST\npoints: []\n")

	_, _, err := runCLI(t, "--config", cfg, "trip", "calculate", "--file", req, "--points-mode", "bogus")
	assert.ErrorContains(t, err, "bogus")

	_, _, err = runCLI(t, "--config", cfg, "trip", "calculate")
	assert.EqualError(t, err, "--file is required")

	_, _, err = runCLI(t, "--config", cfg, "trip", "calculate", "--file", req)
	assert.ErrorContains(t, err, "points")

	assert.Empty(t, p.recorded())
}

func TestPlanningStatus(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "")

	stdout, _, err := runCLI(t, "--config", cfg, "-o", "json", "planning", "status", "job-9")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"jobId":"job-9"`)
	assert.Contains(t, stdout, `"description":"SOLVED"`)
	assert.Equal(t, "/planning/v1/jobs/job-9", p.recorded()[0].Path)
}

func TestPlanningSubmit_WaitNeedsServer(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "")
	problem := writeFile(t, "problem.yaml", "name: p\n")

	_, _, err := runCLI(t, "--config", cfg, "planning", "submit", "--file", problem, "--wait")
	assert.ErrorContains(t, err, "--wait needs the webhook server")
	assert.Empty(t, p.recorded())
}

func TestToken(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "")

	stdout, _, err := runCLI(t, "--config", cfg, "-o", "json", "token")
	require.NoError(t, err)

	var got struct {
		AccessToken string    `json:"accessToken"`
		ExpiresAt   time.Time `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "token-1", got.AccessToken)
	assert.True(t, got.ExpiresAt.After(time.Now()))
}

func TestModules(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "modules: [trip, geocode]\n")

	stdout, _, err := runCLI(t, "--config", cfg, "-o", "json", "modules")
	require.NoError(t, err)

	var got []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "trip", got[0].Name)
	assert.Equal(t, "geocode", got[1].Name)

	_, _, err = runCLI(t, "--config", cfg, "planning", "status", "job-1")
	assert.ErrorContains(t, err, "module not loaded")
}

func TestOutputFormatFlag(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "")

	_, _, err := runCLI(t, "--config", cfg, "-o", "xml", "modules")
	assert.ErrorContains(t, err, `unknown output format "xml"`)
}

func TestServe(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- execute(ctx, stdout, stderr, "--config", cfg, "serve", "--port", fmt.Sprint(port))
	}()

	callbackURL := fmt.Sprintf("http://127.0.0.1:%d/callback", port)
	require.Eventually(t, func() bool {
		resp, err := http.Post(callbackURL, "application/json",
			strings.NewReader(`{"jobId":"job-1","type":"STATUS_CHANGE","description":"SOLVED"}`))
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "job=job-1 STATUS_CHANGE SOLVED")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, stderr.String(), fmt.Sprintf("listening on port %d", port))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_NeedsPort(t *testing.T) {
	p := newPlatform(t)
	cfg := writeConfig(t, p, "")

	_, _, err := runCLI(t, "--config", cfg, "serve")
	assert.EqualError(t, err, "no server port: set server.port or --port")
}
