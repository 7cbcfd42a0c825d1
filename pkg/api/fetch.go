package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/maplink/internal/rate"
)

// transport is what an Api shares with its clones for sending requests.
type transport struct {
	client  *http.Client
	limiter *rate.Limiter
}

// Timing breaks down where the time of a fetch went.
type Timing struct {
	DNSLookup       time.Duration `json:"dnsLookup"`
	TCPConnect      time.Duration `json:"tcpConnect"`
	TLSHandshake    time.Duration `json:"tlsHandshake"`
	TimeToFirstByte time.Duration `json:"timeToFirstByte"`
	ContentTransfer time.Duration `json:"contentTransfer"`
	Total           time.Duration `json:"total"`
}

// Fetch is one call made through an Api, from its before hooks to its
// after hooks. Hooks receive the *Fetch and may inspect or change it.
type Fetch struct {
	ID       string
	Name     string
	Request  *Request
	Response *Response
	Err      error
	Timing   Timing

	mu    sync.Mutex
	tag   string
	start time.Time
	end   time.Time
}

func newFetch(id, name string, req *Request) *Fetch {
	return &Fetch{ID: id, Name: name, Request: req}
}

// Tag returns the fetch tag. Domain modules tag fetches with the id of
// the job they created.
func (f *Fetch) Tag() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tag
}

// SetTag sets the fetch tag.
func (f *Fetch) SetTag(tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tag = tag
}

// Started returns when the request was sent.
func (f *Fetch) Started() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.start
}

// Duration is the time between sending the request and receiving the
// full response. It is zero until the fetch completes.
func (f *Fetch) Duration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.start.IsZero() || f.end.IsZero() {
		return 0
	}
	return f.end.Sub(f.start)
}

func (f *Fetch) markStart() {
	f.mu.Lock()
	f.start = time.Now()
	f.mu.Unlock()
}

func (f *Fetch) markEnd() {
	f.mu.Lock()
	f.end = time.Now()
	f.mu.Unlock()
}

// run drives the fetch lifecycle: fetchStart, before hooks, send,
// after hooks, fetchEnd. Transport failures still reach the after hooks.
func (f *Fetch) run(ctx context.Context, fc *FetchContext, t transport, log zerolog.Logger) (*Response, error) {
	fc.Emitter.Emit(EventFetchStart, f)

	runHooks(ctx, log, BeforeFetch, fc.Hooks.Before, f)

	resp, err := f.send(ctx, fc, t)
	f.Response, f.Err = resp, err

	if err != nil {
		log.Debug().Err(err).Str("method", f.Request.Method).Str("url", f.Request.URL.String()).Msg("fetch failed")
	} else {
		log.Debug().
			Str("method", f.Request.Method).
			Str("url", f.Request.URL.String()).
			Int("status", resp.StatusCode).
			Dur("duration", f.Duration()).
			Msg("fetch completed")
	}

	runHooks(ctx, log, AfterFetch, fc.Hooks.After, f)

	fc.Emitter.Emit(EventFetchEnd, f)
	return resp, err
}

func (f *Fetch) send(ctx context.Context, fc *FetchContext, t transport) (*Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	httpReq, err := f.Request.Build(ctx)
	if err != nil {
		return nil, err
	}

	clock := &phaseClock{}
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), clock.trace()))

	f.markStart()
	clock.begin(f.Started())
	fc.Emitter.Emit(EventRequest, f.Request.Clone())

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		f.markEnd()
		return nil, fmt.Errorf("%s %s: %w", f.Request.Method, f.Request.URL, err)
	}
	defer httpResp.Body.Close()

	transferStart := time.Now()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		f.markEnd()
		return nil, fmt.Errorf("read response body: %w", err)
	}
	transfer := time.Since(transferStart)

	resp := NewResponse(f.ID, httpResp.StatusCode, httpResp.Status, httpResp.Header, body)
	resp.Request = f.Request.Clone()

	f.markEnd()
	f.Timing = clock.finish(transfer, f.Duration())

	fc.Emitter.Emit(EventResponse, resp.Clone())
	return resp, nil
}

// runHooks executes hooks in order. A failing or panicking hook is
// logged and the rest still run.
func runHooks(ctx context.Context, log zerolog.Logger, moment Moment, hooks []*Hook, f *Fetch) {
	for _, h := range hooks {
		if err := executeHook(ctx, h, f); err != nil {
			log.Warn().Err(err).Str("hook", h.ID()).Str("moment", moment.String()).Msg("hook failed")
		}
	}
}

func executeHook(ctx context.Context, h *Hook, f *Fetch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return h.Execute(ctx, f)
}

// phaseClock collects the httptrace phases of one request. Trace
// callbacks may run on transport goroutines; mu guards every field.
type phaseClock struct {
	mu           sync.Mutex
	timing       Timing
	dnsStart     time.Time
	connectStart time.Time
	tlsStart     time.Time
	lastPhaseEnd time.Time
}

func (c *phaseClock) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) { c.set(&c.dnsStart) },
		DNSDone: func(httptrace.DNSDoneInfo) {
			c.phaseDone(&c.timing.DNSLookup, &c.dnsStart)
		},
		ConnectStart: func(string, string) { c.set(&c.connectStart) },
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				c.phaseDone(&c.timing.TCPConnect, &c.connectStart)
			}
		},
		TLSHandshakeStart: func() { c.set(&c.tlsStart) },
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				c.phaseDone(&c.timing.TLSHandshake, &c.tlsStart)
			}
		},
		GotFirstResponseByte: func() {
			c.mu.Lock()
			c.timing.TimeToFirstByte = time.Since(c.lastPhaseEnd)
			c.mu.Unlock()
		},
	}
}

func (c *phaseClock) begin(t time.Time) {
	c.mu.Lock()
	c.lastPhaseEnd = t
	c.mu.Unlock()
}

func (c *phaseClock) set(t *time.Time) {
	c.mu.Lock()
	*t = time.Now()
	c.mu.Unlock()
}

func (c *phaseClock) phaseDone(d *time.Duration, start *time.Time) {
	c.mu.Lock()
	c.lastPhaseEnd = time.Now()
	*d = c.lastPhaseEnd.Sub(*start)
	c.mu.Unlock()
}

// finish returns the collected timing with the transfer and total set.
func (c *phaseClock) finish(transfer, total time.Duration) Timing {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.timing
	t.ContentTransfer = transfer
	t.Total = total
	return t
}
