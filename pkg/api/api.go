// Package api is the HTTP layer of the Maplink SDK.
//
// An Api holds a base URL and default request configuration and makes
// calls through a fetch lifecycle: every call gets a fetch id and a
// FetchContext, runs its before hooks, is sent, runs its after hooks,
// and emits lifecycle events along the way. Cloned Apis share hooks,
// events, the HTTP client and the rate limiter, but not configuration.
//
//	a, _ := api.New("https://api.maplink.global")
//	a.JoinEndpoint("/geocode/v1")
//	resp, err := a.Get(ctx, "suggestions", api.WithParam("q", "Av. Paulista"))
package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wesleyorama2/maplink/internal/logging"
	"github.com/wesleyorama2/maplink/internal/rate"
)

// Api makes HTTP calls relative to a base URL. It is safe for concurrent use.
type Api struct {
	mu     sync.RWMutex
	config Config

	transport transport
	emitter   *Emitter
	hooks     *HookManager
	logger    zerolog.Logger
}

// Option configures an Api at construction.
type Option func(*Api)

// WithDefaults sets the default configuration applied to every call.
func WithDefaults(d Defaults) Option {
	return func(a *Api) {
		a.config.Defaults = d.Clone()
	}
}

// WithHTTPClient sets the HTTP client used to send requests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Api) {
		if c != nil {
			a.transport.client = c
		}
	}
}

// WithTimeout sets the overall timeout of each request.
func WithTimeout(d time.Duration) Option {
	return func(a *Api) {
		c := *a.transport.client
		c.Timeout = d
		a.transport.client = &c
	}
}

// WithRateLimit limits the calls of the Api and its clones to rps per
// second, letting up to burst calls through back to back after an idle
// period. A burst below one spaces every call evenly.
func WithRateLimit(rps, burst float64) Option {
	return func(a *Api) {
		if rps > 0 {
			a.transport.limiter = rate.NewLimiterWithBurst(rps, burst)
		}
	}
}

// WithLogger sets the logger used for fetch and hook diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Api) {
		a.logger = l
	}
}

// New creates an Api for baseURL.
func New(baseURL string, opts ...Option) (*Api, error) {
	u, err := ParseURL(baseURL)
	if err != nil {
		return nil, err
	}

	emitter := NewEmitter()
	a := &Api{
		config: Config{
			BaseURL:  u,
			Defaults: Defaults{}.Clone(),
		},
		transport: transport{client: &http.Client{Timeout: 30 * time.Second}},
		emitter:   emitter,
		hooks:     NewHookManager(emitter),
		logger:    logging.Nop(),
	}

	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Get sends a GET request to path, relative to the base URL.
func (a *Api) Get(ctx context.Context, path string, opts ...FetchOption) (*Response, error) {
	return a.Do(ctx, http.MethodGet, path, nil, opts...)
}

// Delete sends a DELETE request.
func (a *Api) Delete(ctx context.Context, path string, opts ...FetchOption) (*Response, error) {
	return a.Do(ctx, http.MethodDelete, path, nil, opts...)
}

// Post sends a POST request with body.
func (a *Api) Post(ctx context.Context, path string, body any, opts ...FetchOption) (*Response, error) {
	return a.Do(ctx, http.MethodPost, path, body, opts...)
}

// Put sends a PUT request with body.
func (a *Api) Put(ctx context.Context, path string, body any, opts ...FetchOption) (*Response, error) {
	return a.Do(ctx, http.MethodPut, path, body, opts...)
}

// Patch sends a PATCH request with body.
func (a *Api) Patch(ctx context.Context, path string, body any, opts ...FetchOption) (*Response, error) {
	return a.Do(ctx, http.MethodPatch, path, body, opts...)
}

// Do runs one fetch. The returned error is non-nil only when no response
// was received; non-2xx responses are returned as they are. See Result
// for turning a response into a typed value.
func (a *Api) Do(ctx context.Context, method, path string, body any, opts ...FetchOption) (*Response, error) {
	var call RequestConfig
	for _, opt := range opts {
		opt(&call)
	}

	a.mu.RLock()
	cfg := a.config.Defaults.Merge(call)
	base := a.config.BaseURL.Clone()
	a.mu.RUnlock()

	if cfg.FetchID == "" {
		cfg.FetchID = uuid.NewString()
	}

	req, err := NewRequest(cfg.FetchID, method, base.JoinEndpoint(path), injectCallback(body, cfg.Callback), cfg.Headers, cfg.Params)
	if err != nil {
		return nil, err
	}

	fc := &FetchContext{
		FetchID: cfg.FetchID,
		Config:  cfg,
		Hooks:   a.resolveHooks(cfg),
		Emitter: a.emitter,
	}

	// Hooks log through logging.Ctx and get the fetch id attached. A
	// logger the caller stored in ctx wins over the Api's.
	ctx = ContextWith(ctx, fc)
	ctx = logging.ContextWithFetchID(ctx, fc.FetchID)
	if _, ok := logging.LoggerFromContext(ctx); !ok {
		ctx = logging.ContextWithLogger(ctx, a.logger)
	}

	return newFetch(fc.FetchID, cfg.Name, req).run(ctx, fc, a.transport, logging.Ctx(ctx, a.logger))
}

// resolveHooks orders hooks as instance, global, then per-call.
func (a *Api) resolveHooks(cfg RequestConfig) HookList {
	list := HookList{
		Before: a.hooks.BeforeFetch(a),
		After:  a.hooks.AfterFetch(a),
	}
	for _, fn := range cfg.before {
		list.Before = append(list.Before, NewHook(BeforeFetch, fn, a))
	}
	for _, fn := range cfg.after {
		list.After = append(list.After, NewHook(AfterFetch, fn, a))
	}
	return list
}

// Clone returns a new Api with a deep copy of the configuration. The
// clone shares hooks, events, the HTTP client and the rate limiter with a.
// Listeners of EventClone receive the new Api.
func (a *Api) Clone() *Api {
	a.mu.RLock()
	c := &Api{
		config:    a.config.Clone(),
		transport: a.transport,
		emitter:   a.emitter,
		hooks:     a.hooks,
		logger:    a.logger,
	}
	a.mu.RUnlock()

	a.emitter.Emit(EventClone, c)
	return c
}

// BaseURL returns a copy of the base URL.
func (a *Api) BaseURL() *URL {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.BaseURL.Clone()
}

// Defaults returns a copy of the default configuration.
func (a *Api) Defaults() Defaults {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Defaults.Clone()
}

// JoinEndpoint appends endpoint to the base URL path.
func (a *Api) JoinEndpoint(endpoint string) *Api {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.config.BaseURL.JoinEndpoint(endpoint)
	return a
}

// SetBearerToken sets "Authorization: Bearer <token>" on every call.
func (a *Api) SetBearerToken(token string) error {
	return a.setToken("Bearer", token)
}

// SetBasicToken sets "Authorization: Basic <base64(token)>" on every call.
func (a *Api) SetBasicToken(token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	return a.setToken("Basic", base64.StdEncoding.EncodeToString([]byte(token)))
}

func (a *Api) setToken(scheme, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}
	a.SetHeader("Authorization", scheme+" "+token)
	return nil
}

// SetHeader sets a default header.
func (a *Api) SetHeader(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.config.Defaults.Headers.Set(key, value)
}

// SetParam sets a default query parameter. The value is stringified.
func (a *Api) SetParam(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.config.Defaults.Params == nil {
		a.config.Defaults.Params = Params{}
	}
	a.config.Defaults.Params[key] = fmt.Sprint(value)
}

// SetName sets the default fetch name.
func (a *Api) SetName(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.config.Defaults.Name = name
}

// SetCallback sets the default callback injected into request bodies.
// A nil callback removes it.
func (a *Api) SetCallback(cb *Callback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cb == nil {
		a.config.Defaults.Callback = nil
		return
	}
	c := *cb
	a.config.Defaults.Callback = &c
}

// Logger returns the Api's logger.
func (a *Api) Logger() zerolog.Logger {
	return a.logger
}

// RateStats returns the activity of the rate limiter shared by a and its
// clones. ok is false when calls are not rate limited.
func (a *Api) RateStats() (stats rate.Stats, ok bool) {
	if a.transport.limiter == nil {
		return rate.Stats{}, false
	}
	return a.transport.limiter.Stats(), true
}

// Hooks returns the hook manager shared by a and its clones.
func (a *Api) Hooks() *HookManager {
	return a.hooks
}

// BeforeFetch registers a hook that runs before every call of a.
func (a *Api) BeforeFetch(fn HookFunc) *Hook {
	h := NewHook(BeforeFetch, fn, a)
	a.hooks.Append(h)
	return h
}

// AfterFetch registers a hook that runs after every call of a.
func (a *Api) AfterFetch(fn HookFunc) *Hook {
	h := NewHook(AfterFetch, fn, a)
	a.hooks.Append(h)
	return h
}

// OnClone registers a listener for clones of a or of any Api sharing its events.
func (a *Api) OnClone(fn func(*Api)) (off func()) {
	return a.emitter.On(EventClone, func(v any) { fn(v.(*Api)) })
}

// OnHookAppend registers a listener for hook registrations.
func (a *Api) OnHookAppend(fn func(*Hook)) (off func()) {
	return a.emitter.On(EventHookAppend, func(v any) { fn(v.(*Hook)) })
}

// OnHookRemove registers a listener for hook removals.
func (a *Api) OnHookRemove(fn func(*Hook)) (off func()) {
	return a.emitter.On(EventHookRemove, func(v any) { fn(v.(*Hook)) })
}

// OnRequest registers a listener receiving a clone of every sent request.
func (a *Api) OnRequest(fn func(*Request)) (off func()) {
	return a.emitter.On(EventRequest, func(v any) { fn(v.(*Request)) })
}

// OnResponse registers a listener receiving a clone of every response.
func (a *Api) OnResponse(fn func(*Response)) (off func()) {
	return a.emitter.On(EventResponse, func(v any) { fn(v.(*Response)) })
}

// OnFetchStart registers a listener called when a fetch begins.
func (a *Api) OnFetchStart(fn func(*Fetch)) (off func()) {
	return a.emitter.On(EventFetchStart, func(v any) { fn(v.(*Fetch)) })
}

// OnFetchEnd registers a listener called when a fetch is over, after its
// after hooks ran.
func (a *Api) OnFetchEnd(fn func(*Fetch)) (off func()) {
	return a.emitter.On(EventFetchEnd, func(v any) { fn(v.(*Fetch)) })
}
