// Package monitor observes an Api's fetches and the job callbacks posted
// by the platform. It keeps a bounded, time-expiring buffer of both and
// serves them as SSE streams, an HTML dashboard and latency stats.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/maplink/internal/logging"
	"github.com/wesleyorama2/maplink/internal/metrics"
	"github.com/wesleyorama2/maplink/internal/rate"
	"github.com/wesleyorama2/maplink/pkg/api"
)

// Config configures a Monitor.
type Config struct {
	// MaxEvents bounds each buffer (fetches and callbacks).
	// Default: 500
	MaxEvents int

	// SpoilTime is how long events are kept.
	// Default: 2h
	SpoilTime time.Duration

	// PruneInterval is how often the janitor drops spoiled events.
	// Default: 1m
	PruneInterval time.Duration

	// Ignore lists fetch names that are never recorded.
	// Default: ["auth"], keeping access tokens off the dashboard.
	Ignore []string

	// CallbackUser and CallbackPassword, when set, are required as basic
	// auth on the callback route.
	CallbackUser     string
	CallbackPassword string
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		MaxEvents:     500,
		SpoilTime:     2 * time.Hour,
		PruneInterval: time.Minute,
		Ignore:        []string{"auth"},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	if c.SpoilTime <= 0 {
		c.SpoilTime = d.SpoilTime
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = d.PruneInterval
	}
	if c.Ignore == nil {
		c.Ignore = d.Ignore
	}
	return c
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor records fetch and callback events.
type Monitor struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
	stats  *Stats
	ignore map[string]bool

	mu          sync.Mutex
	events      []FetchEvent
	callbacks   []CallbackEvent
	seq         uint64
	subscribers map[uint64]chan FetchEvent
	listeners   map[uint64]func(CallbackEvent)
	order       []uint64

	offs    []func()
	watched *api.Api
}

// New creates a monitor. Call Watch to start recording an Api's fetches.
func New(cfg Config, opts ...Option) *Monitor {
	cfg = cfg.withDefaults()

	m := &Monitor{
		cfg:         cfg,
		logger:      logging.Nop(),
		now:         time.Now,
		stats:       NewStats(),
		ignore:      make(map[string]bool, len(cfg.Ignore)),
		subscribers: make(map[uint64]chan FetchEvent),
		listeners:   make(map[uint64]func(CallbackEvent)),
	}
	for _, name := range cfg.Ignore {
		m.ignore[name] = true
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Watch records every fetch that ends on a, or on any Api sharing its events.
func (m *Monitor) Watch(a *api.Api) {
	offStart := a.OnFetchStart(func(*api.Fetch) { metrics.FetchesInFlight.Inc() })
	offEnd := a.OnFetchEnd(func(f *api.Fetch) {
		metrics.FetchesInFlight.Dec()
		m.Record(f)
	})

	m.mu.Lock()
	m.offs = append(m.offs, offStart, offEnd)
	if m.watched == nil {
		m.watched = a
	}
	m.mu.Unlock()
}

// RateStats returns the rate limiter activity of the first watched Api.
// ok is false when nothing is watched or calls are not rate limited.
func (m *Monitor) RateStats() (stats rate.Stats, ok bool) {
	m.mu.Lock()
	a := m.watched
	m.mu.Unlock()

	if a == nil {
		return rate.Stats{}, false
	}
	return a.RateStats()
}

// Close stops watching and ends every open stream.
func (m *Monitor) Close() {
	m.mu.Lock()
	offs := m.offs
	m.offs = nil
	m.mu.Unlock()

	for _, off := range offs {
		off()
	}
	m.CloseStreams()
}

// CloseStreams ends every open stream. The monitor keeps recording.
func (m *Monitor) CloseStreams() {
	m.mu.Lock()
	subs := m.subscribers
	m.subscribers = make(map[uint64]chan FetchEvent)
	m.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
	metrics.MonitorSubscribers.Set(0)
}

// Record adds a completed fetch and forwards it to stream subscribers.
func (m *Monitor) Record(f *api.Fetch) {
	ev := NewFetchEvent(f)
	ev.Data.Timestamp = m.now()
	outcome := ev.Data.Response.Type

	metrics.RecordFetch(f.Name, requestMethod(f), outcome, f.Duration())

	if m.ignore[f.Name] {
		return
	}
	m.stats.Record(ev.Name, outcome, f.Duration())

	m.mu.Lock()
	m.events = append(m.events, ev)
	if over := len(m.events) - m.cfg.MaxEvents; over > 0 {
		m.events = append(m.events[:0:0], m.events[over:]...)
	}
	n := len(m.events)
	// Sends never block, and holding mu keeps Close from closing a
	// channel mid-send.
	dropped := 0
	for _, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	m.mu.Unlock()

	metrics.MonitorEvents.Set(float64(n))
	if dropped > 0 {
		m.logger.Warn().Str("event", ev.ID).Int("subscribers", dropped).Msg("slow stream subscribers, event dropped")
	}
}

func requestMethod(f *api.Fetch) string {
	if f.Request == nil {
		return ""
	}
	return f.Request.Method
}

// Events returns the buffered fetch events, oldest first.
func (m *Monitor) Events() []FetchEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FetchEvent(nil), m.events...)
}

// Callbacks returns the buffered callback events, oldest first.
func (m *Monitor) Callbacks() []CallbackEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CallbackEvent(nil), m.callbacks...)
}

// Stats returns the latency aggregate.
func (m *Monitor) Stats() *Stats { return m.stats }

// Subscribe returns a channel receiving every new fetch event, and a
// function that ends the subscription. The channel is closed by the
// cancel function or by Close.
func (m *Monitor) Subscribe() (<-chan FetchEvent, func()) {
	ch := make(chan FetchEvent, 32)

	m.mu.Lock()
	m.seq++
	id := m.seq
	m.subscribers[id] = ch
	n := len(m.subscribers)
	m.mu.Unlock()
	metrics.MonitorSubscribers.Set(float64(n))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			c, ok := m.subscribers[id]
			delete(m.subscribers, id)
			n := len(m.subscribers)
			m.mu.Unlock()
			if ok {
				close(c)
			}
			metrics.MonitorSubscribers.Set(float64(n))
		})
	}
}

// OnCallback registers fn for every callback received from now on.
// Listeners run in registration order on the receiving goroutine.
func (m *Monitor) OnCallback(fn func(CallbackEvent)) (off func()) {
	m.mu.Lock()
	id := m.addListenerLocked(fn)
	m.mu.Unlock()
	return m.remover(id)
}

func (m *Monitor) addListenerLocked(fn func(CallbackEvent)) uint64 {
	m.seq++
	id := m.seq
	m.listeners[id] = fn
	m.order = append(m.order, id)
	return id
}

func (m *Monitor) remover(id uint64) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.listeners, id)
			for i, x := range m.order {
				if x == id {
					m.order = append(m.order[:i:i], m.order[i+1:]...)
					break
				}
			}
		})
	}
}

// HandleCallback records a callback and dispatches it to listeners.
func (m *Monitor) HandleCallback(ev CallbackEvent) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = m.now()
	}
	metrics.RecordCallback(ev.Type)

	m.mu.Lock()
	m.callbacks = append(m.callbacks, ev)
	if over := len(m.callbacks) - m.cfg.MaxEvents; over > 0 {
		m.callbacks = append(m.callbacks[:0:0], m.callbacks[over:]...)
	}
	fns := make([]func(CallbackEvent), 0, len(m.order))
	for _, id := range m.order {
		fns = append(fns, m.listeners[id])
	}
	m.mu.Unlock()

	m.logger.Debug().
		Str("job_id", ev.JobID).
		Str("type", ev.Type).
		Str("description", ev.Description).
		Msg("callback received")

	for _, fn := range fns {
		fn(ev)
	}
}

// Await returns the first callback satisfying match. Callbacks already
// buffered are checked first, so a job that finished before Await was
// called is still seen.
func (m *Monitor) Await(ctx context.Context, match func(CallbackEvent) bool) (CallbackEvent, error) {
	found := make(chan CallbackEvent, 1)

	m.mu.Lock()
	for _, ev := range m.callbacks {
		if match(ev) {
			m.mu.Unlock()
			return ev, nil
		}
	}
	id := m.addListenerLocked(func(ev CallbackEvent) {
		if match(ev) {
			select {
			case found <- ev:
			default:
			}
		}
	})
	m.mu.Unlock()

	off := m.remover(id)
	defer off()

	select {
	case ev := <-found:
		return ev, nil
	case <-ctx.Done():
		return CallbackEvent{}, ctx.Err()
	}
}

// Prune drops events older than the spoil time and returns how many
// were removed.
func (m *Monitor) Prune() int {
	cutoff := m.now().Add(-m.cfg.SpoilTime)

	m.mu.Lock()
	before := len(m.events) + len(m.callbacks)

	events := m.events[:0:0]
	for _, ev := range m.events {
		if ev.Data.Timestamp.After(cutoff) {
			events = append(events, ev)
		}
	}
	m.events = events

	callbacks := m.callbacks[:0:0]
	for _, ev := range m.callbacks {
		if ev.ReceivedAt.After(cutoff) {
			callbacks = append(callbacks, ev)
		}
	}
	m.callbacks = callbacks

	removed := before - len(m.events) - len(m.callbacks)
	n := len(m.events)
	m.mu.Unlock()

	metrics.MonitorEvents.Set(float64(n))
	if removed > 0 {
		m.logger.Debug().Int("removed", removed).Msg("pruned spoiled events")
	}
	return removed
}
