package monitor

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/wesleyorama2/maplink/internal/metrics"
	"github.com/wesleyorama2/maplink/internal/server"
	"github.com/wesleyorama2/maplink/pkg/jsonschema"
)

// Route paths served by Register.
const (
	RouteCallback   = "/callback"
	RouteStream     = "/fetch-stream"
	RouteStreamHTML = "/fetch-stream/html"
	RoutePage       = "/monitor"
	RouteStats      = "/monitor/stats"
	RouteRate       = "/monitor/rate"
	RouteMetrics    = "/metrics"
)

// Register adds the callback, stream, dashboard and metrics routes to s.
// Callbacks are accepted on both "/" and "/callback". Open streams end
// when the server stops.
func (m *Monitor) Register(s *server.Server) {
	s.Post("/", m.handleCallback)
	s.Post(RouteCallback, m.handleCallback)

	s.Get(RouteStream, m.handleStream(func(ev FetchEvent) (server.Event, error) {
		return server.Event{ID: ev.ID, Name: "fetch", Data: ev}, nil
	}))
	s.Get(RouteStreamHTML, m.handleStream(func(ev FetchEvent) (server.Event, error) {
		card, err := renderCard(ev)
		if err != nil {
			return server.Event{}, err
		}
		return server.Event{ID: ev.ID, Name: "fetch", Data: card}, nil
	}))

	s.Get(RoutePage, m.handlePage)
	s.Get(RouteStats, func(*server.Request, *server.Response) (any, error) {
		return m.stats.Snapshot(), nil
	})
	s.Get(RouteRate, func(_ *server.Request, res *server.Response) (any, error) {
		stats, ok := m.RateStats()
		if !ok {
			return nil, res.Status(http.StatusNotFound).Send(nil)
		}
		return stats, nil
	})
	s.Mount(RouteMetrics, metrics.Handler())

	s.OnClose(m.CloseStreams)
}

func (m *Monitor) handleCallback(req *server.Request, res *server.Response) (any, error) {
	if !m.authorized(req) {
		metrics.CallbacksRejected.Inc()
		res.SetHeader("WWW-Authenticate", `Basic realm="maplink"`)
		return nil, res.Status(http.StatusUnauthorized).Send(nil)
	}

	body, err := req.Body()
	if err != nil {
		return nil, err
	}

	if err := callbackSchema.Validate(body); err != nil {
		metrics.CallbacksRejected.Inc()
		m.logger.Warn().Err(err).Msg("invalid callback")
		return nil, res.Status(http.StatusBadRequest).Send(map[string]any{
			"error":   "invalid callback",
			"details": details(err),
		})
	}

	var ev CallbackEvent
	if err := req.Decode(&ev); err != nil {
		return nil, err
	}
	ev.ReceivedAt = m.now()
	m.HandleCallback(ev)

	return map[string]bool{"received": true}, nil
}

func details(err error) []string {
	var verrs jsonschema.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, e.Error())
	}
	return out
}

func (m *Monitor) authorized(req *server.Request) bool {
	if m.cfg.CallbackUser == "" && m.cfg.CallbackPassword == "" {
		return true
	}
	user, pass, ok := (&http.Request{Header: req.Headers()}).BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(m.cfg.CallbackUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(m.cfg.CallbackPassword)) == 1
	return userOK && passOK
}

// handleStream replays the buffered events, then pushes new ones until the
// client disconnects or the monitor closes.
func (m *Monitor) handleStream(toEvent func(FetchEvent) (server.Event, error)) server.HandlerFunc {
	return func(req *server.Request, res *server.Response) (any, error) {
		ch, cancel := m.Subscribe()
		defer cancel()

		push := func(ev FetchEvent) error {
			sse, err := toEvent(ev)
			if err != nil {
				return err
			}
			return res.Push(sse)
		}

		if err := res.Push(server.Event{Name: "ready"}); err != nil {
			return nil, err
		}
		replayed := make(map[string]bool)
		for _, ev := range m.Events() {
			replayed[ev.ID] = true
			if err := push(ev); err != nil {
				return nil, err
			}
		}

		for {
			select {
			case <-res.Done():
				return nil, nil
			case ev, ok := <-ch:
				if !ok {
					return nil, nil
				}
				if replayed[ev.ID] {
					continue
				}
				if err := push(ev); err != nil {
					m.logger.Debug().Err(err).Str("endpoint", req.Endpoint()).Msg("stream closed")
					return nil, nil
				}
			}
		}
	}
}

func (m *Monitor) handlePage(_ *server.Request, res *server.Response) (any, error) {
	page, err := renderPage(RouteStreamHTML, m.stats.Snapshot(), m.Callbacks(), m.Events())
	if err != nil {
		return nil, err
	}
	res.SetHeader("Content-Type", "text/html; charset=utf-8")
	return page, nil
}
