// Package server is the SDK's webhook server. It receives job callbacks
// from the Maplink platform and serves the monitor's event streams and
// dashboard.
//
// Routes use ":name" path parameters and an optional trailing slash.
// Handlers return the value to send, or an error that becomes a 500.
//
//	s, _ := server.New(server.Config{Port: 3000})
//	s.Post("/callback", func(req *server.Request, res *server.Response) (any, error) {
//	    return map[string]bool{"received": true}, nil
//	})
//	go s.Serve(ctx)
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/wesleyorama2/maplink/internal/logging"
	"github.com/wesleyorama2/maplink/internal/metrics"
)

// Config configures the server.
type Config struct {
	// Port is the TCP port to listen on, 1 to 65535.
	Port int

	// PublicURL is the address the platform uses to reach this server.
	// Default: http://localhost:<port>/
	PublicURL string

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration
}

// HandlerFunc handles a matched route. A non-nil value is sent as the
// response body; an error is answered with 500 and {"error": "..."}.
type HandlerFunc func(req *Request, res *Response) (any, error)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server routes webhook and monitor requests.
type Server struct {
	cfg    Config
	router chi.Router
	logger zerolog.Logger

	mu      sync.Mutex
	ln      net.Listener
	onClose []func()
}

// New creates a server. It does not listen until Listen or Serve is called.
func New(cfg Config, opts ...Option) (*Server, error) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("server port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = fmt.Sprintf("http://localhost:%d/", cfg.Port)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{cfg: cfg, logger: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(allowMethods)
	r.Use(chimiddleware.StripSlashes)
	r.Use(s.instrument)
	// A known method on a path routed only for other methods is a miss.
	notFound := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)
	s.router = r

	return s, nil
}

// allowMethods answers 405 to any method a route cannot be registered for.
func allowMethods(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			next.ServeHTTP(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// Get registers a GET route.
func (s *Server) Get(pattern string, h HandlerFunc) { s.handle(http.MethodGet, pattern, h) }

// Post registers a POST route.
func (s *Server) Post(pattern string, h HandlerFunc) { s.handle(http.MethodPost, pattern, h) }

// Put registers a PUT route.
func (s *Server) Put(pattern string, h HandlerFunc) { s.handle(http.MethodPut, pattern, h) }

// Patch registers a PATCH route.
func (s *Server) Patch(pattern string, h HandlerFunc) { s.handle(http.MethodPatch, pattern, h) }

// Delete registers a DELETE route.
func (s *Server) Delete(pattern string, h HandlerFunc) { s.handle(http.MethodDelete, pattern, h) }

// Mount attaches a plain http.Handler, such as the Prometheus exporter.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Method(http.MethodGet, toChiPattern(pattern), h)
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler { return s.router }

// URL returns the public URL of the server.
func (s *Server) URL() string { return s.cfg.PublicURL }

// Port returns the configured port.
func (s *Server) Port() int { return s.cfg.Port }

// OnClose registers fn to run after the server shuts down.
func (s *Server) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Listen binds the server's port. Serve calls it if needed; calling it
// first surfaces "address in use" errors before any goroutine starts.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.cfg.Port, err)
	}
	s.ln = ln
	return nil
}

// Unlisten releases a port bound by Listen when Serve never ran.
func (s *Server) Unlisten() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	return err
}

// Serve runs the server until ctx is done, then shuts it down gracefully.
// It implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info().Str("url", s.cfg.PublicURL).Int("port", s.cfg.Port).Msg("server running")

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}

	s.mu.Lock()
	s.ln = nil
	hooks := append([]func(){}, s.onClose...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	s.logger.Info().Msg("server stopped")

	if serveErr != nil {
		return fmt.Errorf("server: %w", serveErr)
	}
	return nil
}

func (s *Server) String() string { return "server" }

func (s *Server) handle(method, pattern string, h HandlerFunc) {
	s.router.Method(method, toChiPattern(pattern), s.adapt(h))
}

func (s *Server) adapt(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := newRequest(w, r)
		res := newResponse(w, r)

		data, err := h(req, res)
		if err != nil {
			status := http.StatusInternalServerError
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			s.logger.Error().Err(err).Int("status", status).Str("method", r.Method).Str("path", r.URL.Path).Msg("handler failed")
			if !res.Written() {
				_ = res.Status(status).Send(map[string]string{"error": err.Error()})
			}
			return
		}
		if data != nil && !res.Written() {
			if err := res.Send(data); err != nil {
				s.logger.Error().Err(err).Msg("send response")
			}
		}
	}
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordServerRequest(r.Method, route, status, time.Since(start))
	})
}

var paramPattern = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// toChiPattern converts "/jobs/:id" into "/jobs/{id}".
func toChiPattern(p string) string {
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return paramPattern.ReplaceAllString(p, "{$1}")
}
