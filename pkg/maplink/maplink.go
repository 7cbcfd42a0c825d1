// Package maplink is the entry point of the Maplink SDK. An SDK owns the
// base Api, the token lifecycle, the optional webhook server with its
// monitor, and the product modules built on clones of the base Api.
//
//	sdk, err := maplink.New(maplink.Config{
//		ClientID:     id,
//		ClientSecret: secret,
//		Modules:      []string{"geocode", "trip"},
//	})
//	if err != nil { ... }
//	defer sdk.Close()
//	if err := sdk.Init(ctx); err != nil { ... }
//	g, _ := sdk.Geocode()
package maplink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/maplink/internal/auth"
	"github.com/wesleyorama2/maplink/internal/logging"
	"github.com/wesleyorama2/maplink/internal/monitor"
	"github.com/wesleyorama2/maplink/internal/server"
	"github.com/wesleyorama2/maplink/internal/supervisor"
	"github.com/wesleyorama2/maplink/pkg/api"
	"github.com/wesleyorama2/maplink/pkg/geocode"
	"github.com/wesleyorama2/maplink/pkg/module"
	"github.com/wesleyorama2/maplink/pkg/planning"
	"github.com/wesleyorama2/maplink/pkg/trip"
)

var (
	// ErrModuleNotLoaded is returned by a module accessor when the module
	// is not in Config.Modules.
	ErrModuleNotLoaded = errors.New("maplink: module not loaded")

	// ErrClosed is returned by Init after Close.
	ErrClosed = errors.New("maplink: sdk is closed")
)

type factory func(module.Scope) (module.Module, error)

var registry = map[string]factory{
	geocode.Metadata.Name:  func(s module.Scope) (module.Module, error) { return geocode.New(s) },
	planning.Metadata.Name: func(s module.Scope) (module.Module, error) { return planning.New(s) },
	trip.Metadata.Name:     func(s module.Scope) (module.Module, error) { return trip.New(s) },
}

// SDK is a configured Maplink client.
type SDK struct {
	cfg     Config
	logger  zerolog.Logger
	api     *api.Api
	auth    *auth.Auth
	monitor *monitor.Monitor
	server  *server.Server
	modules map[string]module.Module
	order   []string

	mu          sync.Mutex
	initialized bool
	closed      bool
	sup         *supervisor.Supervisor
	cancel      context.CancelFunc
	done        <-chan error
}

// New validates cfg and builds the SDK. Nothing touches the network until
// Init, or until the first call when LazyInit is set.
func New(cfg Config) (*SDK, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	s := &SDK{
		cfg:     cfg,
		logger:  logging.Nop(),
		modules: make(map[string]module.Module, len(cfg.Modules)),
	}
	if cfg.EnableLogger {
		s.logger = logging.New(logging.Config{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			Output: cfg.LogOutput,
		})
	}

	opts := []api.Option{
		api.WithLogger(logging.Component(s.logger, "api")),
		api.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, api.WithTimeout(cfg.Timeout))
	}
	base, err := api.New(cfg.BaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("maplink: %w", err)
	}
	base.SetName("sdk")
	s.api = base

	s.monitor = monitor.New(cfg.Monitor, monitor.WithLogger(logging.Component(s.logger, "monitor")))
	s.monitor.Watch(base)

	s.auth, err = auth.New(base, auth.Config{
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		RefreshInterval: cfg.refreshInterval(),
	}, auth.WithLogger(logging.Component(s.logger, "auth")))
	if err != nil {
		s.monitor.Close()
		return nil, fmt.Errorf("maplink: %w", err)
	}

	var callback *api.Callback
	var callbacks module.Callbacks
	if cfg.ServerPort > 0 {
		s.server, err = server.New(server.Config{
			Port:      cfg.ServerPort,
			PublicURL: cfg.PublicURL,
		}, server.WithLogger(logging.Component(s.logger, "server")))
		if err != nil {
			s.teardown()
			return nil, fmt.Errorf("maplink: %w", err)
		}
		s.monitor.Register(s.server)

		target, err := url.JoinPath(s.server.URL(), monitor.RouteCallback)
		if err != nil {
			s.teardown()
			return nil, fmt.Errorf("maplink: public url: %w", err)
		}
		callback = &api.Callback{
			URL:      target,
			User:     cfg.Monitor.CallbackUser,
			Password: cfg.Monitor.CallbackPassword,
		}
		callbacks = s.monitor
	}

	for _, name := range cfg.Modules {
		m, err := registry[name](module.Scope{
			API:       base.Clone(),
			Logger:    logging.Component(s.logger, name),
			Callback:  callback,
			Callbacks: callbacks,
		})
		if err != nil {
			s.teardown()
			return nil, fmt.Errorf("maplink: load %s: %w", name, err)
		}
		s.modules[name] = m
		s.order = append(s.order, name)
		s.logger.Debug().Str("module", name).Msg("module loaded")
	}

	if cfg.LazyInit {
		s.installLazyInit()
	}
	return s, nil
}

// installLazyInit adds a global before hook that initializes the SDK on
// the first module call and stamps the fresh token on that call. The
// token fetch itself passes through untouched.
func (s *SDK) installLazyInit() {
	var hook *api.Hook
	hook = s.api.BeforeFetch(func(ctx context.Context, f *api.Fetch) error {
		if f.Name == auth.FetchName {
			return nil
		}
		if err := s.Init(ctx); err != nil {
			return err
		}
		hook.Disable()
		if tok := s.auth.Token(); tok.Valid() {
			f.Request.Headers.Set("Authorization", "Bearer "+tok.Value())
		}
		return nil
	}).Global()
}

// Init fetches the first token, binds the webhook server's port, then
// starts the background services. It is idempotent.
func (s *SDK) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.initialized {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.auth.Init(gctx)
		return err
	})
	if s.server != nil {
		g.Go(s.server.Listen)
	}
	if err := g.Wait(); err != nil {
		if s.server != nil {
			_ = s.server.Unlisten()
		}
		return fmt.Errorf("maplink: init: %w", err)
	}

	sup := supervisor.New("maplink", supervisor.Config{}, logging.Component(s.logger, "supervisor"))
	sup.Add(s.auth)
	sup.Add(s.monitor.Janitor())
	if s.server != nil {
		sup.Add(s.server)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.sup = sup
	s.cancel = cancel
	s.done = sup.ServeBackground(runCtx)
	s.initialized = true

	s.logger.Info().Strs("modules", s.order).Msg("sdk initialized")
	return nil
}

// Close stops the background services and the monitor. The SDK cannot
// be initialized again.
func (s *SDK) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done, sup := s.cancel, s.done, s.sup
	s.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		if serr := <-done; serr != nil && !errors.Is(serr, context.Canceled) {
			err = fmt.Errorf("maplink: close: %w", serr)
		}
		sup.LogUnstopped()
	}
	s.teardown()
	return err
}

func (s *SDK) teardown() {
	if s.server != nil {
		_ = s.server.Unlisten()
	}
	if s.auth != nil {
		s.auth.Close()
	}
	s.monitor.Close()
}

// Api returns the base Api. Its clones share hooks and events with the
// modules.
func (s *SDK) Api() *api.Api { return s.api }

// Monitor returns the fetch and callback monitor.
func (s *SDK) Monitor() *monitor.Monitor { return s.monitor }

// Token returns the current access token.
func (s *SDK) Token() *auth.Token { return s.auth.Token() }

// Server returns the webhook server, or nil when ServerPort is zero.
func (s *SDK) Server() *server.Server { return s.server }

// Modules returns the metadata of the loaded modules in load order.
func (s *SDK) Modules() []module.Metadata {
	out := make([]module.Metadata, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.modules[name].Metadata())
	}
	return out
}

// Geocode returns the geocode module.
func (s *SDK) Geocode() (*geocode.Geocode, error) {
	return loaded[*geocode.Geocode](s, geocode.Metadata.Name)
}

// Planning returns the planning module.
func (s *SDK) Planning() (*planning.Planning, error) {
	return loaded[*planning.Planning](s, planning.Metadata.Name)
}

// Trip returns the trip module.
func (s *SDK) Trip() (*trip.Trip, error) {
	return loaded[*trip.Trip](s, trip.Metadata.Name)
}

func loaded[T module.Module](s *SDK, name string) (T, error) {
	m, ok := s.modules[name].(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrModuleNotLoaded, name)
	}
	return m, nil
}
