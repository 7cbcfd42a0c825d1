// Package supervisor runs the SDK's background services (webhook server,
// token refresher, monitor janitor) under a suture supervisor that logs
// its events with zerolog.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// Config holds the restart policy.
type Config struct {
	// FailureThreshold is the number of failures before backing off.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay, in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is how long to wait once the threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long each service gets to stop.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultConfig returns suture's own defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Supervisor is a named suture supervisor.
type Supervisor struct {
	root   *suture.Supervisor
	logger zerolog.Logger
}

// New creates a supervisor. Zero config fields take their defaults.
//
//nolint:gocritic // zerolog.Logger is passed by value
func New(name string, cfg Config, logger zerolog.Logger) *Supervisor {
	def := DefaultConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	return &Supervisor{
		root: suture.New(name, suture.Spec{
			EventHook:        EventHook(logger),
			FailureThreshold: cfg.FailureThreshold,
			FailureDecay:     cfg.FailureDecay,
			FailureBackoff:   cfg.FailureBackoff,
			Timeout:          cfg.ShutdownTimeout,
		}),
		logger: logger,
	}
}

// Add starts supervising svc.
func (s *Supervisor) Add(svc suture.Service) suture.ServiceToken {
	s.logger.Debug().Str("service", serviceName(svc)).Msg("service added")
	return s.root.Add(svc)
}

// Serve blocks until ctx is done.
func (s *Supervisor) Serve(ctx context.Context) error {
	return s.root.Serve(ctx)
}

// ServeBackground runs the supervisor in a goroutine. The channel yields
// its result once ctx is done and every service stopped.
func (s *Supervisor) ServeBackground(ctx context.Context) <-chan error {
	return s.root.ServeBackground(ctx)
}

// LogUnstopped logs every service that missed the shutdown timeout and
// returns their names. It blocks until the supervisor has stopped, so
// call it once the ServeBackground channel has yielded.
func (s *Supervisor) LogUnstopped() []string {
	report, err := s.root.UnstoppedServiceReport()
	if err != nil {
		s.logger.Warn().Err(err).Msg("unstopped service report unavailable")
		return nil
	}
	if len(report) == 0 {
		return nil
	}

	names := make([]string, 0, len(report))
	s.logger.Warn().Int("count", len(report)).Msg("services failed to stop within timeout")
	for _, u := range report {
		s.logger.Warn().Str("service", u.Name).Msg("service failed to stop")
		names = append(names, u.Name)
	}
	return names
}

// EventHook logs suture events: panics and backoffs as errors, restarts
// as warnings, the rest as info.
//
//nolint:gocritic // zerolog.Logger is passed by value
func EventHook(logger zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		var ev *zerolog.Event
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeBackoff, suture.EventTypeStopTimeout:
			ev = logger.Error()
		case suture.EventTypeServiceTerminate:
			ev = logger.Warn()
		default:
			ev = logger.Info()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}

func serviceName(svc suture.Service) string {
	if s, ok := svc.(interface{ String() string }); ok {
		return s.String()
	}
	return "service"
}
