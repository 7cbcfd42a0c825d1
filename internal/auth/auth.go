// Package auth obtains OAuth client-credential tokens from the Maplink
// platform and keeps every module's Api stamped with a valid one.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/wesleyorama2/maplink/internal/logging"
	"github.com/wesleyorama2/maplink/internal/metrics"
	"github.com/wesleyorama2/maplink/pkg/api"
)

// Endpoint is the token endpoint, relative to the platform base URL.
const Endpoint = "/oauth/client_credential/accesstoken"

// FetchName names token fetches; the monitor never records them.
const FetchName = "auth"

// Defaults.
const (
	DefaultRefreshInterval = 30 * time.Minute
	DefaultMaxAttempts     = 50
	DefaultRetryDelay      = 3 * time.Second
)

// ErrMaxAttempts is returned when no token could be obtained.
var ErrMaxAttempts = errors.New("maximum attempts to get the token reached")

// Config configures an Auth.
type Config struct {
	ClientID     string
	ClientSecret string

	// RefreshInterval is both the token lifetime and the refresh period.
	RefreshInterval time.Duration

	MaxAttempts int
	RetryDelay  time.Duration
}

// Option configures an Auth.
type Option func(*Auth)

// WithLogger sets the auth logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Auth) { a.logger = l }
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
}

// Auth fetches tokens and pushes them to the registered Apis.
type Auth struct {
	cfg    Config
	api    *api.Api
	token  *Token
	logger zerolog.Logger
	form   url.Values

	mu      sync.Mutex
	apis    []*api.Api
	offs    []func()
	refresh sync.Mutex
}

// New creates an Auth that posts credentials through a clone of base.
// Every later clone of base, or of any Api sharing its events, receives
// the token.
func New(base *api.Api, cfg Config, opts ...Option) (*Auth, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("auth: client id and client secret are required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	a := &Auth{
		cfg:    cfg,
		api:    base.Clone(),
		token:  NewToken(cfg.RefreshInterval),
		logger: logging.Nop(),
		form: url.Values{
			"client_id":     {cfg.ClientID},
			"client_secret": {cfg.ClientSecret},
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	a.api.SetName(FetchName)
	a.token.OnUpdate(func(string) { a.pushToken() })

	off := a.api.OnClone(func(c *api.Api) {
		a.AppendApi(c)
		if a.token.Valid() {
			_ = c.SetBearerToken(a.token.Value())
		}
	})
	a.offs = append(a.offs, off)

	return a, nil
}

// Token returns the current token.
func (a *Auth) Token() *Token { return a.token }

// AppendApi adds an Api to the list receiving new tokens.
func (a *Auth) AppendApi(c *api.Api) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apis = append(a.apis, c)
}

// Init fetches the first token.
func (a *Auth) Init(ctx context.Context) (string, error) {
	a.logger.Info().Msg("starting module")
	return a.RefreshToken(ctx)
}

// RefreshToken pushes the current token again when it is still valid and
// fetches a new one otherwise.
func (a *Auth) RefreshToken(ctx context.Context) (string, error) {
	a.refresh.Lock()
	defer a.refresh.Unlock()

	if a.token.Valid() {
		metrics.TokenRefreshTotal.WithLabelValues("reused").Inc()
		a.pushToken()
		return a.token.Value(), nil
	}

	value, err := a.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	if err := a.token.Set(value); err != nil {
		return "", err
	}
	return value, nil
}

func (a *Auth) fetchToken(ctx context.Context) (string, error) {
	attempt := 0
	op := func() (string, error) {
		attempt++
		out, err := api.Result[tokenResponse](a.api.Post(ctx, Endpoint, a.form,
			api.WithParam("grant_type", "client_credentials"),
			api.WithHeader("Content-Type", "application/x-www-form-urlencoded"),
		))
		if err != nil {
			return "", err
		}
		if out.AccessToken == "" {
			return "", api.ErrEmptyToken
		}
		return out.AccessToken, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.cfg.RetryDelay), uint64(a.cfg.MaxAttempts-1)),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		metrics.TokenRefreshTotal.WithLabelValues("retry").Inc()
		a.logger.Error().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("token request failed, retrying")
	}

	value, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("failure").Inc()
		if ctx.Err() != nil {
			return "", fmt.Errorf("get token: %w", ctx.Err())
		}
		a.logger.Warn().Int("attempts", attempt).Msg("max attempts to get a new token reached, services will not be available")
		return "", fmt.Errorf("%w: %w", ErrMaxAttempts, err)
	}

	metrics.TokenRefreshTotal.WithLabelValues("success").Inc()
	return value, nil
}

func (a *Auth) pushToken() {
	value := a.token.Value()
	if value == "" {
		a.logger.Warn().Msg("no token available to set on the apis")
		return
	}

	a.mu.Lock()
	apis := append([]*api.Api(nil), a.apis...)
	a.mu.Unlock()

	for _, c := range apis {
		_ = c.SetBearerToken(value)
	}
	a.logger.Info().Int("apis", len(apis)).Msg("token set on the apis")
}

// Serve refreshes the token every refresh interval until ctx is done.
// It implements suture.Service. A failed refresh is logged, not returned,
// so the next tick tries again.
func (a *Auth) Serve(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.RefreshInterval)
	defer ticker.Stop()

	a.logger.Info().Dur("interval", a.cfg.RefreshInterval).Msg("token auto refresh started")
	defer a.logger.Info().Msg("token auto refresh stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.RefreshToken(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error().Err(err).Msg("token refresh failed")
			}
		}
	}
}

func (a *Auth) String() string { return "auth" }

// Close stops listening for new clones.
func (a *Auth) Close() {
	a.mu.Lock()
	offs := a.offs
	a.offs = nil
	a.mu.Unlock()
	for _, off := range offs {
		off()
	}
}
