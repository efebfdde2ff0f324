// Package auth finds a working vendor token: it walks the configured token
// stores, validates candidates remotely and falls back to a browser login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/florianilch/reyrey-auth/internal/bridge"
	"github.com/florianilch/reyrey-auth/internal/browser"
	"github.com/florianilch/reyrey-auth/internal/tokenstore"
)

// DefaultTokenName is the portal's session cookie.
const DefaultTokenName = "DRT"

// DefaultLoginTimeout bounds a fallback browser login.
const DefaultLoginTimeout = 60 * time.Second

// ErrNoToken is returned when no store holds a valid token and no login produced one.
var ErrNoToken = errors.New("no valid token found")

// Validator confirms that the vendor still accepts a token.
type Validator interface {
	IsValid(ctx context.Context, token, name string) bool
}

// Authenticator obtains tokens and sessions through the portal's login.
type Authenticator interface {
	NewToken(ctx context.Context, name string) (string, error)
	Login(ctx context.Context) (*browser.Session, error)
	Attach(ctx context.Context, token, name string) (*browser.Session, error)
	ExtractToken(ctx context.Context, session *browser.Session, name string) (string, error)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDefaultOrder sets the store order used when a call names none.
func WithDefaultOrder(order []string) ServiceOption {
	return func(s *Service) {
		s.order = slices.Clone(order)
	}
}

// WithLoginTimeout bounds fallback logins.
func WithLoginTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.loginTimeout = timeout
	}
}

// WithDomain sets the domain recorded with tokens obtained by login.
func WithDomain(domain string) ServiceOption {
	return func(s *Service) {
		s.domain = domain
	}
}

// WithMetrics records lookups, saves and logins.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service is the token orchestrator.
type Service struct {
	registry      *tokenstore.Registry
	validator     Validator
	authenticator Authenticator

	order        []string
	loginTimeout time.Duration
	domain       string
	metrics      *Metrics

	logins singleflight.Group
}

// NewService creates a Service over the stores in registry.
func NewService(registry *tokenstore.Registry, validator Validator, authenticator Authenticator, opts ...ServiceOption) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("missing token store registry")
	}
	if validator == nil {
		return nil, fmt.Errorf("missing token validator")
	}

	s := &Service{
		registry:      registry,
		validator:     validator,
		authenticator: authenticator,
		order:         tokenstore.DefaultOrder(),
		loginTimeout:  DefaultLoginTimeout,
		domain:        tokenstore.DefaultDomain,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s, nil
}

// GetOption adjusts a single GetToken call.
type GetOption func(*getOptions)

type getOptions struct {
	providers     []string
	loginFallback bool
	verify        bool
}

// WithProviders sets the stores to consult, in order.
func WithProviders(names ...string) GetOption {
	return func(o *getOptions) {
		o.providers = names
	}
}

// WithLoginFallback enables a browser login when no store holds a valid token.
func WithLoginFallback(enabled bool) GetOption {
	return func(o *getOptions) {
		o.loginFallback = enabled
	}
}

// WithVerify controls whether stored tokens are validated remotely before use.
func WithVerify(enabled bool) GetOption {
	return func(o *getOptions) {
		o.verify = enabled
	}
}

// SaveOption adjusts a single SaveToken call.
type SaveOption func(*saveOptions)

type saveOptions struct {
	providers []string
}

// WithSaveProviders sets the stores to write to.
func WithSaveProviders(names ...string) SaveOption {
	return func(o *saveOptions) {
		o.providers = names
	}
}

// GetToken returns the first valid token called name found in the stores.
//
// Stores are consulted in order; a store without a token, or with one the
// vendor rejects, is skipped. If none yields a valid token and the login
// fallback is enabled, a browser login is attempted and its token persisted
// to the same stores. Returns ErrNoToken when nothing worked. Missing login
// credentials are returned as an error rather than reported as a miss.
func (s *Service) GetToken(ctx context.Context, name string, opts ...GetOption) (string, error) {
	o := getOptions{providers: s.order, verify: true}
	for _, opt := range opts {
		opt(&o)
	}

	for _, storeName := range o.providers {
		store, ok := s.registry.Resolve(storeName)
		if !ok {
			s.metrics.lookup(storeName, "unavailable")
			continue
		}

		token, err := store.Read(ctx, name)
		if errors.Is(err, tokenstore.ErrTokenNotFound) {
			s.metrics.lookup(storeName, "miss")
			continue
		}
		if err != nil {
			slog.WarnContext(ctx, "error reading token", "store", storeName, "token_name", name, "error", err)
			s.metrics.lookup(storeName, "error")
			continue
		}

		if o.verify && !s.validator.IsValid(ctx, token, name) {
			slog.WarnContext(ctx, "found token is invalid, trying other stores", "store", storeName, "token_name", name)
			s.metrics.lookup(storeName, "invalid")
			continue
		}

		s.metrics.lookup(storeName, "hit")
		return token, nil
	}

	if o.loginFallback {
		slog.InfoContext(ctx, "no valid token found, attempting browser login", "token_name", name)
		token, err := s.loginForToken(ctx, name, o.providers)
		switch {
		case err == nil:
			slog.InfoContext(ctx, "obtained new token via browser login", "token_name", name)
			return token, nil
		case browser.IsConfigError(err):
			return "", err
		default:
			slog.ErrorContext(ctx, "failed to get new token via browser login", "token_name", name, "error", err)
		}
	}

	slog.WarnContext(ctx, "valid token not found", "token_name", name)
	return "", ErrNoToken
}

// SaveToken writes token to every store in order. It reports whether at least
// one store accepted it; individual failures are logged.
func (s *Service) SaveToken(ctx context.Context, token tokenstore.Token, opts ...SaveOption) bool {
	o := saveOptions{providers: s.order}
	for _, opt := range opts {
		opt(&o)
	}
	if token.Domain == "" {
		token.Domain = s.domain
	}
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = time.Now().UTC()
	}

	saved := false
	for _, storeName := range o.providers {
		store, ok := s.registry.Resolve(storeName)
		if !ok {
			s.metrics.save(storeName, "unavailable")
			continue
		}

		if err := store.Write(ctx, token); err != nil {
			slog.ErrorContext(ctx, "error saving token", "store", storeName, "token_name", token.Name, "error", err)
			s.metrics.save(storeName, "error")
			continue
		}
		s.metrics.save(storeName, "ok")
		saved = true
	}
	return saved
}

// CheckToken reports whether the vendor accepts token.
func (s *Service) CheckToken(ctx context.Context, token, name string) bool {
	return s.validator.IsValid(ctx, token, name)
}

// NewToken performs a browser login, extracts the token called name and saves
// it to the stores, regardless of what the stores currently hold.
func (s *Service) NewToken(ctx context.Context, name string) (string, error) {
	return s.loginForToken(ctx, name, s.order)
}

// loginForToken runs the browser login through the bridge and persists the
// result to providers. Concurrent calls for the same name share one login;
// each caller saves the token to its own providers.
func (s *Service) loginForToken(ctx context.Context, name string, providers []string) (string, error) {
	if s.authenticator == nil {
		return "", fmt.Errorf("browser login not configured")
	}

	v, err, _ := s.logins.Do(name, func() (any, error) {
		token, err := bridge.Run(ctx, s.loginTimeout, func(ctx context.Context) (string, error) {
			return s.authenticator.NewToken(ctx, name)
		})
		switch {
		case errors.Is(err, bridge.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
			slog.ErrorContext(ctx, "timeout while getting new token", "token_name", name)
			s.metrics.login("timeout")
			return "", err
		case err != nil:
			s.metrics.login("error")
			return "", err
		}
		s.metrics.login("ok")
		return token, nil
	})
	if err != nil {
		return "", err
	}
	token := v.(string)

	if !s.SaveToken(ctx, tokenstore.Token{Value: token, Name: name, Domain: s.domain}, WithSaveProviders(providers...)) {
		slog.WarnContext(ctx, "new token could not be saved to any store", "token_name", name)
	}
	return token, nil
}
