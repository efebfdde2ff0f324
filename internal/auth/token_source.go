package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"

	"github.com/florianilch/reyrey-auth/internal/tokencheck"
)

// TokenType marks oauth2 tokens carrying a vendor session token.
const TokenType = "Token"

// TokenSource serves a single token name from a Service.
// The first Token call performs the lookup; later calls reuse the result
// until Invalidate drops it.
type TokenSource struct {
	ctx     context.Context
	service *Service
	name    string

	current atomic.Pointer[string]
	mu      sync.Mutex
}

// Compile-time check to ensure TokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*TokenSource)(nil)

// TokenSource returns an oauth2.TokenSource for the token called name.
// Lookups and logins run under ctx.
func (s *Service) TokenSource(ctx context.Context, name string) *TokenSource {
	return &TokenSource{ctx: ctx, service: s, name: name}
}

// Token returns the cached token or looks one up, logging in if needed.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	// Hot path: lock-free atomic read
	if current := ts.current.Load(); current != nil {
		return &oauth2.Token{AccessToken: *current, TokenType: TokenType}, nil
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if current := ts.current.Load(); current != nil {
		return &oauth2.Token{AccessToken: *current, TokenType: TokenType}, nil
	}

	token, err := ts.service.GetToken(ts.ctx, ts.name, WithLoginFallback(true))
	if err != nil {
		return nil, fmt.Errorf("getting %s token: %w", ts.name, err)
	}
	ts.current.Store(&token)

	return &oauth2.Token{AccessToken: token, TokenType: TokenType}, nil
}

// Invalidate drops the cached token if it is still stale, so the next Token
// call performs a fresh lookup.
func (ts *TokenSource) Invalidate(stale string) {
	current := ts.current.Load()
	if current != nil && *current == stale {
		ts.current.CompareAndSwap(current, nil)
	}
}

// Transport adds the vendor auth headers to outgoing requests.
// A 401 response invalidates the token when Source supports it.
type Transport struct {
	Source oauth2.TokenSource
	Base   http.RoundTripper
}

// Compile-time check that Transport implements http.RoundTripper.
var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip authorizes req and forwards it to the base transport.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.Source.Token()
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	newReq := req.Clone(req.Context())
	for key, values := range tokencheck.Headers(tok.AccessToken) {
		if key == "Content-Type" && newReq.Header.Get(key) != "" {
			continue
		}
		newReq.Header[key] = values
	}

	resp, err := t.base().RoundTrip(newReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := t.Source.(interface{ Invalidate(string) }); ok {
			inv.Invalidate(tok.AccessToken)
		}
	}
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// Client returns an HTTP client that authenticates requests with the token called name.
func (s *Service) Client(ctx context.Context, name string) *http.Client {
	return &http.Client{
		Transport: &Transport{Source: s.TokenSource(ctx, name)},
	}
}
