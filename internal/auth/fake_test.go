package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/florianilch/reyrey-auth/internal/bridge"
	"github.com/florianilch/reyrey-auth/internal/browser"
	"github.com/florianilch/reyrey-auth/internal/tokenstore"
	"github.com/florianilch/reyrey-auth/internal/tokenstore/tokenstoretest"
)

// validatorFunc adapts a function to Validator.
type validatorFunc func(token string) bool

func (f validatorFunc) IsValid(_ context.Context, token, _ string) bool { return f(token) }

func acceptAll() Validator { return validatorFunc(func(string) bool { return true }) }

func acceptOnly(tokens ...string) Validator {
	return validatorFunc(func(token string) bool {
		for _, t := range tokens {
			if t == token {
				return true
			}
		}
		return false
	})
}

// stubPage is a browser page that only tracks Close.
type stubPage struct {
	browser.Page

	mu     sync.Mutex
	closed int
}

func (p *stubPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *stubPage) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeAuthenticator records how it was called and returns canned results.
type fakeAuthenticator struct {
	token     string
	err       error
	attachErr error
	loginErr  error

	mu          sync.Mutex
	newTokens   int
	onWorker    bool
	attached    []string
	logins      int
	extractions int
	pages       []*stubPage
}

func (a *fakeAuthenticator) NewToken(ctx context.Context, _ string) (string, error) {
	a.mu.Lock()
	a.newTokens++
	a.onWorker = bridge.OnWorker(ctx)
	a.mu.Unlock()

	if a.err != nil {
		return "", a.err
	}
	return a.token, nil
}

func (a *fakeAuthenticator) Login(context.Context) (*browser.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins++
	if a.loginErr != nil {
		return nil, a.loginErr
	}
	return a.session(""), nil
}

func (a *fakeAuthenticator) Attach(_ context.Context, token, _ string) (*browser.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attached = append(a.attached, token)
	if a.attachErr != nil {
		return nil, a.attachErr
	}
	return a.session(token), nil
}

func (a *fakeAuthenticator) ExtractToken(_ context.Context, session *browser.Session, name string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.extractions++
	if a.token == "" {
		return "", browser.ErrTokenNotExtracted
	}
	session.Token = a.token
	return a.token, nil
}

func (a *fakeAuthenticator) session(token string) *browser.Session {
	page := &stubPage{}
	a.pages = append(a.pages, page)
	return &browser.Session{ID: "session", Page: page, Token: token}
}

var errBackend = errors.New("backend down")

func newTestRegistry(t *testing.T, stores ...*tokenstoretest.MemoryStore) *tokenstore.Registry {
	t.Helper()
	r := tokenstore.NewRegistry()
	for _, s := range stores {
		require.NoError(t, r.Register(s))
	}
	return r
}

func storeNames(stores ...*tokenstoretest.MemoryStore) []string {
	names := make([]string, 0, len(stores))
	for _, s := range stores {
		names = append(names, s.Name())
	}
	return names
}

func newTestService(t *testing.T, validator Validator, authenticator Authenticator, stores ...*tokenstoretest.MemoryStore) *Service {
	t.Helper()
	s, err := NewService(newTestRegistry(t, stores...), validator, authenticator, WithDefaultOrder(storeNames(stores...)))
	require.NoError(t, err)
	return s
}
