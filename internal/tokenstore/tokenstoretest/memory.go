// Package tokenstoretest provides an in-memory TokenStore for tests.
package tokenstoretest

import (
	"context"
	"sync"

	"github.com/florianilch/reyrey-auth/internal/tokenstore"
)

// MemoryStore is a fake TokenStore that keeps tokens in memory and can be
// configured to fail reads or writes.
type MemoryStore struct {
	name string

	mu       sync.Mutex
	tokens   map[string]tokenstore.Token
	readErr  error
	writeErr error
	reads    int
	writes   int
}

// Compile-time check to ensure MemoryStore implements TokenStore
var _ tokenstore.TokenStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store with the given name.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:   name,
		tokens: make(map[string]tokenstore.Token),
	}
}

// WithToken stores value under tokenName.
func (m *MemoryStore) WithToken(tokenName, value string) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenName] = tokenstore.Token{Value: value, Name: tokenName, Domain: tokenstore.DefaultDomain}
	return m
}

// WithReadError makes every Read fail with err.
func (m *MemoryStore) WithReadError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
	return m
}

// WithWriteError makes every Write fail with err.
func (m *MemoryStore) WithWriteError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
	return m
}

// Name implements TokenStore.
func (m *MemoryStore) Name() string { return m.name }

// Read implements TokenStore.
func (m *MemoryStore) Read(_ context.Context, tokenName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++

	if m.readErr != nil {
		return "", m.readErr
	}
	token, ok := m.tokens[tokenName]
	if !ok {
		return "", tokenstore.ErrTokenNotFound
	}
	return token.Value, nil
}

// Write implements TokenStore.
func (m *MemoryStore) Write(_ context.Context, token tokenstore.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++

	if m.writeErr != nil {
		return m.writeErr
	}
	m.tokens[token.Name] = token
	return nil
}

// Token returns the stored token for tokenName.
func (m *MemoryStore) Token(tokenName string) (tokenstore.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[tokenName]
	return token, ok
}

// Reads returns the number of Read calls.
func (m *MemoryStore) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Writes returns the number of Write calls.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
