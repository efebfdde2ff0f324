package tokenstore

import (
	"context"
	"errors"
	"time"
)

// DefaultDomain is the cookie domain tokens are issued for.
const DefaultDomain = "focus.dealer.reyrey.net"

// ErrTokenNotFound reports that a store holds no token for the requested name.
// It signals absence, not failure.
var ErrTokenNotFound = errors.New("token not found")

// Token is a bearer credential for the vendor portal.
type Token struct {
	Value     string
	Name      string
	Domain    string
	UpdatedAt time.Time
}

// TokenStore reads and writes tokens to persistent storage, keyed by logical token name.
type TokenStore interface {
	// Name identifies the store in the registry and in provider orders.
	Name() string

	// Read returns the current token for name. Returns ErrTokenNotFound if the
	// store has no token for that name.
	Read(ctx context.Context, name string) (string, error)

	// Write persists the token, replacing any previous value for its name.
	Write(ctx context.Context, token Token) error
}
