package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keyring service tokens are filed under.
const DefaultKeyringService = "reyrey-auth"

// KeyringStore provides OS-native secure credential storage for tokens.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
// Each token name is a separate keyring entry of the configured service.
type KeyringStore struct {
	service string
}

// Compile-time check to ensure KeyringStore implements TokenStore
var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the given service identifier.
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}

	return &KeyringStore{
		service: service,
	}, nil
}

// Name implements TokenStore.
func (k *KeyringStore) Name() string { return "keyring" }

// Read returns the token from the system keyring.
func (k *KeyringStore) Read(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, err := keyring.Get(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", err
	}

	if token == "" {
		return "", ErrTokenNotFound
	}

	slog.InfoContext(ctx, "found token in keyring", "service", k.service, "token_name", name)
	return token, nil
}

// Write persists the token to the system keyring, overwriting any existing value.
func (k *KeyringStore) Write(ctx context.Context, token Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyring.Set(k.service, token.Name, token.Value); err != nil {
		return err
	}

	slog.InfoContext(ctx, "saved token to keyring", "service", k.service, "token_name", token.Name)
	return nil
}
