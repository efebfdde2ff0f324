package tokenstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()

	store, err := NewKeyringStore(DefaultKeyringService)
	require.NoError(t, err)

	_, err = store.Read(ctx, "DRT")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, store.Write(ctx, Token{Value: "abc123", Name: "DRT"}))

	token, err := store.Read(ctx, "DRT")
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	_, err = store.Read(ctx, "FOCUSINUSE")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestNewKeyringStore_EmptyService(t *testing.T) {
	_, err := NewKeyringStore("")
	assert.Error(t, err)
}
