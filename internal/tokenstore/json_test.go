package tokenstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "current_token.json")

	store, err := NewJSONFileStore(path)
	require.NoError(t, err)

	_, err = store.Read(ctx, "DRT")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, store.Write(ctx, Token{Value: "abc123", Name: "DRT", Domain: DefaultDomain}))

	token, err := store.Read(ctx, "DRT")
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	_, err = store.Read(ctx, "FOCUSINUSE")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestJSONFileStore_Layout(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "current_token.json")
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store, err := NewJSONFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, Token{Value: "v", Name: "DRT", Domain: "example.net", UpdatedAt: updated}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, map[string]any{
		"token":       "v",
		"cookie_name": "DRT",
		"domain":      "example.net",
		"updated_at":  "2026-03-01T12:00:00Z",
	}, doc)
}

func TestJSONFileStore_SaveOverwritesOtherNames(t *testing.T) {
	ctx := context.Background()
	store, err := NewJSONFileStore(filepath.Join(t.TempDir(), "current_token.json"))
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, Token{Value: "one", Name: "DRT"}))
	require.NoError(t, store.Write(ctx, Token{Value: "two", Name: "FOCUSINUSE"}))

	_, err = store.Read(ctx, "DRT")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	token, err := store.Read(ctx, "FOCUSINUSE")
	require.NoError(t, err)
	assert.Equal(t, "two", token)
}

func TestJSONFileStore_InsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "current_token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"token":"x","cookie_name":"DRT"}`), 0644))

	store, err := NewJSONFileStore(path)
	require.NoError(t, err)

	_, err = store.Read(context.Background(), "DRT")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenNotFound)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestJSONFileStore_CanceledContext(t *testing.T) {
	store, err := NewJSONFileStore(filepath.Join(t.TempDir(), "current_token.json"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Write(ctx, Token{Value: "v", Name: "DRT"}), context.Canceled)
}
