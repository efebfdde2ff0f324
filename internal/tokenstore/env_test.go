package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "REYREY_TOKEN_DRT", EnvKey("DRT"))
	assert.Equal(t, "REYREY_TOKEN_FOCUSINUSE", EnvKey("focusinuse"))
}

func TestEnvFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file is a miss", func(t *testing.T) {
		store, err := NewEnvFileStore(filepath.Join(t.TempDir(), ".env"))
		require.NoError(t, err)

		_, err = store.Read(ctx, "DRT")
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("write keeps unrelated entries", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("# comment\nREYREY_USERNAME=alice\n"), 0600))

		store, err := NewEnvFileStore(path)
		require.NoError(t, err)
		require.NoError(t, store.Write(ctx, Token{Value: "abc123", Name: "DRT", Domain: DefaultDomain}))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "REYREY_TOKEN_DRT='abc123'\nREYREY_USERNAME='alice'\n", string(data))

		token, err := store.Read(ctx, "DRT")
		require.NoError(t, err)
		assert.Equal(t, "abc123", token)

		_, err = store.Read(ctx, "OTHER")
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("overwrites existing value", func(t *testing.T) {
		store, err := NewEnvFileStore(filepath.Join(t.TempDir(), ".env"))
		require.NoError(t, err)

		require.NoError(t, store.Write(ctx, Token{Value: "first", Name: "DRT"}))
		require.NoError(t, store.Write(ctx, Token{Value: "second", Name: "DRT"}))

		token, err := store.Read(ctx, "DRT")
		require.NoError(t, err)
		assert.Equal(t, "second", token)
	})

	t.Run("process environment takes precedence", func(t *testing.T) {
		t.Setenv("REYREY_TOKEN_ENVPRIO", "from-env")

		store, err := NewEnvFileStore(filepath.Join(t.TempDir(), ".env"))
		require.NoError(t, err)
		require.NoError(t, store.Write(ctx, Token{Value: "from-file", Name: "ENVPRIO"}))

		token, err := store.Read(ctx, "ENVPRIO")
		require.NoError(t, err)
		assert.Equal(t, "from-env", token)
	})

	t.Run("values survive a round trip", func(t *testing.T) {
		values := []string{
			"abc #def",
			`"quoted"`,
			"with spaces ",
			"it's",
			`back\slash`,
			"$HOME",
			"007",
			"multi\nline",
		}
		for _, value := range values {
			store, err := NewEnvFileStore(filepath.Join(t.TempDir(), ".env"))
			require.NoError(t, err)
			require.NoError(t, store.Write(ctx, Token{Value: value, Name: "DRT"}))

			token, err := store.Read(ctx, "DRT")
			require.NoError(t, err)
			assert.Equal(t, value, token)
		}
	})

	t.Run("unrepresentable value rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		store, err := NewEnvFileStore(path)
		require.NoError(t, err)

		err = store.Write(ctx, Token{Value: `it's "x"`, Name: "DRT"})
		assert.ErrorIs(t, err, ErrUnrepresentable)

		_, err = os.Stat(path)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("empty path rejected", func(t *testing.T) {
		_, err := NewEnvFileStore("")
		assert.Error(t, err)
	})
}
