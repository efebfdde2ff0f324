package tokenstore_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/reyrey-auth/internal/tokenstore"
	"github.com/florianilch/reyrey-auth/internal/tokenstore/tokenstoretest"
)

type closingStore struct {
	*tokenstoretest.MemoryStore
	closed bool
}

func (c *closingStore) Close() error {
	c.closed = true
	return nil
}

func TestRegistry_Register(t *testing.T) {
	r := tokenstore.NewRegistry()

	assert.ErrorIs(t, r.Register(nil), tokenstore.ErrInvalidStore)
	assert.ErrorIs(t, r.Register(tokenstoretest.NewMemoryStore("")), tokenstore.ErrInvalidStore)

	first := tokenstoretest.NewMemoryStore("json_file")
	second := tokenstoretest.NewMemoryStore("json_file")
	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	got, ok := r.Resolve("json_file")
	require.True(t, ok)
	assert.Same(t, second, got)

	_, ok = r.Resolve("unknown")
	assert.False(t, ok)
}

func TestRegistry_LazyFactory(t *testing.T) {
	r := tokenstore.NewRegistry()
	calls := 0
	store := tokenstoretest.NewMemoryStore("database")

	require.NoError(t, r.RegisterFactory("database", func() (tokenstore.TokenStore, error) {
		calls++
		return store, nil
	}))
	assert.Equal(t, 0, calls)

	for range 3 {
		got, ok := r.Resolve("database")
		require.True(t, ok)
		assert.Same(t, store, got)
	}
	assert.Equal(t, 1, calls)
}

func TestRegistry_FailingFactoryIsAbsent(t *testing.T) {
	r := tokenstore.NewRegistry()
	calls := 0

	require.NoError(t, r.RegisterFactory("database", func() (tokenstore.TokenStore, error) {
		calls++
		return nil, errors.New("driver unavailable")
	}))

	_, ok := r.Resolve("database")
	assert.False(t, ok)
	_, ok = r.Resolve("database")
	assert.False(t, ok)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"database"}, r.Names())
}

func TestRegistry_RegisterFactoryValidation(t *testing.T) {
	r := tokenstore.NewRegistry()
	assert.ErrorIs(t, r.RegisterFactory("", func() (tokenstore.TokenStore, error) { return nil, nil }), tokenstore.ErrInvalidStore)
	assert.ErrorIs(t, r.RegisterFactory("database", nil), tokenstore.ErrInvalidStore)
}

func TestRegistry_Close(t *testing.T) {
	r := tokenstore.NewRegistry()
	store := &closingStore{MemoryStore: tokenstoretest.NewMemoryStore("database")}
	require.NoError(t, r.Register(store))
	require.NoError(t, r.Register(tokenstoretest.NewMemoryStore("env_file")))

	require.NoError(t, r.Close())
	assert.True(t, store.closed)
}

func TestDefaultOrder(t *testing.T) {
	order := tokenstore.DefaultOrder()
	assert.Equal(t, []string{"env_file", "json_file", "database", "api"}, order)

	order[0] = "keyring"
	assert.Equal(t, "env_file", tokenstore.DefaultOrder()[0])
}
