package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/reyrey-auth/internal/tokenstore/tokenstoretest"
)

func TestTokenSource_CachesToken(t *testing.T) {
	store := tokenstoretest.NewMemoryStore("json_file").WithToken("DRT", "cached")
	s := newTestService(t, acceptAll(), nil, store)
	ts := s.TokenSource(context.Background(), "DRT")

	for range 3 {
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "cached", tok.AccessToken)
		assert.Equal(t, TokenType, tok.TokenType)
	}
	assert.Equal(t, 1, store.Reads())
}

func TestTokenSource_Invalidate(t *testing.T) {
	store := tokenstoretest.NewMemoryStore("json_file").WithToken("DRT", "first")
	s := newTestService(t, acceptAll(), nil, store)
	ts := s.TokenSource(context.Background(), "DRT")

	_, err := ts.Token()
	require.NoError(t, err)

	ts.Invalidate("other")
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "first", tok.AccessToken)
	assert.Equal(t, 1, store.Reads(), "invalidating a different token keeps the cache")

	store.WithToken("DRT", "second")
	ts.Invalidate("first")
	tok, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "second", tok.AccessToken)
}

func TestTokenSource_NoToken(t *testing.T) {
	s := newTestService(t, acceptAll(), nil, tokenstoretest.NewMemoryStore("json_file"))

	_, err := s.TokenSource(context.Background(), "DRT").Token()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestTransport(t *testing.T) {
	var unauthorized atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/xml", r.Header.Get("Content-Type"))
		if unauthorized.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(r.Header.Get("Token")))
	}))
	defer srv.Close()

	store := tokenstoretest.NewMemoryStore("json_file").WithToken("DRT", "abc123")
	s := newTestService(t, acceptAll(), nil, store)
	client := s.Client(context.Background(), "DRT")

	do := func() *http.Response {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/xml")
		resp, err := client.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := do()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, store.Reads())

	unauthorized.Store(true)
	resp = do()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	unauthorized.Store(false)
	do()
	assert.Equal(t, 2, store.Reads(), "a 401 must force a fresh lookup")
}
