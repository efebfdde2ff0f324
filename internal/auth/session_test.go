package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/reyrey-auth/internal/browser"
	"github.com/florianilch/reyrey-auth/internal/tokencheck"
	"github.com/florianilch/reyrey-auth/internal/tokenstore/tokenstoretest"
)

func TestService_AuthenticatedSession_StoredToken(t *testing.T) {
	store := tokenstoretest.NewMemoryStore("json_file").WithToken("DRT", "stored")
	auth := &fakeAuthenticator{token: "fresh"}
	s := newTestService(t, acceptAll(), auth, store)

	session, err := s.AuthenticatedSession(context.Background(), "", "DRT", true)
	require.NoError(t, err)
	assert.Equal(t, "stored", session.Token)
	assert.Equal(t, []string{"stored"}, auth.attached)
	assert.Zero(t, auth.logins)
}

func TestService_AuthenticatedSession_ProvidedToken(t *testing.T) {
	store := tokenstoretest.NewMemoryStore("json_file")
	auth := &fakeAuthenticator{token: "fresh"}
	s := newTestService(t, acceptAll(), auth, store)

	session, err := s.AuthenticatedSession(context.Background(), "given", "DRT", false)
	require.NoError(t, err)
	assert.Equal(t, "given", session.Token)

	saved, ok := store.Token("DRT")
	require.True(t, ok)
	assert.Equal(t, "given", saved.Value)
}

func TestService_AuthenticatedSession_InvalidProvidedToken(t *testing.T) {
	store := tokenstoretest.NewMemoryStore("json_file")
	auth := &fakeAuthenticator{token: "fresh"}
	s := newTestService(t, acceptOnly("fresh"), auth, store)

	session, err := s.AuthenticatedSession(context.Background(), "bad", "DRT", true)
	require.NoError(t, err)
	assert.Equal(t, "fresh", session.Token)
	assert.Empty(t, auth.attached)
	assert.Equal(t, 1, auth.logins)

	saved, ok := store.Token("DRT")
	require.True(t, ok)
	assert.Equal(t, "fresh", saved.Value)
}

func TestService_AuthenticatedSession_AttachFailsFallsBackToLogin(t *testing.T) {
	store := tokenstoretest.NewMemoryStore("json_file").WithToken("DRT", "rejected")
	auth := &fakeAuthenticator{
		token:     "fresh",
		attachErr: &browser.LoginError{Stage: "verify", Message: "dashboard not reachable with token"},
	}
	s := newTestService(t, acceptAll(), auth, store)

	session, err := s.AuthenticatedSession(context.Background(), "", "DRT", false)
	require.NoError(t, err)
	assert.Equal(t, "fresh", session.Token)
	assert.Equal(t, 1, auth.logins)

	saved, _ := store.Token("DRT")
	assert.Equal(t, "fresh", saved.Value)
}

func TestService_AuthenticatedSession_LoginFails(t *testing.T) {
	auth := &fakeAuthenticator{loginErr: &browser.LoginError{Stage: "verify", Message: "Invalid password"}}
	s := newTestService(t, acceptAll(), auth, tokenstoretest.NewMemoryStore("json_file"))

	_, err := s.AuthenticatedSession(context.Background(), "", "DRT", false)

	var loginErr *browser.LoginError
	require.ErrorAs(t, err, &loginErr)
	assert.Equal(t, "Invalid password", loginErr.Message)
}

func TestService_AuthenticatedSession_ExtractionFailsClosesBrowser(t *testing.T) {
	auth := &fakeAuthenticator{}
	s := newTestService(t, acceptAll(), auth, tokenstoretest.NewMemoryStore("json_file"))

	_, err := s.AuthenticatedSession(context.Background(), "", "DRT", false)
	assert.ErrorIs(t, err, browser.ErrTokenNotExtracted)
	require.Len(t, auth.pages, 1)
	assert.Equal(t, 1, auth.pages[0].closeCount())
}

func TestService_AuthenticatedSession_NoAuthenticator(t *testing.T) {
	s := newTestService(t, acceptAll(), nil)
	_, err := s.AuthenticatedSession(context.Background(), "tok", "DRT", false)
	assert.Error(t, err)
}

func TestService_AuthHeaders(t *testing.T) {
	store := tokenstoretest.NewMemoryStore("json_file").WithToken("DRT", "abc123")
	s := newTestService(t, acceptAll(), nil, store)

	headers, err := s.AuthHeaders(context.Background(), "DRT")
	require.NoError(t, err)
	assert.Equal(t, "abc123", headers.Get("Token"))
	assert.Equal(t, tokencheck.DefaultOrigin, headers.Get("Origin"))
	assert.Equal(t, tokencheck.DefaultOrigin+"/", headers.Get("Referer"))
}

func TestService_AuthHeaders_NoToken(t *testing.T) {
	s := newTestService(t, acceptAll(), nil, tokenstoretest.NewMemoryStore("json_file"))

	_, err := s.AuthHeaders(context.Background(), "DRT")
	assert.ErrorIs(t, err, ErrNoToken)
}
