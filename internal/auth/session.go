package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/florianilch/reyrey-auth/internal/bridge"
	"github.com/florianilch/reyrey-auth/internal/browser"
	"github.com/florianilch/reyrey-auth/internal/tokencheck"
	"github.com/florianilch/reyrey-auth/internal/tokenstore"
)

// AuthenticatedSession returns an open browser session logged in to the portal.
//
// A stored token is tried first (token, or the stores when token is empty),
// injected as a cookie; if the portal does not accept it, a full login is
// performed. The token that worked is saved to the stores. The caller owns
// the returned session.
func (s *Service) AuthenticatedSession(ctx context.Context, token, name string, check bool) (*browser.Session, error) {
	if s.authenticator == nil {
		return nil, fmt.Errorf("browser login not configured")
	}
	ctx = bridge.WithScheduler(ctx)

	if token == "" {
		found, err := s.GetToken(ctx, name, WithVerify(check))
		switch {
		case errors.Is(err, ErrNoToken):
		case err != nil:
			return nil, err
		default:
			token = found
		}
	} else if check && !s.validator.IsValid(ctx, token, name) {
		slog.WarnContext(ctx, "provided token is invalid, discarding", "token_name", name)
		token = ""
	}

	if token != "" {
		session, err := s.authenticator.Attach(ctx, token, name)
		if err == nil {
			s.SaveToken(ctx, tokenstore.Token{Value: token, Name: name, Domain: s.domain})
			return session, nil
		}
		slog.WarnContext(ctx, "existing token not accepted by portal, falling back to login", "token_name", name, "error", err)
	}

	session, err := s.authenticator.Login(ctx)
	if err != nil {
		s.metrics.login("error")
		return nil, err
	}

	newToken, err := s.authenticator.ExtractToken(ctx, session, name)
	if err != nil {
		if closeErr := session.Close(); closeErr != nil {
			slog.WarnContext(ctx, "error closing browser", "session_id", session.ID, "error", closeErr)
		}
		s.metrics.login("error")
		return nil, err
	}
	s.metrics.login("ok")

	if !s.SaveToken(ctx, tokenstore.Token{Value: newToken, Name: name, Domain: s.domain}) {
		slog.WarnContext(ctx, "new token could not be saved to any store", "token_name", name)
	}
	return session, nil
}

// AuthHeaders returns the headers for calling the vendor API with a valid
// token called name, logging in when no store has one.
func (s *Service) AuthHeaders(ctx context.Context, name string) (http.Header, error) {
	tok, err := s.TokenSource(ctx, name).Token()
	if err != nil {
		return nil, err
	}
	return tokencheck.Headers(tok.AccessToken), nil
}
