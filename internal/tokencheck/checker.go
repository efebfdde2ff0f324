// Package tokencheck asks the vendor's auth service whether a token is still accepted.
//
// A 200 response means valid and any other status means invalid. A transport
// failure (unreachable host, timeout) counts as valid. A cancelled caller
// context counts as invalid.
package tokencheck

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the vendor auth service hosting the check endpoint.
	DefaultBaseURL = "https://authservice.dealer.reyrey.net"

	// DefaultOrigin is sent as Origin and Referer, as the portal itself does.
	DefaultOrigin = "https://focus.dealer.reyrey.net"

	// DefaultTimeout bounds a single check request.
	DefaultTimeout = 5 * time.Second

	checkPath = "/api/Utils/CheckToken"
)

// Option configures a Checker.
type Option func(*Checker)

// WithBaseURL overrides the auth service base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Checker) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client used for check requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// WithObserver registers a callback receiving the outcome of every check:
// "valid", "invalid", "unreachable" or "error".
func WithObserver(observe func(result string)) Option {
	return func(c *Checker) {
		c.observe = observe
	}
}

// Checker validates tokens against the remote check endpoint.
type Checker struct {
	baseURL string
	client  *http.Client
	observe func(result string)
}

// New creates a Checker with a 5 second request timeout.
func New(opts ...Option) *Checker {
	c := &Checker{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		observe: func(string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Headers returns the headers the vendor expects alongside a token.
func Headers(token string) http.Header {
	h := make(http.Header, 5)
	h.Set("Content-Type", "application/json;charset=utf-8")
	h.Set("Accept", "*/*")
	h.Set("Origin", DefaultOrigin)
	h.Set("Referer", DefaultOrigin+"/")
	h.Set("Token", token)
	return h
}

// IsValid reports whether the vendor currently accepts token.
func (c *Checker) IsValid(ctx context.Context, token, name string) bool {
	endpoint := c.baseURL + checkPath + "?" + url.Values{"Token": {token}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		slog.ErrorContext(ctx, "unexpected error checking token validity", "token_name", name, "error", redactURL(err))
		c.observe("error")
		return false
	}
	req.Header = Headers(token)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			slog.WarnContext(ctx, "token check cancelled", "token_name", name, "error", ctx.Err())
			c.observe("error")
			return false
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			// Assume the token may still be valid to avoid an unnecessary login.
			slog.ErrorContext(ctx, "error checking token validity", "token_name", name, "error", redactURL(err))
			c.observe("unreachable")
			return true
		}
		slog.ErrorContext(ctx, "unexpected error checking token validity", "token_name", name, "error", redactURL(err))
		c.observe("error")
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.WarnContext(ctx, "token is invalid", "token_name", name, "status", resp.StatusCode)
		c.observe("invalid")
		return false
	}

	slog.InfoContext(ctx, "token is valid", "token_name", name)
	if expiry := resp.Header.Get("tokenexpiry"); expiry != "" {
		slog.InfoContext(ctx, "token expiry reported", "token_name", name, "expires_at", expiry)
	}
	c.observe("valid")
	return true
}

// redactURL strips the query string, which carries the token, from URL errors.
func redactURL(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	endpoint, _, _ := strings.Cut(urlErr.URL, "?")
	return &url.Error{Op: urlErr.Op, URL: endpoint, Err: urlErr.Err}
}
