package browser

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Cookie is a browser cookie.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Page is a single tab of a running browser. Methods block until the action
// completes or ctx is done.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitReady waits until selector matches an element in the DOM.
	WaitReady(ctx context.Context, selector string) error
	// Exists reports whether selector currently matches, without waiting.
	Exists(ctx context.Context, selector string) (bool, error)
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, expression string, res any) error
	// WaitSettled waits until the current document has finished loading.
	WaitSettled(ctx context.Context) error
	Text(ctx context.Context, selector string) (string, error)
	HTML(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookie(ctx context.Context, cookie Cookie) error
	Screenshot(ctx context.Context) ([]byte, error)
	// Close shuts the browser down. Safe to call more than once.
	Close() error
}

// Launcher starts a fresh, isolated browser with one open page.
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}

// Session is an authenticated browser page together with the token that
// authenticated it. The caller owns the session and must Close it.
type Session struct {
	ID    string
	Page  Page
	Token string

	closeOnce sync.Once
	closeErr  error
}

func newSession(page Page) *Session {
	return &Session{
		ID:   uuid.NewString(),
		Page: page,
	}
}

// Close releases the browser behind the session.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Page.Close()
	})
	return s.closeErr
}
