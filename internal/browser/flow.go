package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultLoginURL   = "https://focus.dealer.reyrey.net/"
	DefaultLandingURL = "https://focus.dealer.reyrey.net/?bg=100037"
	DefaultDomain     = "focus.dealer.reyrey.net"

	// FallbackCookie is read when the requested token cookie is not set.
	FallbackCookie = "FOCUSINUSE"

	DefaultFormTimeout      = 10 * time.Second
	DefaultSettleTimeout    = 15 * time.Second
	DefaultIndicatorTimeout = 1 * time.Second

	screenshotName = "login_result.png"
)

const (
	usernameSelector     = `input[name="UserName"]`
	passwordSelector     = `input[name="Password"]`
	errorMessageSelector = `.error-message`
)

// loginButtonSelectors are tried in order; the first one present is clicked.
var loginButtonSelectors = []string{
	`input[value="Sign On"]`,
	`input[name="Sign On"]`,
	`input[type="submit"]`,
	`input.submitButton`,
	`button[type="submit"]`,
	`//button[contains(normalize-space(.), "Sign On")]`,
}

// submitFallbackScript clicks the first submit element when no known button matched.
const submitFallbackScript = `(() => {
	const buttons = document.querySelectorAll('input[type="submit"], button[type="submit"]');
	if (buttons.length > 0) { buttons[0].click(); return true; }
	return false;
})()`

// dashboardSelectors indicate a logged-in portal page; any one of them suffices.
var dashboardSelectors = []string{
	`//*[normalize-space(text())="SALES GOALS"]`,
	`//*[normalize-space(text())="ACTIVITY OVERVIEW"]`,
	`//*[normalize-space(text())="My Clients"]`,
	`//a[contains(., "Logout")]`,
	`.dashboard-container`,
	`.user-menu`,
}

var tracer = otel.Tracer("github.com/florianilch/reyrey-auth/internal/browser")

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithCredentials sets where login credentials come from.
func WithCredentials(fn CredentialsFunc) FlowOption {
	return func(f *Flow) {
		f.credentials = fn
	}
}

// WithScreenshotDir saves a screenshot of the post-login page into dir.
func WithScreenshotDir(dir string) FlowOption {
	return func(f *Flow) {
		f.screenshotDir = dir
	}
}

// WithURLs overrides the login and landing page URLs and the cookie domain.
func WithURLs(loginURL, landingURL, domain string) FlowOption {
	return func(f *Flow) {
		f.loginURL = loginURL
		f.landingURL = landingURL
		f.domain = domain
	}
}

// WithTimeouts overrides the per-step wait bounds.
func WithTimeouts(form, settle, indicator time.Duration) FlowOption {
	return func(f *Flow) {
		f.formTimeout = form
		f.settleTimeout = settle
		f.indicatorTimeout = indicator
	}
}

// Flow logs in to the portal through a browser.
type Flow struct {
	launcher    Launcher
	credentials CredentialsFunc

	loginURL   string
	landingURL string
	domain     string

	screenshotDir string

	formTimeout      time.Duration
	settleTimeout    time.Duration
	indicatorTimeout time.Duration
}

// NewFlow creates a Flow that starts browsers with launcher.
// Credentials default to EnvCredentials(".env").
func NewFlow(launcher Launcher, opts ...FlowOption) *Flow {
	f := &Flow{
		launcher:         launcher,
		credentials:      EnvCredentials(".env"),
		loginURL:         DefaultLoginURL,
		landingURL:       DefaultLandingURL,
		domain:           DefaultDomain,
		formTimeout:      DefaultFormTimeout,
		settleTimeout:    DefaultSettleTimeout,
		indicatorTimeout: DefaultIndicatorTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Domain returns the cookie domain sessions are authenticated for.
func (f *Flow) Domain() string { return f.domain }

// Login fills in the portal's login form and returns the authenticated session.
// The browser is closed on every failure path.
func (f *Flow) Login(ctx context.Context) (_ *Session, err error) {
	ctx, span := tracer.Start(ctx, "browser.Login")
	defer endSpan(span, &err)

	creds, err := f.credentials()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "initiating login to CRM")

	page, err := f.launcher.Launch(ctx)
	if err != nil {
		return nil, &LoginError{Stage: "launch", Err: err}
	}
	session := newSession(page)
	span.SetAttributes(attribute.String("session.id", session.ID))

	handedOff := false
	defer func() {
		if !handedOff {
			closeSession(ctx, session)
		}
	}()

	if err := page.Navigate(ctx, f.loginURL); err != nil {
		return nil, &LoginError{Stage: "navigate", Err: err}
	}
	slog.InfoContext(ctx, "navigated to login page", "session_id", session.ID)

	if err := f.fillForm(ctx, page, creds); err != nil {
		return nil, &LoginError{Stage: "form", Err: err}
	}

	if err := f.submit(ctx, page); err != nil {
		return nil, &LoginError{Stage: "submit", Err: err}
	}

	if err := f.waitSettled(ctx, page); err != nil {
		return nil, &LoginError{Stage: "submit", Err: err}
	}

	if location, err := page.Location(ctx); err == nil {
		slog.InfoContext(ctx, "verifying login", "session_id", session.ID, "url", location)
	}
	f.saveScreenshot(ctx, page)

	if selector, ok := f.verify(ctx, page); ok {
		slog.InfoContext(ctx, "login verified", "session_id", session.ID, "selector", selector)
		handedOff = true
		return session, nil
	}

	message := f.pageError(ctx, page)
	slog.ErrorContext(ctx, "login verification failed", "session_id", session.ID, "reason", message)
	return nil, &LoginError{Stage: "verify", Message: message}
}

// Attach starts a browser with token injected as a cookie and verifies that
// the portal dashboard is reachable without going through the login form.
func (f *Flow) Attach(ctx context.Context, token, name string) (_ *Session, err error) {
	ctx, span := tracer.Start(ctx, "browser.Attach", trace.WithAttributes(attribute.String("token.name", name)))
	defer endSpan(span, &err)

	slog.InfoContext(ctx, "creating browser session with existing token", "token_name", name)

	page, err := f.launcher.Launch(ctx)
	if err != nil {
		return nil, &LoginError{Stage: "launch", Err: err}
	}
	session := newSession(page)
	session.Token = token

	handedOff := false
	defer func() {
		if !handedOff {
			closeSession(ctx, session)
		}
	}()

	cookie := Cookie{Name: name, Value: token, Domain: f.domain, Path: "/"}
	if err := page.SetCookie(ctx, cookie); err != nil {
		return nil, &LoginError{Stage: "navigate", Err: fmt.Errorf("setting token cookie: %w", err)}
	}

	if err := page.Navigate(ctx, f.landingURL); err != nil {
		return nil, &LoginError{Stage: "navigate", Err: err}
	}
	slog.InfoContext(ctx, "navigated to landing page with existing token", "session_id", session.ID)

	if err := f.waitSettled(ctx, page); err != nil {
		return nil, &LoginError{Stage: "verify", Err: err}
	}

	if selector, ok := f.verify(ctx, page); ok {
		slog.InfoContext(ctx, "token authentication verified", "session_id", session.ID, "selector", selector)
		handedOff = true
		return session, nil
	}

	return nil, &LoginError{Stage: "verify", Message: "dashboard not reachable with token"}
}

// ExtractToken reads the token cookie called name from the session, falling
// back to the FOCUSINUSE cookie. The token is recorded on the session.
func (f *Flow) ExtractToken(ctx context.Context, session *Session, name string) (string, error) {
	slog.InfoContext(ctx, "attempting to extract token", "token_name", name, "session_id", session.ID)

	cookies, err := session.Page.Cookies(ctx)
	if err != nil {
		return "", fmt.Errorf("reading cookies: %w", err)
	}

	candidates := []string{name}
	if name != FallbackCookie {
		candidates = append(candidates, FallbackCookie)
	}

	for _, candidate := range candidates {
		for _, c := range cookies {
			if c.Name == candidate && c.Value != "" {
				slog.InfoContext(ctx, "token found", "cookie", candidate, "prefix", Redact(c.Value))
				session.Token = c.Value
				return c.Value, nil
			}
		}
	}

	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	slog.DebugContext(ctx, "available cookies", "names", names)

	return "", fmt.Errorf("%w: %s", ErrTokenNotExtracted, name)
}

// NewToken logs in, extracts the token called name and closes the browser.
func (f *Flow) NewToken(ctx context.Context, name string) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "browser.NewToken", trace.WithAttributes(attribute.String("token.name", name)))
	defer endSpan(span, &err)

	session, err := f.Login(ctx)
	if err != nil {
		return "", err
	}
	defer closeSession(ctx, session)

	return f.ExtractToken(ctx, session, name)
}

func (f *Flow) fillForm(ctx context.Context, page Page, creds Credentials) error {
	waitCtx, cancel := context.WithTimeout(ctx, f.formTimeout)
	defer cancel()

	if err := page.WaitReady(waitCtx, usernameSelector); err != nil {
		return fmt.Errorf("waiting for login form: %w", err)
	}
	if err := page.Fill(ctx, usernameSelector, creds.Username); err != nil {
		return fmt.Errorf("filling username: %w", err)
	}
	if err := page.Fill(ctx, passwordSelector, creds.Password); err != nil {
		return fmt.Errorf("filling password: %w", err)
	}
	return nil
}

// submit clicks the first login button present, or falls back to a script click.
func (f *Flow) submit(ctx context.Context, page Page) error {
	for _, selector := range loginButtonSelectors {
		found, err := page.Exists(ctx, selector)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		slog.InfoContext(ctx, "found login button", "selector", selector)
		return page.Click(ctx, selector)
	}

	slog.WarnContext(ctx, "no login button selector matched, trying script click")
	var clicked bool
	return page.Evaluate(ctx, submitFallbackScript, &clicked)
}

func (f *Flow) waitSettled(ctx context.Context, page Page) error {
	settleCtx, cancel := context.WithTimeout(ctx, f.settleTimeout)
	defer cancel()
	return page.WaitSettled(settleCtx)
}

// verify returns the first dashboard selector found within the per-indicator timeout.
func (f *Flow) verify(ctx context.Context, page Page) (string, bool) {
	for _, selector := range dashboardSelectors {
		waitCtx, cancel := context.WithTimeout(ctx, f.indicatorTimeout)
		err := page.WaitReady(waitCtx, selector)
		cancel()
		if err == nil {
			return selector, true
		}
		if ctx.Err() != nil {
			return "", false
		}
	}
	return "", false
}

// pageError returns the portal's visible error text, or "Unknown error".
func (f *Flow) pageError(ctx context.Context, page Page) string {
	if html, err := page.HTML(ctx); err == nil {
		slog.DebugContext(ctx, "page content excerpt", "html", truncate(html, 500))
	}

	found, err := page.Exists(ctx, errorMessageSelector)
	if err != nil || !found {
		return "Unknown error"
	}
	text, err := page.Text(ctx, errorMessageSelector)
	if err != nil || text == "" {
		return "Unknown error"
	}
	return text
}

func (f *Flow) saveScreenshot(ctx context.Context, page Page) {
	if f.screenshotDir == "" {
		return
	}

	data, err := page.Screenshot(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to capture screenshot", "error", err)
		return
	}

	if err := os.MkdirAll(f.screenshotDir, 0700); err != nil {
		slog.WarnContext(ctx, "failed to create screenshot directory", "error", err)
		return
	}
	path := filepath.Join(f.screenshotDir, screenshotName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		slog.WarnContext(ctx, "failed to save screenshot", "error", err)
		return
	}
	slog.InfoContext(ctx, "saved screenshot", "path", path)
}

func closeSession(ctx context.Context, session *Session) {
	if err := session.Close(); err != nil {
		slog.WarnContext(ctx, "error closing browser", "session_id", session.ID, "error", err)
	}
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}

// Redact returns the first characters of a token, for logging.
func Redact(token string) string {
	const keep = 10
	if len(token) <= keep {
		return token[:len(token)/2] + "..."
	}
	return token[:keep] + "..."
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsConfigError reports whether err is a configuration problem that a retry cannot fix.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMissingCredentials)
}
