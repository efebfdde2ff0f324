package browser

import (
	"context"
	"errors"
	"sync"
)

// fakePage is a scripted Page. Selectors listed in present match immediately;
// all others never appear.
type fakePage struct {
	mu sync.Mutex

	present     map[string]bool
	texts       map[string]string
	cookies     []Cookie
	navigateErr error
	evaluateErr error

	navigations []string
	fills       map[string]string
	clicks      []string
	evaluated   []string
	setCookies  []Cookie
	closed      int
}

func newFakePage(present ...string) *fakePage {
	p := &fakePage{
		present: make(map[string]bool),
		texts:   make(map[string]string),
		fills:   make(map[string]string),
	}
	for _, s := range present {
		p.present[s] = true
	}
	return p
}

func (p *fakePage) has(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present[selector]
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, url)
	return p.navigateErr
}

func (p *fakePage) WaitReady(ctx context.Context, selector string) error {
	if p.has(selector) {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) Exists(_ context.Context, selector string) (bool, error) {
	return p.has(selector), nil
}

func (p *fakePage) Fill(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fills[selector] = value
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	return nil
}

func (p *fakePage) Evaluate(_ context.Context, expression string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evaluated = append(p.evaluated, expression)
	return p.evaluateErr
}

func (p *fakePage) WaitSettled(context.Context) error { return nil }

func (p *fakePage) Text(_ context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[selector], nil
}

func (p *fakePage) HTML(context.Context) (string, error) { return "<html></html>", nil }

func (p *fakePage) Location(context.Context) (string, error) { return DefaultLoginURL, nil }

func (p *fakePage) Cookies(context.Context) ([]Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Cookie(nil), p.cookies...), nil
}

func (p *fakePage) SetCookie(_ context.Context, cookie Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setCookies = append(p.setCookies, cookie)
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePage) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeLauncher hands out pages in order.
type fakeLauncher struct {
	mu       sync.Mutex
	pages    []*fakePage
	launched int
}

func (l *fakeLauncher) Launch(context.Context) (Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launched >= len(l.pages) {
		return nil, errors.New("no browser available")
	}
	p := l.pages[l.launched]
	l.launched++
	return p, nil
}
