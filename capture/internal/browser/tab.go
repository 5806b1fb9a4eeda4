package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// Tab wraps a Rod page for one capture session.
type Tab struct {
	Page    *rod.Page
	PageURL string
	Domain  string
}

// OpenTab creates a stealth tab for the URL without navigating. Navigation
// is deferred so instrumentation can be installed first — the whole point of
// document-start injection is to wrap fetch before page code sees it.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	u, err := url.Parse(pageURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("browser: invalid page url %q", pageURL)
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	return &Tab{
		Page:    page.Context(ctx),
		PageURL: pageURL,
		Domain:  u.Hostname(),
	}, nil
}

// Navigate loads the tab's URL and waits for the load event, bounded by a
// timeout. A load timeout is not fatal: capture hooks are already installed
// and events flow regardless.
func (t *Tab) Navigate(ctx context.Context, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := t.Page.Context(navCtx).Navigate(t.PageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", t.PageURL, err)
	}
	if err := t.Page.Context(navCtx).WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", t.PageURL, err)
	}
	return nil
}

// CookieNames returns the names of cookies visible to the tab's page.
func (t *Tab) CookieNames(ctx context.Context) ([]string, error) {
	cookies, err := t.Page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("browser: cookies: %w", err)
	}
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	return names, nil
}

// StorageKeys returns localStorage and sessionStorage key names.
func (t *Tab) StorageKeys(ctx context.Context) ([]string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => {
		const keys = [];
		try {
			for (let i = 0; i < localStorage.length; i++) keys.push(localStorage.key(i));
			for (let i = 0; i < sessionStorage.length; i++) keys.push(sessionStorage.key(i));
		} catch (e) { /* storage blocked */ }
		return keys;
	}`)
	if err != nil {
		return nil, fmt.Errorf("browser: storage keys: %w", err)
	}

	var keys []string
	for _, v := range res.Value.Arr() {
		keys = append(keys, v.Str())
	}
	return keys, nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
