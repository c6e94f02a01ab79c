// internal/browser/cdpdriver/page.go
package cdpdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
	"github.com/xkilldash9x/burstline/internal/browser/stealth"
)

type browserContext struct {
	launcher *Launcher
	profile  browser.Profile
	logger   *zap.Logger

	rootCtx    context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	actTimeout time.Duration

	mu        sync.Mutex
	pages     []*tab
	closeOnce sync.Once
}

func (c *browserContext) NewPage(ctx context.Context) (browser.Page, error) {
	c.mu.Lock()
	tabCtx, tabCancel := c.rootCtx, context.CancelFunc(func() {})
	if len(c.pages) > 0 {
		tabCtx, tabCancel = chromedp.NewContext(c.rootCtx)
	}
	c.mu.Unlock()
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	t := &tab{ctx: tabCtx, cancel: tabCancel, navTimeout: c.navTimeout, actTimeout: c.actTimeout}
	t.idle = newIdleTracker()

	tasks := chromedp.Tasks{
		page.Enable(),
		page.SetLifecycleEventsEnabled(true),
		stealth.Apply(c.profile, c.logger),
	}
	if script := localStorageScript(c.profile.State); script != "" {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}))
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok {
			t.onLifecycle(e)
		}
	})

	runCtx, cancel := withTimeout(tabCtx, ctx, c.navTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, tasks); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to prepare page: %w", err)
	}

	c.mu.Lock()
	c.pages = append(c.pages, t)
	c.mu.Unlock()
	return t, nil
}

func (c *browserContext) ExportState(ctx context.Context) (*browser.State, error) {
	c.mu.Lock()
	pages := append([]*tab(nil), c.pages...)
	c.mu.Unlock()

	runCtx, cancel := withTimeout(c.rootCtx, ctx, c.actTimeout)
	defer cancel()

	state := &browser.State{Cookies: []browser.Cookie{}, Origins: []browser.OriginState{}}
	if err := chromedp.Run(runCtx, exportCookies(state)); err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	for _, t := range pages {
		origin, err := t.localStorage(ctx)
		if err != nil {
			return nil, err
		}
		if origin != nil {
			state.Origins = mergeOrigin(state.Origins, *origin)
		}
	}
	return state, nil
}

func (c *browserContext) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		defer c.launcher.release(c)
		// Cancelling the root tab context closes the browser gracefully.
		c.cancel()
		c.logger.Debug("Browser context closed.")
	})
	return nil
}

// tab is one page target. Its lifecycle events feed an idle tracker so
// network idle can be awaited after navigation has already finished.
type tab struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	actTimeout time.Duration
	idle       *idleTracker
}

func (t *tab) onLifecycle(e *page.EventLifecycleEvent) {
	target := chromedp.FromContext(t.ctx).Target
	if target == nil || string(e.FrameID) != string(target.TargetID) {
		return
	}
	switch e.Name {
	case "init":
		t.idle.reset()
	case "networkIdle":
		t.idle.mark()
	}
}

func (t *tab) Goto(ctx context.Context, url string) error {
	runCtx, cancel := withTimeout(t.ctx, ctx, t.navTimeout)
	defer cancel()
	t.idle.reset()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (t *tab) WaitForNetworkIdle(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, t.navTimeout)
	defer cancel()
	if err := t.idle.wait(waitCtx); err != nil {
		return fmt.Errorf("failed waiting for network idle: %w", err)
	}
	return nil
}

func (t *tab) Locator(sel browser.Selector) browser.Locator {
	return &locator{tab: t, sel: sel}
}

func (t *tab) Wait(ctx context.Context, d time.Duration) error {
	return browser.Sleep(ctx, d)
}

func (t *tab) Reload(ctx context.Context) error {
	runCtx, cancel := withTimeout(t.ctx, ctx, t.navTimeout)
	defer cancel()
	t.idle.reset()
	if err := chromedp.Run(runCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	return nil
}

type locator struct {
	tab *tab
	sel browser.Selector
}

func (l *locator) query() (string, chromedp.QueryOption) {
	if l.sel.Kind == browser.ByText {
		return textXPath(l.sel.Value), chromedp.BySearch
	}
	return l.sel.Value, chromedp.ByQuery
}

func (l *locator) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := withTimeout(l.tab.ctx, ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (l *locator) WaitVisible(ctx context.Context, timeout time.Duration) error {
	q, by := l.query()
	err := l.run(ctx, timeout, chromedp.WaitVisible(q, by))
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return browser.ErrNotVisible
	}
	return err
}

func (l *locator) Click(ctx context.Context) error {
	q, by := l.query()
	if err := l.run(ctx, l.tab.actTimeout, chromedp.Click(q, by, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", l.sel, err)
	}
	return nil
}

// Fill replaces the field's value and types the new one so input events fire.
func (l *locator) Fill(ctx context.Context, value string) error {
	q, by := l.query()
	err := l.run(ctx, l.tab.actTimeout,
		chromedp.WaitVisible(q, by),
		chromedp.Focus(q, by),
		chromedp.SetValue(q, "", by),
		input.InsertText(value),
	)
	if err != nil {
		return fmt.Errorf("fill %s: %w", l.sel, err)
	}
	return nil
}

func (l *locator) Press(ctx context.Context, key string) error {
	q, by := l.query()
	if err := l.run(ctx, l.tab.actTimeout, chromedp.SendKeys(q, keyFor(key), by)); err != nil {
		return fmt.Errorf("press %s on %s: %w", key, l.sel, err)
	}
	return nil
}

func (l *locator) Count(ctx context.Context) (int, error) {
	q, by := l.query()
	var nodes []*cdp.Node
	if err := l.run(ctx, l.tab.actTimeout, chromedp.Nodes(q, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return 0, fmt.Errorf("count %s: %w", l.sel, err)
	}
	return len(nodes), nil
}

var namedKeys = map[string]string{
	"Enter":     kb.Enter,
	"Tab":       kb.Tab,
	"Escape":    kb.Escape,
	"Backspace": kb.Backspace,
}

func keyFor(name string) string {
	if k, ok := namedKeys[name]; ok {
		return k
	}
	return name
}

// textXPath matches elements owning a text node that contains value, the
// closest XPath equivalent of a text selector.
func textXPath(value string) string {
	return "//*[text()[contains(normalize-space(.), " + xpathLiteral(value) + ")]]"
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}

// idleTracker records whether the main frame has reached network idle since
// the last navigation started.
type idleTracker struct {
	mu   sync.Mutex
	done chan struct{}
	idle bool
}

func newIdleTracker() *idleTracker {
	return &idleTracker{done: make(chan struct{})}
}

func (it *idleTracker) reset() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.idle {
		it.idle = false
		it.done = make(chan struct{})
	}
}

func (it *idleTracker) mark() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.idle {
		it.idle = true
		close(it.done)
	}
}

func (it *idleTracker) wait(ctx context.Context) error {
	it.mu.Lock()
	done := it.done
	it.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withTimeout derives a context that carries target's chromedp values, ends
// when op ends, and is bounded by d when d is positive.
func withTimeout(target, op context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(target)
	stop := context.AfterFunc(op, cancel)
	if d <= 0 {
		return combined, func() { stop(); cancel() }
	}
	bounded, cancelTimeout := context.WithTimeout(combined, d)
	return bounded, func() { cancelTimeout(); stop(); cancel() }
}
