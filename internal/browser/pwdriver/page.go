// internal/browser/pwdriver/page.go
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
)

type browserContext struct {
	ctx      playwright.BrowserContext
	launcher *Launcher
	logger   *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

func (c *browserContext) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &page{page: p}, nil
}

func (c *browserContext) ExportState(ctx context.Context) (*browser.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := c.ctx.StorageState()
	if err != nil {
		return nil, fmt.Errorf("failed to read storage state: %w", err)
	}
	return fromStorageState(st), nil
}

func (c *browserContext) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		defer c.launcher.release(c)
		if err := c.ctx.Close(); err != nil {
			c.closeErr = fmt.Errorf("failed to close context: %w", err)
		}
		c.logger.Debug("Browser context closed.")
	})
	return c.closeErr
}

type page struct {
	page playwright.Page
}

func (p *page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.page.Goto(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *page) WaitForNetworkIdle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: playwright.LoadStateNetworkidle})
	if err != nil {
		return fmt.Errorf("failed waiting for network idle: %w", err)
	}
	return nil
}

func (p *page) Locator(sel browser.Selector) browser.Locator {
	var loc playwright.Locator
	if sel.Kind == browser.ByText {
		loc = p.page.GetByText(sel.Value)
	} else {
		loc = p.page.Locator(sel.Value)
	}
	return &locator{all: loc, loc: loc.First(), sel: sel}
}

func (p *page) Wait(ctx context.Context, d time.Duration) error {
	return browser.Sleep(ctx, d)
}

func (p *page) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.page.Reload(); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	return nil
}

// locator acts on the first match so a selector that matches several
// elements never trips Playwright's strict mode.
type locator struct {
	all playwright.Locator
	loc playwright.Locator
	sel browser.Selector
}

func (l *locator) WaitVisible(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := l.loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(durationMs(timeout)),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return browser.ErrNotVisible
	}
	return err
}

func (l *locator) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.loc.Click(); err != nil {
		return fmt.Errorf("click %s: %w", l.sel, err)
	}
	return nil
}

func (l *locator) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.loc.Fill(value); err != nil {
		return fmt.Errorf("fill %s: %w", l.sel, err)
	}
	return nil
}

func (l *locator) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.loc.Press(key); err != nil {
		return fmt.Errorf("press %s on %s: %w", key, l.sel, err)
	}
	return nil
}

func (l *locator) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.all.Count()
}
