// internal/browser/driver.go
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNotVisible is returned by Locator.WaitVisible when the element did not
// become visible before the timeout elapsed.
var ErrNotVisible = errors.New("element not visible")

// Launcher opens isolated browsing contexts. Implementations own the browser
// process and must be safe for concurrent Launch calls.
type Launcher interface {
	Launch(ctx context.Context, profile Profile) (Context, error)
	// Close releases the browser process. Contexts still open are torn down.
	Close(ctx context.Context) error
}

// Context is one isolated browsing context. It is owned by a single task.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	// ExportState snapshots cookies and local storage of every open page.
	ExportState(ctx context.Context) (*State, error)
	Close(ctx context.Context) error
}

// Page is a single tab within a Context.
type Page interface {
	Goto(ctx context.Context, url string) error
	WaitForNetworkIdle(ctx context.Context) error
	Locator(sel Selector) Locator
	// Wait pauses the page's task for d, returning early with ctx.Err() on cancellation.
	Wait(ctx context.Context, d time.Duration) error
	Reload(ctx context.Context) error
}

// Locator lazily resolves a selector against a page. No call fails merely
// because the element does not exist yet, except the action methods, which
// fail once the driver's action timeout elapses.
type Locator interface {
	// WaitVisible blocks until the element is visible or the timeout elapses,
	// in which case it returns ErrNotVisible.
	WaitVisible(ctx context.Context, timeout time.Duration) error
	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Press(ctx context.Context, key string) error
	// Count reports how many elements currently match, without waiting.
	Count(ctx context.Context) (int, error)
}

// Sleep waits for d or until ctx is done. Drivers use it to implement Page.Wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
