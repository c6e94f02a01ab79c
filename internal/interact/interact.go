// Package interact holds the tolerant UI primitives shared by the login and
// search flows: elements that may or may not appear are probed with a bounded
// wait instead of being treated as failures.
package interact

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
)

// Probe waits up to timeout for sel to become visible. Absence and probe
// errors both yield (nil, false); only a cancelled ctx is worth telling apart,
// and callers observe that on their next blocking call.
func Probe(ctx context.Context, page browser.Page, sel browser.Selector, timeout time.Duration) (browser.Locator, bool) {
	if sel.IsZero() {
		return nil, false
	}
	loc := page.Locator(sel)
	if err := loc.WaitVisible(ctx, timeout); err != nil {
		return nil, false
	}
	return loc, true
}

// AcceptIfVisible clicks sel if it becomes visible within timeout. It reports
// whether the click happened. A failing click is logged at debug and
// reported as false.
func AcceptIfVisible(ctx context.Context, logger *zap.Logger, page browser.Page, sel browser.Selector, timeout time.Duration) bool {
	loc, ok := Probe(ctx, page, sel, timeout)
	if !ok {
		return false
	}
	if err := loc.Click(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Debug("Visible element could not be clicked.", zap.Stringer("selector", sel), zap.Error(err))
		}
		return false
	}
	return true
}

// Present reports whether at least one element currently matches sel,
// without waiting for it to appear.
func Present(ctx context.Context, page browser.Page, sel browser.Selector) bool {
	if sel.IsZero() {
		return false
	}
	n, err := page.Locator(sel).Count(ctx)
	return err == nil && n > 0
}
