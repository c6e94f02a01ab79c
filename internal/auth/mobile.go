package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
	"github.com/xkilldash9x/burstline/internal/interact"
)

// Mobile re-checks a restored session. It never receives a password.
type Mobile struct {
	sel      Selectors
	timeouts Timeouts
	logger   *zap.Logger
}

// NewMobile creates a mobile session check.
func NewMobile(sel Selectors, timeouts Timeouts, logger *zap.Logger) *Mobile {
	return &Mobile{sel: sel, timeouts: timeouts, logger: logger.Named("auth.mobile")}
}

// Ensure leaves page signed in as username, relying on the restored state.
// When the page shows sign-in affordances it opens the menu, follows the
// sign-in link and submits the username. If the identity provider then asks
// for a password the restored session is not usable and ErrSessionRejected
// is returned. It reports whether a re-authentication was attempted.
func (m *Mobile) Ensure(ctx context.Context, page browser.Page, username string) (bool, error) {
	menu, menuVisible := interact.Probe(ctx, page, m.sel.MobileMenu, m.timeouts.Probe)
	if !menuVisible && !interact.Present(ctx, page, m.sel.Username) {
		if _, ok := interact.Probe(ctx, page, m.sel.MobileSignIn, m.timeouts.Probe); !ok {
			m.logger.Debug("No sign-in affordance visible, restored session accepted.")
			return false, ctx.Err()
		}
	}

	m.logger.Info("Sign-in affordance visible, re-authenticating with username.")
	if menuVisible {
		if err := menu.Click(ctx); err != nil {
			return true, fmt.Errorf("open mobile menu: %w", err)
		}
	}
	interact.AcceptIfVisible(ctx, m.logger, page, m.sel.MobileSignIn, m.timeouts.Probe)

	if field, ok := interact.Probe(ctx, page, m.sel.Username, m.timeouts.Probe); ok {
		if err := field.Fill(ctx, username); err != nil {
			return true, fmt.Errorf("fill %s: %w", m.sel.Username, err)
		}
		if err := page.Locator(m.sel.Next).Click(ctx); err != nil {
			return true, fmt.Errorf("click %s: %w", m.sel.Next, err)
		}
	}

	if _, asked := interact.Probe(ctx, page, m.sel.Password, m.timeouts.Settled); asked {
		return true, ErrSessionRejected
	}
	return true, ctx.Err()
}
