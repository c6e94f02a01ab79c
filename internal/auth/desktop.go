package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
	"github.com/xkilldash9x/burstline/internal/interact"
)

// State is a step of the desktop login.
type State int

const (
	Unauthenticated State = iota
	SignInOpened
	UsernameEntered
	PasswordEntered
	PostLoginPrompts
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case SignInOpened:
		return "sign_in_opened"
	case UsernameEntered:
		return "username_entered"
	case PasswordEntered:
		return "password_entered"
	case PostLoginPrompts:
		return "post_login_prompts"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StepError records the state the login was in when a mandatory step failed.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("desktop sign-in failed in state %s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Desktop performs the full credential login.
type Desktop struct {
	sel      Selectors
	timeouts Timeouts
	logger   *zap.Logger
}

// NewDesktop creates a desktop login flow.
func NewDesktop(sel Selectors, timeouts Timeouts, logger *zap.Logger) *Desktop {
	return &Desktop{sel: sel, timeouts: timeouts, logger: logger.Named("auth.desktop")}
}

// desktopRun holds the per-call machine state.
type desktopRun struct {
	*Desktop
	page    browser.Page
	state   State
	settled bool
	logger  *zap.Logger
}

// SignIn walks page from Unauthenticated to Authenticated. Optional controls
// are probed; the username, password and their "next" clicks are mandatory.
func (d *Desktop) SignIn(ctx context.Context, page browser.Page, username, password string) (State, error) {
	r := &desktopRun{Desktop: d, page: page, state: Unauthenticated, logger: d.logger}

	if loc, ok := interact.Probe(ctx, page, d.sel.SignIn, d.timeouts.Probe); ok {
		if err := loc.Click(ctx); err != nil {
			return r.state, &StepError{State: r.state, Err: fmt.Errorf("click %s: %w", d.sel.SignIn, err)}
		}
	} else {
		r.logger.Debug("Sign-in control not visible, assuming the login form is already shown.")
	}
	r.to(SignInOpened)

	if err := r.fillAndAdvance(ctx, d.sel.Username, username); err != nil {
		return r.state, err
	}
	r.to(UsernameEntered)

	if err := r.fillAndAdvance(ctx, d.sel.Password, password); err != nil {
		return r.state, err
	}
	r.to(PasswordEntered)

	r.to(PostLoginPrompts)
	for _, p := range d.sel.Prompts {
		if err := ctx.Err(); err != nil {
			return r.state, &StepError{State: r.state, Err: err}
		}
		r.prompt(ctx, p)
	}

	r.to(Authenticated)
	return r.state, nil
}

func (r *desktopRun) to(next State) {
	r.logger.Debug("Sign-in transition.", zap.Stringer("from", r.state), zap.Stringer("to", next))
	r.state = next
}

func (r *desktopRun) fillAndAdvance(ctx context.Context, field browser.Selector, value string) error {
	if err := r.page.Locator(field).Fill(ctx, value); err != nil {
		return &StepError{State: r.state, Err: fmt.Errorf("fill %s: %w", field, err)}
	}
	if err := r.page.Locator(r.sel.Next).Click(ctx); err != nil {
		return &StepError{State: r.state, Err: fmt.Errorf("click %s: %w", r.sel.Next, err)}
	}
	return nil
}

// prompt handles one optional interstitial. The first miss marks the page as
// settled; later prompts then get the short timeout.
func (r *desktopRun) prompt(ctx context.Context, p Prompt) {
	timeout := r.timeouts.Prompt
	if r.settled {
		timeout = r.timeouts.Settled
	}
	if interact.AcceptIfVisible(ctx, r.logger, r.page, p.Selector, timeout) {
		r.logger.Info("Dismissed post-login prompt.", zap.String("prompt", p.Name))
		return
	}
	r.logger.Debug("Post-login prompt absent.", zap.String("prompt", p.Name), zap.Duration("waited", timeout))
	r.settled = true
}
