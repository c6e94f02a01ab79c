// Package browsertest provides an in-memory browser.Launcher that records
// every driver call in a single ordered log. Nothing sleeps: waits and probe
// timeouts are recorded and return immediately.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/burstline/internal/browser"
)

// Kind names a recorded driver call.
type Kind string

const (
	KindLaunch  Kind = "launch"
	KindNewPage Kind = "new_page"
	KindGoto    Kind = "goto"
	KindIdle    Kind = "network_idle"
	KindProbe   Kind = "probe"
	KindClick   Kind = "click"
	KindFill    Kind = "fill"
	KindPress   Kind = "press"
	KindCount   Kind = "count"
	KindWait    Kind = "wait"
	KindReload  Kind = "reload"
	KindExport  Kind = "export"
	KindClose   Kind = "close"
)

// SessionCookie is the cookie ExportState derives from the first value filled
// into a context, normally the username.
const SessionCookie = "fake_session"

// Event is one recorded call.
type Event struct {
	Seq     int
	Context int
	Profile string
	Kind    Kind
	Target  string
	Value   string
	// Duration is the probe timeout or wait length.
	Duration time.Duration
	// Hit reports whether a probe found the element visible.
	Hit bool
}

// Screen describes what a context's page shows. Selectors are keyed by
// their configuration form, e.g. "#id_s" or "text=Sim".
type Screen struct {
	Visible map[string]bool
	// Counts overrides Count; otherwise a visible selector counts 1.
	Counts map[string]int
	// Errors makes the named action fail, keyed by Kind then selector.
	Errors map[Kind]map[string]error
}

// Launcher is a fake browser.Launcher.
type Launcher struct {
	// ScreenFor picks the screen of every new context. Defaults to an empty screen.
	ScreenFor func(p browser.Profile) Screen
	// Hook runs before each recorded action; a non-nil error fails the action.
	Hook func(ctx context.Context, ev Event) error
	// LaunchErr fails every Launch.
	LaunchErr error

	mu       sync.Mutex
	events   []Event
	nextID   int
	profiles []browser.Profile
	open     int
}

var _ browser.Launcher = (*Launcher)(nil)

// Events returns a copy of the log.
func (l *Launcher) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// Filter returns the events of the given kinds in log order.
func (l *Launcher) Filter(kinds ...Kind) []Event {
	var out []Event
	for _, ev := range l.Events() {
		for _, k := range kinds {
			if ev.Kind == k {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// Profiles returns the profiles passed to Launch, in call order.
func (l *Launcher) Profiles() []browser.Profile {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.Profile(nil), l.profiles...)
}

// OpenContexts reports how many contexts have not been closed.
func (l *Launcher) OpenContexts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

func (l *Launcher) record(ctx context.Context, ev Event) error {
	if l.Hook != nil {
		if err := l.Hook(ctx, ev); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	ev.Seq = len(l.events)
	l.events = append(l.events, ev)
	l.mu.Unlock()
	return nil
}

// Launch opens a fake context.
func (l *Launcher) Launch(ctx context.Context, p browser.Profile) (browser.Context, error) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.profiles = append(l.profiles, p)
	l.mu.Unlock()

	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	if err := l.record(ctx, Event{Context: id, Profile: p.Name, Kind: KindLaunch, Value: UserOf(p.State)}); err != nil {
		return nil, err
	}

	screen := Screen{}
	if l.ScreenFor != nil {
		screen = l.ScreenFor(p)
	}
	l.mu.Lock()
	l.open++
	l.mu.Unlock()
	return &Context{launcher: l, id: id, profile: p, screen: screen}, nil
}

// Close is a no-op.
func (l *Launcher) Close(context.Context) error { return nil }

// UserOf returns the session cookie value of a state, or "".
func UserOf(s *browser.State) string {
	if s == nil {
		return ""
	}
	for _, c := range s.Cookies {
		if c.Name == SessionCookie {
			return c.Value
		}
	}
	return ""
}

// Context is a fake browsing context.
type Context struct {
	launcher *Launcher
	id       int
	profile  browser.Profile
	screen   Screen

	mu     sync.Mutex
	filled []string
	closed bool
}

func (c *Context) event(kind Kind, target, value string) Event {
	return Event{Context: c.id, Profile: c.profile.Name, Kind: kind, Target: target, Value: value}
}

func (c *Context) NewPage(ctx context.Context) (browser.Page, error) {
	if err := c.launcher.record(ctx, c.event(KindNewPage, "", "")); err != nil {
		return nil, err
	}
	return &Page{ctx: c}, nil
}

// ExportState returns the restored state with the session cookie replaced by
// the first value filled in this context, if any.
func (c *Context) ExportState(ctx context.Context) (*browser.State, error) {
	c.mu.Lock()
	var user string
	if len(c.filled) > 0 {
		user = c.filled[0]
	}
	c.mu.Unlock()

	if err := c.launcher.record(ctx, c.event(KindExport, "", user)); err != nil {
		return nil, err
	}

	state := c.profile.State.Clone()
	if state == nil {
		state = &browser.State{Cookies: []browser.Cookie{}, Origins: []browser.OriginState{}}
	}
	if user != "" {
		kept := state.Cookies[:0]
		for _, ck := range state.Cookies {
			if ck.Name != SessionCookie {
				kept = append(kept, ck)
			}
		}
		state.Cookies = append(kept, browser.Cookie{Name: SessionCookie, Value: user, Domain: ".example.test", Path: "/", Expires: -1})
	}
	return state, nil
}

func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.launcher.mu.Lock()
	c.launcher.open--
	c.launcher.mu.Unlock()
	// Closing is recorded even when ctx is already cancelled.
	return c.launcher.record(context.WithoutCancel(ctx), c.event(KindClose, "", ""))
}

// Page is a fake page.
type Page struct {
	ctx *Context
}

func (p *Page) Goto(ctx context.Context, url string) error {
	return p.ctx.launcher.record(ctx, p.ctx.event(KindGoto, url, ""))
}

func (p *Page) WaitForNetworkIdle(ctx context.Context) error {
	return p.ctx.launcher.record(ctx, p.ctx.event(KindIdle, "", ""))
}

func (p *Page) Locator(sel browser.Selector) browser.Locator {
	return &Locator{page: p, sel: sel.String()}
}

func (p *Page) Wait(ctx context.Context, d time.Duration) error {
	ev := p.ctx.event(KindWait, "", d.String())
	ev.Duration = d
	return p.ctx.launcher.record(ctx, ev)
}

func (p *Page) Reload(ctx context.Context) error {
	return p.ctx.launcher.record(ctx, p.ctx.event(KindReload, "", ""))
}

// Locator is a fake locator bound to one selector.
type Locator struct {
	page *Page
	sel  string
}

func (l *Locator) screen() Screen { return l.page.ctx.screen }

func (l *Locator) failure(kind Kind) error {
	if errs, ok := l.screen().Errors[kind]; ok {
		if err, ok := errs[l.sel]; ok {
			return err
		}
	}
	return nil
}

func (l *Locator) act(ctx context.Context, kind Kind, value string) error {
	if err := l.page.ctx.launcher.record(ctx, l.page.ctx.event(kind, l.sel, value)); err != nil {
		return err
	}
	if err := l.failure(kind); err != nil {
		return fmt.Errorf("%s %s: %w", kind, l.sel, err)
	}
	return nil
}

func (l *Locator) WaitVisible(ctx context.Context, timeout time.Duration) error {
	hit := l.screen().Visible[l.sel]
	ev := l.page.ctx.event(KindProbe, l.sel, "")
	ev.Duration = timeout
	ev.Hit = hit
	if err := l.page.ctx.launcher.record(ctx, ev); err != nil {
		return err
	}
	if err := l.failure(KindProbe); err != nil {
		return err
	}
	if !hit {
		return browser.ErrNotVisible
	}
	return nil
}

func (l *Locator) Click(ctx context.Context) error { return l.act(ctx, KindClick, "") }

func (l *Locator) Fill(ctx context.Context, value string) error {
	if err := l.act(ctx, KindFill, value); err != nil {
		return err
	}
	l.page.ctx.mu.Lock()
	l.page.ctx.filled = append(l.page.ctx.filled, value)
	l.page.ctx.mu.Unlock()
	return nil
}

func (l *Locator) Press(ctx context.Context, key string) error { return l.act(ctx, KindPress, key) }

func (l *Locator) Count(ctx context.Context) (int, error) {
	if err := l.act(ctx, KindCount, ""); err != nil {
		return 0, err
	}
	s := l.screen()
	if n, ok := s.Counts[l.sel]; ok {
		return n, nil
	}
	if s.Visible[l.sel] {
		return 1, nil
	}
	return 0, nil
}
