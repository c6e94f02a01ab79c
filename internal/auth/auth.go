// Package auth drives the site's sign-in flow: a full credential login on
// desktop and a username-only recovery on mobile, where the session is
// expected to come from restored state.
package auth

import (
	"errors"
	"time"

	"github.com/xkilldash9x/burstline/internal/browser"
	"github.com/xkilldash9x/burstline/internal/config"
)

// ErrSessionRejected is returned by the mobile flow when the restored session
// no longer authenticates the identity and the site asks for a password.
var ErrSessionRejected = errors.New("restored session rejected: password requested")

// Prompt is one optional post-login interstitial and its dismiss control.
type Prompt struct {
	Name     string
	Selector browser.Selector
}

// Selectors locates every control the flows touch.
type Selectors struct {
	SignIn       browser.Selector
	Username     browser.Selector
	Password     browser.Selector
	Next         browser.Selector
	MobileMenu   browser.Selector
	MobileSignIn browser.Selector
	Prompts      []Prompt
}

// SelectorsFromConfig parses the configured selector strings.
func SelectorsFromConfig(site config.SiteConfig) Selectors {
	s := site.Selectors
	out := Selectors{
		SignIn:       browser.ParseSelector(s.SignIn),
		Username:     browser.ParseSelector(s.Username),
		Password:     browser.ParseSelector(s.Password),
		Next:         browser.ParseSelector(s.Next),
		MobileMenu:   browser.ParseSelector(s.MobileMenu),
		MobileSignIn: browser.ParseSelector(s.MobileSignIn),
	}
	for _, p := range site.Prompts {
		out.Prompts = append(out.Prompts, Prompt{Name: p.Name, Selector: browser.ParseSelector(p.Selector)})
	}
	return out
}

// Timeouts bounds the optional-element probes.
type Timeouts struct {
	// Probe bounds sign-in affordance checks.
	Probe time.Duration
	// Prompt bounds the first post-login prompt probe.
	Prompt time.Duration
	// Settled bounds the remaining prompt probes once one has missed.
	Settled time.Duration
}

// TimeoutsFromConfig reads the probe timeouts of the browser section.
func TimeoutsFromConfig(b config.BrowserConfig) Timeouts {
	return Timeouts{Probe: b.ProbeTimeout, Prompt: b.PromptTimeout, Settled: b.SettledProbeTimeout}
}
