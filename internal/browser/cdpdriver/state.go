// internal/browser/cdpdriver/state.go
package cdpdriver

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/burstline/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func restoreCookies(state *browser.State) chromedp.Action {
	params := cookieParams(state)
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(params) == 0 {
			return nil
		}
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("failed to enable network domain: %w", err)
		}
		return network.SetCookies(params).Do(ctx)
	})
}

func cookieParams(state *browser.State) []*network.CookieParam {
	if state.IsEmpty() {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: sameSiteToCDP(c.SameSite),
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			ts := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
			p.Expires = &ts
		}
		params = append(params, p)
	}
	return params
}

func exportCookies(state *browser.State) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		state.Cookies = append(state.Cookies, cookiesFromCDP(cookies)...)
		return nil
	})
}

func cookiesFromCDP(cookies []*network.Cookie) []browser.Cookie {
	out := make([]browser.Cookie, 0, len(cookies))
	for _, c := range cookies {
		expires := c.Expires
		if c.Session {
			expires = -1
		}
		out = append(out, browser.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return out
}

func sameSiteToCDP(s string) network.CookieSameSite {
	switch strings.ToLower(s) {
	case "strict":
		return network.CookieSameSiteStrict
	case "lax":
		return network.CookieSameSiteLax
	case "none":
		return network.CookieSameSiteNone
	default:
		return ""
	}
}

// localStorageScript returns an init script that seeds localStorage for each
// saved origin the first time a document of that origin loads.
func localStorageScript(state *browser.State) string {
	if state.IsEmpty() || len(state.Origins) == 0 {
		return ""
	}
	seeds := make(map[string][][2]string, len(state.Origins))
	for _, o := range state.Origins {
		for _, kv := range o.LocalStorage {
			seeds[o.Origin] = append(seeds[o.Origin], [2]string{kv.Name, kv.Value})
		}
	}
	if len(seeds) == 0 {
		return ""
	}
	data, err := json.Marshal(seeds)
	if err != nil {
		return ""
	}
	return `(() => {
  const seeds = ` + string(data) + `;
  const entries = seeds[location.origin];
  if (!entries) return;
  try {
    for (const [k, v] of entries) {
      if (localStorage.getItem(k) === null) localStorage.setItem(k, v);
    }
  } catch (e) {}
})();`
}

const snapshotLocalStorage = `({origin: location.origin, entries: (() => { try { return Object.entries(localStorage); } catch (e) { return []; } })()})`

type storageSnapshot struct {
	Origin  string      `json:"origin"`
	Entries [][2]string `json:"entries"`
}

func (t *tab) localStorage(ctx context.Context) (*browser.OriginState, error) {
	runCtx, cancel := withTimeout(t.ctx, ctx, t.actTimeout)
	defer cancel()

	var snap storageSnapshot
	if err := chromedp.Run(runCtx, chromedp.Evaluate(snapshotLocalStorage, &snap)); err != nil {
		return nil, fmt.Errorf("failed to read local storage: %w", err)
	}
	if snap.Origin == "" || snap.Origin == "null" {
		return nil, nil
	}
	origin := &browser.OriginState{Origin: snap.Origin, LocalStorage: make([]browser.NameValue, 0, len(snap.Entries))}
	for _, e := range snap.Entries {
		origin.LocalStorage = append(origin.LocalStorage, browser.NameValue{Name: e[0], Value: e[1]})
	}
	return origin, nil
}

// mergeOrigin adds o to origins, replacing an existing entry for the same origin.
func mergeOrigin(origins []browser.OriginState, o browser.OriginState) []browser.OriginState {
	for i := range origins {
		if origins[i].Origin == o.Origin {
			origins[i] = o
			return origins
		}
	}
	return append(origins, o)
}
