// internal/browser/pwdriver/convert.go
package pwdriver

import (
	"github.com/playwright-community/playwright-go"

	"github.com/xkilldash9x/burstline/internal/browser"
)

func fromStorageState(st *playwright.StorageState) *browser.State {
	out := &browser.State{Cookies: []browser.Cookie{}, Origins: []browser.OriginState{}}
	if st == nil {
		return out
	}
	for _, c := range st.Cookies {
		bc := browser.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			bc.SameSite = string(*c.SameSite)
		}
		out.Cookies = append(out.Cookies, bc)
	}
	for _, o := range st.Origins {
		origin := browser.OriginState{Origin: o.Origin, LocalStorage: make([]browser.NameValue, 0, len(o.LocalStorage))}
		for _, kv := range o.LocalStorage {
			origin.LocalStorage = append(origin.LocalStorage, browser.NameValue{Name: kv.Name, Value: kv.Value})
		}
		out.Origins = append(out.Origins, origin)
	}
	return out
}

func toOptionalStorageState(s *browser.State) *playwright.OptionalStorageState {
	out := &playwright.OptionalStorageState{}
	for _, c := range s.Cookies {
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			Expires:  playwright.Float(c.Expires),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		if c.SameSite != "" {
			ss := playwright.SameSiteAttribute(c.SameSite)
			oc.SameSite = &ss
		}
		out.Cookies = append(out.Cookies, oc)
	}
	for _, o := range s.Origins {
		po := playwright.Origin{Origin: o.Origin}
		for _, kv := range o.LocalStorage {
			po.LocalStorage = append(po.LocalStorage, playwright.NameValue{Name: kv.Name, Value: kv.Value})
		}
		out.Origins = append(out.Origins, po)
	}
	return out
}
