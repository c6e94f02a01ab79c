package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
	"github.com/xkilldash9x/burstline/internal/config"
)

//go:embed evasions.js
var EvasionsJS string

// DesktopDevice is the viewport used for the desktop stage.
var DesktopDevice = browser.Device{Name: "Desktop", Width: 1280, Height: 720, ScaleFactor: 1}

// devices holds the emulated handsets, keyed by the names Playwright uses for them.
var devices = map[string]browser.Device{
	"iPhone 13":     {Name: "iPhone 13", Width: 390, Height: 664, ScaleFactor: 3, Mobile: true, Touch: true},
	"iPhone 13 Pro": {Name: "iPhone 13 Pro", Width: 390, Height: 664, ScaleFactor: 3, Mobile: true, Touch: true},
	"iPhone 14":     {Name: "iPhone 14", Width: 390, Height: 664, ScaleFactor: 3, Mobile: true, Touch: true},
	"Pixel 7":       {Name: "Pixel 7", Width: 412, Height: 839, ScaleFactor: 2.625, Mobile: true, Touch: true},
	"Galaxy S9+":    {Name: "Galaxy S9+", Width: 320, Height: 658, ScaleFactor: 4.5, Mobile: true, Touch: true},
}

// LookupDevice returns a known handset descriptor.
func LookupDevice(name string) (browser.Device, error) {
	d, ok := devices[name]
	if !ok {
		return browser.Device{}, fmt.Errorf("unknown mobile device %q", name)
	}
	return d, nil
}

// DesktopProfile builds the desktop persona from configuration.
func DesktopProfile(cfg config.BrowserConfig) browser.Profile {
	return browser.Profile{
		Name:        "desktop",
		UserAgent:   cfg.DesktopUserAgent,
		Device:      DesktopDevice,
		Locale:      cfg.Locale,
		Timezone:    cfg.Timezone,
		Geolocation: &browser.Geolocation{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
		Permissions: []string{"geolocation"},
		InitScripts: []string{EvasionsJS},
	}
}

// MobileProfile builds the mobile persona. The handset's viewport and touch
// support come from the device table, the user agent from configuration.
func MobileProfile(cfg config.BrowserConfig) (browser.Profile, error) {
	device, err := LookupDevice(cfg.MobileDevice)
	if err != nil {
		return browser.Profile{}, err
	}
	return browser.Profile{
		Name:        "mobile",
		UserAgent:   cfg.MobileUserAgent,
		Device:      device,
		Locale:      cfg.Locale,
		Timezone:    cfg.Timezone,
		Geolocation: &browser.Geolocation{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
		Permissions: []string{"geolocation"},
		InitScripts: []string{EvasionsJS},
	}, nil
}

// AcceptLanguage renders a header value for a BCP 47 locale, e.g. "pt-BR,pt;q=0.9".
func AcceptLanguage(locale string) string {
	if locale == "" {
		return ""
	}
	base, _, found := strings.Cut(locale, "-")
	if !found || base == "" {
		return locale
	}
	return fmt.Sprintf("%s,%s;q=0.9", locale, base)
}

// Apply returns the DevTools actions that make a chromedp target match the
// profile. It must run before the first navigation.
func Apply(p browser.Profile, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser persona",
		zap.String("profile", p.Name),
		zap.String("device", p.Device.Name),
		zap.String("locale", p.Locale),
	)

	tasks := chromedp.Tasks{}
	if p.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(p.UserAgent).WithAcceptLanguage(AcceptLanguage(p.Locale)))
	}
	for _, script := range p.InitScripts {
		src := script
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject init script: %w", err)
			}
			return nil
		}))
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks,
			emulation.SetLocaleOverride().WithLocale(p.Locale),
			network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": AcceptLanguage(p.Locale)}),
		)
	}
	if p.Device.Width > 0 && p.Device.Height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(p.Device.Width), int64(p.Device.Height), p.Device.ScaleFactor, p.Device.Mobile))
	}
	if p.Device.Touch {
		tasks = append(tasks, emulation.SetTouchEmulationEnabled(true).WithMaxTouchPoints(5))
	}
	if p.Geolocation != nil {
		tasks = append(tasks, emulation.SetGeolocationOverride().
			WithLatitude(p.Geolocation.Latitude).
			WithLongitude(p.Geolocation.Longitude).
			WithAccuracy(1))
	}
	if perms := permissionTypes(p.Permissions); len(perms) > 0 {
		tasks = append(tasks, cdpbrowser.GrantPermissions(perms))
	}
	return tasks
}

func permissionTypes(names []string) []cdpbrowser.PermissionType {
	var out []cdpbrowser.PermissionType
	for _, n := range names {
		switch n {
		case "geolocation":
			out = append(out, cdpbrowser.PermissionTypeGeolocation)
		case "notifications":
			out = append(out, cdpbrowser.PermissionTypeNotifications)
		case "clipboard-read":
			out = append(out, cdpbrowser.PermissionTypeClipboardReadWrite)
		}
	}
	return out
}
