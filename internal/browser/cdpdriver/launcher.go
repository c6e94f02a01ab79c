// internal/browser/cdpdriver/launcher.go
package cdpdriver

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
	"github.com/xkilldash9x/burstline/internal/config"
)

// Launcher starts one Chrome process per browsing context over the DevTools
// protocol. Separate processes give each identity its own profile directory
// and cookie jar.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu       sync.Mutex
	contexts map[*browserContext]struct{}
	wg       sync.WaitGroup
}

var _ browser.Launcher = (*Launcher)(nil)

// New creates a chromedp launcher.
func New(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	return &Launcher{
		cfg:      cfg,
		logger:   logger.Named("cdpdriver"),
		contexts: make(map[*browserContext]struct{}),
	}
}

// Launch starts a browser process for the profile and applies its persona
// and restored state to the first tab.
func (l *Launcher) Launch(ctx context.Context, profile browser.Profile) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The process must outlive the launch call, so it hangs off a context
	// that keeps ctx's values but not its cancellation.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(l.cfg, profile)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	bc := &browserContext{
		launcher:   l,
		profile:    profile,
		logger:     l.logger.With(zap.String("profile", profile.Name)),
		rootCtx:    tabCtx,
		cancel:     func() { tabCancel(); allocCancel() },
		navTimeout: l.cfg.LaunchTimeout,
		actTimeout: l.cfg.ActionTimeout,
	}

	// The first Run allocates the browser and must not carry a deadline,
	// otherwise the deadline would tear the whole process down.
	if err := chromedp.Run(tabCtx); err != nil {
		bc.cancel()
		return nil, fmt.Errorf("failed to start %s browser: %w", profile.Name, err)
	}

	restoreCtx, cancel := withTimeout(tabCtx, ctx, l.cfg.LaunchTimeout)
	defer cancel()
	if err := chromedp.Run(restoreCtx, restoreCookies(profile.State)); err != nil {
		bc.cancel()
		return nil, fmt.Errorf("failed to restore %s session cookies: %w", profile.Name, err)
	}

	l.mu.Lock()
	l.contexts[bc] = struct{}{}
	l.mu.Unlock()
	l.wg.Add(1)

	bc.logger.Debug("Browser context opened.", zap.Bool("restored_state", !profile.State.IsEmpty()))
	return bc, nil
}

func (l *Launcher) release(bc *browserContext) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.contexts[bc]; ok {
		delete(l.contexts, bc)
		l.wg.Done()
	}
}

// Close terminates every browser process still running.
func (l *Launcher) Close(ctx context.Context) error {
	l.mu.Lock()
	open := make([]*browserContext, 0, len(l.contexts))
	for bc := range l.contexts {
		open = append(open, bc)
	}
	l.mu.Unlock()

	for _, bc := range open {
		_ = bc.Close(ctx)
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		l.logger.Warn("Timed out waiting for browsers to exit.", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// allocatorOptions assembles the Chrome flags for one profile. A false flag
// is omitted from the command line, which is how the enable-automation
// default is removed.
func allocatorOptions(cfg config.BrowserConfig, profile browser.Profile) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
	)
	if profile.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(profile.UserAgent))
	}
	if profile.Device.Width > 0 && profile.Device.Height > 0 {
		opts = append(opts, chromedp.WindowSize(profile.Device.Width, profile.Device.Height))
	}
	if profile.Locale != "" {
		opts = append(opts, chromedp.Flag("lang", profile.Locale))
	}

	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "user-agent" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}
