// internal/browser/pwdriver/launcher.go
package pwdriver

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
	"github.com/xkilldash9x/burstline/internal/config"
)

const installTimeout = 5 * time.Minute

// Launcher runs one Chromium process through Playwright and hands out
// isolated browser contexts from it.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	pw      *playwright.Playwright
	browser playwright.Browser

	initOnce sync.Once
	initErr  error

	mu       sync.Mutex
	contexts map[*browserContext]struct{}
	wg       sync.WaitGroup
}

var _ browser.Launcher = (*Launcher)(nil)

// New creates a launcher. The driver and browser start on the first Launch.
func New(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	return &Launcher{
		cfg:      cfg,
		logger:   logger.Named("pwdriver"),
		contexts: make(map[*browserContext]struct{}),
	}
}

func (l *Launcher) initialize(ctx context.Context) error {
	l.initOnce.Do(func() {
		l.logger.Info("Starting Playwright and launching Chromium.", zap.Bool("headless", l.cfg.Headless))

		if err := ensureInstallation(ctx); err != nil {
			l.initErr = err
			return
		}

		pw, err := playwright.Run(&playwright.RunOptions{Stdout: io.Discard, Stderr: io.Discard})
		if err != nil {
			l.initErr = fmt.Errorf("failed to start playwright driver: %w", err)
			return
		}

		b, err := pw.Chromium.Launch(launchOptions(l.cfg))
		if err != nil {
			_ = pw.Stop()
			l.initErr = fmt.Errorf("failed to launch browser: %w", err)
			return
		}
		l.pw = pw
		l.browser = b
		l.logger.Info("Browser ready.", zap.String("version", b.Version()))
	})
	return l.initErr
}

func ensureInstallation(ctx context.Context) error {
	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- playwright.Install(&playwright.RunOptions{
			Browsers: []string{"chromium"},
			Stdout:   io.Discard,
			Stderr:   io.Discard,
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to install playwright browsers: %w", err)
		}
		return nil
	case <-installCtx.Done():
		return fmt.Errorf("timed out installing playwright browsers: %w", installCtx.Err())
	}
}

// Launch opens a new isolated context configured for the profile.
func (l *Launcher) Launch(ctx context.Context, profile browser.Profile) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.initialize(ctx); err != nil {
		return nil, err
	}

	pctx, err := l.browser.NewContext(contextOptions(profile))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s context: %w", profile.Name, err)
	}
	pctx.SetDefaultTimeout(durationMs(l.cfg.ActionTimeout))
	pctx.SetDefaultNavigationTimeout(durationMs(l.cfg.LaunchTimeout))

	for _, script := range profile.InitScripts {
		src := script
		if err := pctx.AddInitScript(playwright.Script{Content: &src}); err != nil {
			_ = pctx.Close()
			return nil, fmt.Errorf("failed to add init script: %w", err)
		}
	}

	bc := &browserContext{ctx: pctx, launcher: l, logger: l.logger.With(zap.String("profile", profile.Name))}
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

// Close closes any contexts still open, waits for them up to ctx's deadline,
// then stops the browser and the driver.
func (l *Launcher) Close(ctx context.Context) error {
	if l.pw == nil {
		return nil
	}

	l.mu.Lock()
	open := make([]*browserContext, 0, len(l.contexts))
	for bc := range l.contexts {
		open = append(open, bc)
	}
	l.mu.Unlock()
	for _, bc := range open {
		if err := bc.Close(ctx); err != nil {
			l.logger.Warn("Failed to close context during shutdown.", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		l.logger.Warn("Timed out waiting for contexts to close.", zap.Error(ctx.Err()))
	}

	var shutdownErr error
	if err := l.browser.Close(); err != nil {
		shutdownErr = fmt.Errorf("failed to close browser: %w", err)
	}
	if err := l.pw.Stop(); err != nil && shutdownErr == nil {
		shutdownErr = fmt.Errorf("failed to stop playwright driver: %w", err)
	}
	l.logger.Info("Playwright driver stopped.")
	return shutdownErr
}

func launchOptions(cfg config.BrowserConfig) playwright.BrowserTypeLaunchOptions {
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     append([]string(nil), cfg.Args...),
		Timeout:  playwright.Float(durationMs(cfg.LaunchTimeout)),
	}
}

func contextOptions(p browser.Profile) playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{
		Permissions: p.Permissions,
	}
	if p.UserAgent != "" {
		opts.UserAgent = playwright.String(p.UserAgent)
	}
	if p.Locale != "" {
		opts.Locale = playwright.String(p.Locale)
	}
	if p.Timezone != "" {
		opts.TimezoneId = playwright.String(p.Timezone)
	}
	if p.Device.Width > 0 && p.Device.Height > 0 {
		opts.Viewport = &playwright.Size{Width: p.Device.Width, Height: p.Device.Height}
	}
	if p.Device.ScaleFactor > 0 {
		opts.DeviceScaleFactor = playwright.Float(p.Device.ScaleFactor)
	}
	if p.Device.Mobile {
		opts.IsMobile = playwright.Bool(true)
	}
	if p.Device.Touch {
		opts.HasTouch = playwright.Bool(true)
	}
	if p.Geolocation != nil {
		opts.Geolocation = &playwright.Geolocation{Latitude: p.Geolocation.Latitude, Longitude: p.Geolocation.Longitude}
	}
	if !p.State.IsEmpty() {
		opts.StorageState = toOptionalStorageState(p.State)
	}
	return opts
}

func durationMs(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}
