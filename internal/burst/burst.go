// Package burst submits a bounded run of search queries with fixed pacing
// and periodic cooldowns.
package burst

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/burstline/internal/browser"
)

// ErrInvalidConfig is returned when a burst configuration cannot be run.
var ErrInvalidConfig = errors.New("invalid burst configuration")

// Config paces one burst.
type Config struct {
	TotalSearches        int
	InterActionDelay     time.Duration
	CooldownEvery        int
	Cooldown             time.Duration
	ReloadBetweenActions bool
	// Arity is the number of distinct terms per query.
	Arity int
	// MaxPerMinute caps the submission rate on top of the fixed delays. Zero disables it.
	MaxPerMinute float64
}

// Validate rejects configurations that would divide by zero or never end.
func (c Config) Validate() error {
	switch {
	case c.TotalSearches < 0:
		return fmt.Errorf("%w: total searches %d is negative", ErrInvalidConfig, c.TotalSearches)
	case c.TotalSearches > 0 && c.CooldownEvery <= 0:
		return fmt.Errorf("%w: cooldown cadence must be positive, got %d", ErrInvalidConfig, c.CooldownEvery)
	case c.TotalSearches > 0 && c.Arity <= 0:
		return fmt.Errorf("%w: query arity must be positive, got %d", ErrInvalidConfig, c.Arity)
	case c.InterActionDelay < 0 || c.Cooldown < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	case c.MaxPerMinute < 0:
		return fmt.Errorf("%w: max per minute must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Phraser produces search queries. *query.Generator satisfies it.
type Phraser interface {
	Phrase(k int) (string, error)
}

// Observer is notified as a burst progresses. Calls happen on the burst's goroutine.
type Observer interface {
	SearchSubmitted(identity, stage string)
	CooldownStarted(identity, stage string, d time.Duration)
}

// Result summarises a finished (or interrupted) burst.
type Result struct {
	Searches  int
	Cooldowns int
}

// Runner executes bursts against authenticated pages.
type Runner struct {
	queries  Phraser
	input    browser.Selector
	observer Observer
	logger   *zap.Logger
}

// NewRunner creates a runner that types queries into input. observer may be nil.
func NewRunner(queries Phraser, input browser.Selector, observer Observer, logger *zap.Logger) *Runner {
	return &Runner{queries: queries, input: input, observer: observer, logger: logger.Named("burst")}
}

// Run performs exactly cfg.TotalSearches searches on page. identity and
// stage are passed through to the observer. Fill and submit failures stop the
// burst and are returned together with the progress made so far.
func (r *Runner) Run(ctx context.Context, page browser.Page, cfg Config, identity, stage string) (Result, error) {
	var res Result
	if err := cfg.Validate(); err != nil {
		return res, err
	}

	var limiter *rate.Limiter
	if cfg.MaxPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxPerMinute/60), 1)
	}

	logger := r.logger
	field := page.Locator(r.input)
	start := time.Now()

	for i := 0; i < cfg.TotalSearches; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return res, fmt.Errorf("search %d: rate limiter: %w", i+1, err)
			}
		}

		q, err := r.queries.Phrase(cfg.Arity)
		if err != nil {
			return res, fmt.Errorf("search %d: %w", i+1, err)
		}
		if err := field.Fill(ctx, q); err != nil {
			return res, fmt.Errorf("search %d: fill query: %w", i+1, err)
		}
		if err := field.Press(ctx, "Enter"); err != nil {
			return res, fmt.Errorf("search %d: submit query: %w", i+1, err)
		}
		res.Searches++
		if r.observer != nil {
			r.observer.SearchSubmitted(identity, stage)
		}
		logger.Debug("Submitted search.", zap.Int("n", i+1), zap.Int("of", cfg.TotalSearches))

		if (i+1)%cfg.CooldownEvery == 0 {
			res.Cooldowns++
			if r.observer != nil {
				r.observer.CooldownStarted(identity, stage, cfg.Cooldown)
			}
			logger.Info("Cooling down.", zap.Int("after", i+1), zap.Duration("for", cfg.Cooldown))
			if err := page.Wait(ctx, cfg.Cooldown); err != nil {
				return res, fmt.Errorf("search %d: cooldown: %w", i+1, err)
			}
		}

		if err := page.Wait(ctx, cfg.InterActionDelay); err != nil {
			return res, fmt.Errorf("search %d: delay: %w", i+1, err)
		}
		if cfg.ReloadBetweenActions {
			if err := page.Reload(ctx); err != nil {
				return res, fmt.Errorf("search %d: reload: %w", i+1, err)
			}
		}
	}

	logger.Info("Burst complete.",
		zap.Int("searches", res.Searches),
		zap.Int("cooldowns", res.Cooldowns),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}
