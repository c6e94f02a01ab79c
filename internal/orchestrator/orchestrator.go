// Package orchestrator runs the two-stage workflow: every identity signs in
// and searches on desktop, then, once all of them are done, every identity
// resumes its saved session on mobile and searches again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/auth"
	"github.com/xkilldash9x/burstline/internal/browser"
	"github.com/xkilldash9x/burstline/internal/browser/stealth"
	"github.com/xkilldash9x/burstline/internal/burst"
	"github.com/xkilldash9x/burstline/internal/config"
	"github.com/xkilldash9x/burstline/internal/interact"
	"github.com/xkilldash9x/burstline/internal/observability"
	"github.com/xkilldash9x/burstline/internal/session"
)

// closeTimeout bounds context teardown, which also runs after cancellation.
const closeTimeout = 15 * time.Second

// Observer receives progress callbacks. *metrics.Metrics satisfies it.
type Observer interface {
	burst.Observer
	TaskStarted(stage string)
	TaskFinished(stage string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) SearchSubmitted(string, string) {}
func (nopObserver) CooldownStarted(string, string, time.Duration) {}
func (nopObserver) TaskStarted(string) {}
func (nopObserver) TaskFinished(string, time.Duration, error) {}

// Config is everything a run needs besides its collaborators.
type Config struct {
	SiteURL      string
	CookieAccept browser.Selector
	SearchInput  browser.Selector
	Selectors    auth.Selectors
	Timeouts     auth.Timeouts

	DesktopProfile browser.Profile
	MobileProfile  browser.Profile

	DesktopBurst burst.Config
	MobileBurst  burst.Config

	// RunTimeout bounds both stages together. Zero means no limit.
	RunTimeout time.Duration
}

// ConfigFrom derives the run configuration from the application config.
func ConfigFrom(cfg *config.Config) (Config, error) {
	mobile, err := stealth.MobileProfile(cfg.Browser)
	if err != nil {
		return Config{}, err
	}
	wait, cooldown := cfg.Pacing.Durations()
	base := burst.Config{
		InterActionDelay: wait,
		CooldownEvery:    cfg.Pacing.CooldownEvery,
		Cooldown:         cooldown,
		Arity:            cfg.Words.Arity,
		MaxPerMinute:     cfg.Pacing.MaxPerMinute,
	}
	desktopBurst, mobileBurst := base, base
	desktopBurst.TotalSearches = cfg.Desktop.Searches
	mobileBurst.TotalSearches = cfg.Mobile.Searches
	mobileBurst.ReloadBetweenActions = true

	return Config{
		SiteURL:        cfg.Site.URL,
		CookieAccept:   browser.ParseSelector(cfg.Site.Selectors.CookieAccept),
		SearchInput:    browser.ParseSelector(cfg.Site.Selectors.SearchInput),
		Selectors:      auth.SelectorsFromConfig(cfg.Site),
		Timeouts:       auth.TimeoutsFromConfig(cfg.Browser),
		DesktopProfile: stealth.DesktopProfile(cfg.Browser),
		MobileProfile:  mobile,
		DesktopBurst:   desktopBurst,
		MobileBurst:    mobileBurst,
		RunTimeout:     cfg.Run.Timeout,
	}, nil
}

// Validate checks the burst settings of both stages.
func (c Config) Validate() error {
	if c.SiteURL == "" {
		return fmt.Errorf("%w: site URL is required", config.ErrInvalidConfig)
	}
	if c.SearchInput.IsZero() {
		return fmt.Errorf("%w: search input selector is required", config.ErrInvalidConfig)
	}
	if c.Timeouts.Probe <= 0 || c.Timeouts.Prompt <= 0 || c.Timeouts.Settled <= 0 {
		return fmt.Errorf("%w: probe timeouts must be positive", config.ErrInvalidConfig)
	}
	if err := c.DesktopBurst.Validate(); err != nil {
		return fmt.Errorf("desktop: %w", err)
	}
	if err := c.MobileBurst.Validate(); err != nil {
		return fmt.Errorf("mobile: %w", err)
	}
	return nil
}

// Report describes a finished run.
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Desktop  []Outcome
	// Mobile is empty when the desktop stage failed.
	Mobile []Outcome
}

// Orchestrator runs the workflow. It holds no per-run state and may be reused.
type Orchestrator struct {
	cfg      Config
	launcher browser.Launcher
	store    session.Store
	queries  burst.Phraser
	observer Observer
	logger   *zap.Logger
}

// New creates an orchestrator. observer may be nil.
func New(cfg Config, launcher browser.Launcher, store session.Store, queries burst.Phraser, observer Observer, logger *zap.Logger) (*Orchestrator, error) {
	if launcher == nil || store == nil || queries == nil || logger == nil {
		return nil, errors.New("cannot initialize orchestrator with nil dependencies")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Orchestrator{
		cfg:      cfg,
		launcher: launcher,
		store:    store,
		queries:  queries,
		observer: observer,
		logger:   logger.Named("orchestrator"),
	}, nil
}

// Run validates ids, runs the desktop stage for all of them, and starts the
// mobile stage only if every desktop task succeeded. The returned error
// combines the failures of the stage that failed.
func (o *Orchestrator) Run(ctx context.Context, ids []Identity) (*Report, error) {
	if err := Validate(ids); err != nil {
		return nil, err
	}

	report := &Report{RunID: uuid.NewString(), Started: time.Now()}
	logger := o.logger.With(zap.String("run_id", report.RunID))
	defer func() { report.Duration = time.Since(report.Started) }()

	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	logger.Info("Starting run.", zap.Int("identities", len(ids)))

	outcomes, err := o.runStage(ctx, logger, Desktop, ids, o.desktopTask)
	report.Desktop = outcomes
	if err != nil {
		logger.Error("Desktop stage failed, mobile stage skipped.", zap.Error(err))
		return report, fmt.Errorf("desktop stage: %w", err)
	}

	outcomes, err = o.runStage(ctx, logger, Mobile, ids, o.mobileTask)
	report.Mobile = outcomes
	if err != nil {
		logger.Error("Mobile stage failed.", zap.Error(err))
		return report, fmt.Errorf("mobile stage: %w", err)
	}

	logger.Info("Run complete.", zap.Duration("took", time.Since(report.Started)))
	return report, nil
}

type taskFunc func(ctx context.Context, logger *zap.Logger, id Identity, out *Outcome) error

// runStage starts one task per identity and blocks until all have finished.
func (o *Orchestrator) runStage(ctx context.Context, logger *zap.Logger, stage Stage, ids []Identity, task taskFunc) ([]Outcome, error) {
	logger = logger.With(zap.Stringer("stage", stage))
	logger.Info("Starting stage.")

	group := newStageGroup(stage, len(ids))
	for i, id := range ids {
		group.Go(i, func() Outcome {
			out := Outcome{Identity: id.Label(), Started: time.Now()}
			taskLogger := logger.With(observability.Identity(id.Username))

			o.observer.TaskStarted(stage.String())
			err := task(ctx, taskLogger, id, &out)
			out.Duration = time.Since(out.Started)
			o.observer.TaskFinished(stage.String(), out.Duration, err)

			if err != nil {
				out.Err = fmt.Errorf("identity %d (%s): %w", i+1, id.Label(), err)
				taskLogger.Error("Identity task failed.", zap.Error(err), zap.Duration("took", out.Duration))
			} else {
				taskLogger.Info("Identity task finished.",
					zap.Int("searches", out.Searches),
					zap.Duration("took", out.Duration),
				)
			}
			return out
		})
	}
	outcomes, err := group.Wait()
	logger.Info("Stage finished.", zap.Bool("ok", err == nil))
	return outcomes, err
}

// exporter is the part of a context the desktop task needs after the burst.
type exporter interface {
	ExportState(ctx context.Context) (*browser.State, error)
}

// desktopTask signs in with the full credentials, searches, and saves the
// resulting session state under the identity's key.
func (o *Orchestrator) desktopTask(ctx context.Context, logger *zap.Logger, id Identity, out *Outcome) (err error) {
	bctx, err := o.launcher.Launch(ctx, o.cfg.DesktopProfile)
	if err != nil {
		return fmt.Errorf("launch desktop context: %w", err)
	}
	defer func() { err = multierr.Append(err, o.closeContext(ctx, logger, bctx)) }()

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	if err := page.Goto(ctx, o.cfg.SiteURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", o.cfg.SiteURL, err)
	}
	if err := page.WaitForNetworkIdle(ctx); err != nil {
		return fmt.Errorf("wait for network idle: %w", err)
	}
	if interact.AcceptIfVisible(ctx, logger, page, o.cfg.CookieAccept, o.cfg.Timeouts.Probe) {
		logger.Debug("Accepted cookie banner.")
	}

	if _, err := auth.NewDesktop(o.cfg.Selectors, o.cfg.Timeouts, logger).SignIn(ctx, page, id.Username, id.Password); err != nil {
		return err
	}
	logger.Info("Signed in.")

	res, err := burst.NewRunner(o.queries, o.cfg.SearchInput, o.observer, logger).Run(ctx, page, o.cfg.DesktopBurst, id.Label(), Desktop.String())
	out.Searches, out.Cooldowns = res.Searches, res.Cooldowns
	if err != nil {
		return err
	}

	return o.persist(ctx, logger, bctx, id)
}

func (o *Orchestrator) persist(ctx context.Context, logger *zap.Logger, src exporter, id Identity) error {
	state, err := src.ExportState(ctx)
	if err != nil {
		return fmt.Errorf("export session state: %w", err)
	}
	if err := o.store.Save(ctx, id.SessionStatePath, state); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	logger.Info("Saved session state.", zap.String("key", id.SessionStatePath), zap.Int("cookies", len(state.Cookies)))
	return nil
}

// mobileTask restores the identity's saved session in a mobile context,
// confirms it is still signed in, and searches with a reload between queries.
func (o *Orchestrator) mobileTask(ctx context.Context, logger *zap.Logger, id Identity, out *Outcome) (err error) {
	state, err := o.store.Load(ctx, id.SessionStatePath)
	if err != nil {
		return fmt.Errorf("load session state: %w", err)
	}

	bctx, err := o.launcher.Launch(ctx, o.cfg.MobileProfile.WithState(state))
	if err != nil {
		return fmt.Errorf("launch mobile context: %w", err)
	}
	defer func() { err = multierr.Append(err, o.closeContext(ctx, logger, bctx)) }()

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	if err := page.Goto(ctx, o.cfg.SiteURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", o.cfg.SiteURL, err)
	}
	if interact.AcceptIfVisible(ctx, logger, page, o.cfg.CookieAccept, o.cfg.Timeouts.Probe) {
		logger.Debug("Accepted cookie banner.")
	}

	reauth, err := auth.NewMobile(o.cfg.Selectors, o.cfg.Timeouts, logger).Ensure(ctx, page, id.Username)
	if err != nil {
		return err
	}
	logger.Info("Session ready.", zap.Bool("reauthenticated", reauth))

	res, err := burst.NewRunner(o.queries, o.cfg.SearchInput, o.observer, logger).Run(ctx, page, o.cfg.MobileBurst, id.Label(), Mobile.String())
	out.Searches, out.Cooldowns = res.Searches, res.Cooldowns
	return err
}

// closeContext tears bctx down even when ctx is already cancelled.
func (o *Orchestrator) closeContext(ctx context.Context, logger *zap.Logger, bctx browser.Context) error {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := bctx.Close(closeCtx); err != nil {
		logger.Warn("Failed to close browsing context.", zap.Error(err))
		return fmt.Errorf("close context: %w", err)
	}
	return nil
}
