package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/config"
	"github.com/xkilldash9x/burstline/internal/metrics"
	"github.com/xkilldash9x/burstline/internal/observability"
	"github.com/xkilldash9x/burstline/internal/orchestrator"
	"github.com/xkilldash9x/burstline/internal/query"
	"github.com/xkilldash9x/burstline/internal/session"
	"github.com/xkilldash9x/burstline/internal/words"
)

// shutdownTimeout bounds browser and metrics teardown after a run.
const shutdownTimeout = 30 * time.Second

var runFlagKeys = map[string]string{
	"driver":       "browser.driver",
	"headless":     "browser.headless",
	"identities":   "identities.count",
	"metrics-addr": "metrics.addr",
	"timeout":      "run.timeout",
	"seed":         "run.seed",
}

func newRunCmd(a *app) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the desktop stage for every identity, then the mobile stage",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for flag, key := range runFlagKeys {
				if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	runCmd.Flags().String("driver", config.DriverPlaywright, "browser driver: playwright or chromedp")
	runCmd.Flags().Bool("headless", false, "run browsers without a window")
	runCmd.Flags().Int("identities", 2, "number of USER<n>/PASS<n> pairs to read")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	runCmd.Flags().Duration("timeout", 0, "abort the whole run after this long (0 = no limit)")
	runCmd.Flags().Uint64("seed", 0, "seed for query sampling (0 = time based)")
	return runCmd
}

func (a *app) run(ctx context.Context, out io.Writer) (err error) {
	logger := observability.GetLogger()

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		return err
	}
	runCfg, err := orchestrator.ConfigFrom(cfg)
	if err != nil {
		return err
	}

	pool, err := words.New(cfg.Words, logger).Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch word pool: %w", err)
	}
	seed := cfg.Run.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	gen := query.NewGenerator(pool, seed)
	if gen.Size() < cfg.Words.Arity {
		return fmt.Errorf("%w: %d words for %d-term queries", query.ErrArityExceedsPool, gen.Size(), cfg.Words.Arity)
	}

	store, closeStore, err := session.Open(ctx, cfg.SessionStore, logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer closeStore()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		srv, err := m.Listen(cfg.Metrics.Addr, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		}()
	}

	launcher := a.newLauncher(cfg.Browser, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if closeErr := launcher.Close(shutdownCtx); closeErr != nil {
			logger.Warn("Failed to close browser driver.", zap.Error(closeErr))
		}
	}()

	o, err := orchestrator.New(runCfg, launcher, store, gen, m, logger)
	if err != nil {
		return err
	}

	report, runErr := o.Run(ctx, orchestrator.IdentitiesFromConfig(cfg.Credentials))
	if report != nil {
		printReport(out, report)
	}
	return runErr
}

func printReport(out io.Writer, r *orchestrator.Report) {
	fmt.Fprintf(out, "run %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tIDENTITY\tSEARCHES\tCOOLDOWNS\tDURATION\tRESULT")
	for _, outcomes := range [][]orchestrator.Outcome{r.Desktop, r.Mobile} {
		for _, o := range outcomes {
			result := "ok"
			if o.Err != nil {
				result = o.Err.Error()
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
				o.Stage, o.Identity, o.Searches, o.Cooldowns, o.Duration.Round(time.Millisecond), result)
		}
	}
	if len(r.Mobile) == 0 {
		fmt.Fprintln(tw, "mobile\t-\t-\t-\t-\tskipped")
	}
	_ = tw.Flush()
}
