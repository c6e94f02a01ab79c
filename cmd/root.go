// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
	"github.com/xkilldash9x/burstline/internal/browser/cdpdriver"
	"github.com/xkilldash9x/burstline/internal/browser/pwdriver"
	"github.com/xkilldash9x/burstline/internal/config"
	"github.com/xkilldash9x/burstline/internal/observability"
)

// app carries the state shared by the subcommands of one root command.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string

	// newLauncher builds the browser driver for a run. Tests replace it.
	newLauncher func(cfg config.BrowserConfig, logger *zap.Logger) browser.Launcher
}

func defaultLauncher(cfg config.BrowserConfig, logger *zap.Logger) browser.Launcher {
	if cfg.Driver == config.DriverChromedp {
		return cdpdriver.New(cfg, logger)
	}
	return pwdriver.New(cfg, logger)
}

// NewRootCommand builds a fresh command tree with its own configuration.
func NewRootCommand() *cobra.Command {
	root, _ := newRootCmd()
	return root
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: viper.New(), newLauncher: defaultLauncher}

	rootCmd := &cobra.Command{
		Use:           "burstline",
		Short:         "Burstline signs identities in on desktop, searches, then resumes their sessions on mobile.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initializeConfig(); err != nil {
				return err
			}

			var lc config.LoggerConfig
			if err := a.v.UnmarshalKey("logger", &lc); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "burstline"})
				return fmt.Errorf("failed to unmarshal logger config: %w", err)
			}
			observability.InitializeLogger(lc)
			observability.GetLogger().Debug("Starting burstline", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file with credentials and throttle settings")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd(a), newWordsCmd(a), newVersionCmd())
	return rootCmd, a
}

// initializeConfig loads the dotenv file, the optional config file and the
// environment into the app's viper instance.
func (a *app) initializeConfig() error {
	if a.envFile != "" {
		// Variables already in the environment win over the file.
		if err := gotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading env file %s: %w", a.envFile, err)
		}
	}

	config.SetDefaults(a.v)
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix("BURSTLINE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	observability.Sync()
	return err
}
