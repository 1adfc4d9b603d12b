package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/app"
	"github.com/JakeFAU/sitecrawler/internal/config"
	"github.com/JakeFAU/sitecrawler/internal/logging"
)

var cfgFile string

// envKeyType is the key for storing the command environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// env carries what the persistent pre-run hook loaded for a subcommand.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// Runner is the part of the application the commands drive. It lets tests inject a fake.
type Runner interface {
	Run(ctx context.Context, feed app.Feed) error
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, mode app.Mode, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, mode, logger)
}

// newLogger is swapped in tests to capture output.
var newLogger = logging.New

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitecrawler",
		Short: "A concurrent breadth-first crawler for a single web site.",
		Long: `sitecrawler fetches every page reachable from a start URL on one host,
records how each page was found and reports failures, status codes and timings.
It can also replay recorded access logs against a host.`,
		SilenceUsage: true,

		// Runs after flags are parsed and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok && e != nil {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sitecrawler.yaml or $HOME/.sitecrawler/sitecrawler.yaml)")
	cmd.PersistentFlags().Bool("dev", true, "development logging")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newReplayCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("command environment not initialized")
	}
	return e, nil
}

// runApp builds the application for mode, runs it and always closes it.
func runApp(ctx context.Context, e *env, mode app.Mode, feed app.Feed) error {
	a, err := newApp(ctx, e.cfg, mode, e.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close()

	if err := a.Run(ctx, feed); err != nil {
		if errors.Is(err, context.Canceled) {
			e.logger.Warn("crawl interrupted")
			return nil
		}
		return err
	}
	return nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "sitecrawler:", err)
		stop()
		os.Exit(1)
	}
}
