package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/app"
	"github.com/JakeFAU/sitecrawler/internal/replay"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [logfile|-|dir]",
		Short: "Replays GET requests from combined-format access logs",
		Long: `Reads access log lines from a file, a directory of files (gzip is detected) or
stdin ("-" or no argument) and fetches every successful GET against --host.
Static assets and wicket interface URLs are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runApp(cmd.Context(), e, app.ModeReplay, logFeed(e, path))
		},
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

func logFeed(e *env, path string) app.Feed {
	return func(ctx context.Context, q replay.Queuer) error {
		feeder, err := replay.NewFeeder(e.cfg.Crawler.Host, q, e.logger.Named("replay"))
		if err != nil {
			return fmt.Errorf("replay feeder: %w", err)
		}
		stats, err := feeder.FeedPath(ctx, path)
		e.logger.Info("replay input read",
			zap.String("path", path),
			zap.Int("lines", stats.Lines),
			zap.Int("skipped", stats.Skipped),
			zap.Int("queued", stats.Queued),
		)
		return err
	}
}
