package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JakeFAU/sitecrawler/internal/app"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls every page reachable from the start URL",
		Long: `Starts at --start under --host and follows every same-host link breadth first
until no unvisited URL is left or --max-pages URLs were dispatched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return runApp(cmd.Context(), e, app.ModeCrawl, nil)
		},
	}

	fs := cmd.Flags()
	addCommonFlags(fs)
	fs.String("start", "/", "start path or URL below the host")
	fs.Int("max-pages", 0, "stop dispatching after this many URLs (0 = unlimited)")
	fs.Bool("tidy", false, "normalize HTML before link extraction")
	fs.Int("queue-depth", 1024, "work queue capacity")
	fs.String("queue-policy", "drop", "what a full queue does: drop or block")
	return cmd
}

// addCommonFlags registers the flags shared by crawl and replay. Names match the keys
// config.Load binds.
func addCommonFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "site root, e.g. https://example.com/ (required)")
	fs.String("username", "", "basic auth user for the host")
	fs.String("password", "", "basic auth password for the host")
	fs.Int("threads", 4, "number of workers")
	fs.String("parser", "html", "link extraction parser: html or xml")
	fs.String("user-agent", "sitecrawler/1.0", "User-Agent header")
	fs.Duration("timeout", 30*time.Second, "per-request timeout")
	fs.Bool("print-success", false, "log successful fetches too")
	fs.Int("slow-threshold", 0, "flag requests slower than this many milliseconds (0 = off)")
	fs.String("listen", "", "address for the status and metrics server, e.g. :8080")
	fs.String("report", "", "write a JSON report to a path, memory:// or gs://bucket/object")
	fs.String("pubsub-project", "", "Google Cloud project of the notification topic")
	fs.String("pubsub-topic", "", "publish a notification per result to this Pub/Sub topic")
}
