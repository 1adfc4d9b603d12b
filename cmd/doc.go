// Package cmd implements the sitecrawler command line.
//
// Architecture overview:
//   - crawl: seeds the start URL under --host and walks every reachable page breadth first with
//     a fixed worker pool. Each URL is fetched at most once; links leaving the host are ignored
//     and redirects are followed as new URLs.
//   - replay: re-fetches the GET requests recorded in combined-format access logs against
//     --host, without deduplication or link extraction, to reproduce production load.
//   - Configuration: Viper merges defaults, sitecrawler.yaml, CRAWLER_* environment variables
//     and flags, in increasing priority. zap provides structured logging.
//   - Observability: every result is logged, slow requests are flagged and Prometheus metrics
//     are kept for the run. --listen exposes them with the status endpoints while the crawl
//     runs; --report writes a JSON report to a local path, memory:// or gs://.
//
// Operational notes:
//   - SIGINT and SIGTERM stop the crawl; the report is still written with finished=false.
//   - --pubsub-project and --pubsub-topic publish a notification per result to Pub/Sub.
package cmd
