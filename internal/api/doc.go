// Package api hosts the optional status server for a running crawl:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the dispatch counters and the finished flag.
//   - GET /v1/results for the visited URLs, optionally narrowed with ?failed=true or
//     ?url=<visited url>.
package api
