package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawler:
  host: http://example.com
  start: /index.html
  username: admin
  password: secret
  threads: 8
  max_pages: 500
  tidy: true
  parser: xml
  queue_depth: 64
  queue_policy: block
  user_agent: test-agent
  request_timeout: 5s
  filters:
    static_assets: true
    prefixes: ["/iframe", "/fanshop"]
    contains: ["?wicket:interface="]
    blocked_hosts: ["ads.example.com"]
observers:
  print_success: true
  slow_threshold_ms: 400
  pubsub_project: crawl-project
  pubsub_topic: crawl-results
server:
  addr: ":9090"
report:
  uri: gs://bucket/reports/run.json
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	require.Equal(t, "http://example.com/", cfg.Crawler.Host)
	require.Equal(t, "/index.html", cfg.Crawler.Start)
	require.Equal(t, 8, cfg.Crawler.Threads)
	require.Equal(t, 500, cfg.Crawler.MaxPages)
	require.True(t, cfg.Crawler.Tidy)
	require.Equal(t, "xml", cfg.Crawler.Parser)
	require.Equal(t, "block", cfg.Crawler.QueuePolicy)
	require.Equal(t, 5*time.Second, cfg.Crawler.RequestTimeout)
	require.True(t, cfg.Crawler.Filters.StaticAssets)
	require.Equal(t, []string{"/iframe", "/fanshop"}, cfg.Crawler.Filters.Prefixes)
	require.Equal(t, []string{"ads.example.com"}, cfg.Crawler.Filters.BlockedHosts)
	require.True(t, cfg.Observers.PrintSuccess)
	require.Equal(t, 400*time.Millisecond, cfg.Observers.SlowThreshold())
	require.Equal(t, "crawl-results", cfg.Observers.PubSubTopic)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "gs://bucket/reports/run.json", cfg.Report.URI)
	require.False(t, cfg.Logging.Development)
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("CRAWLER_CRAWLER_HOST", "https://env.example.com")
	t.Setenv("CRAWLER_CRAWLER_THREADS", "3")
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "https://env.example.com/", cfg.Crawler.Host)
	require.Equal(t, 3, cfg.Crawler.Threads)
	require.Equal(t, "/", cfg.Crawler.Start)
	require.Equal(t, "html", cfg.Crawler.Parser)
	require.Equal(t, "drop", cfg.Crawler.QueuePolicy)
	require.Equal(t, 1024, cfg.Crawler.QueueDepth)
	require.Equal(t, 30*time.Second, cfg.Crawler.RequestTimeout)
	require.Equal(t, 30*time.Second, cfg.Entities.FetchTimeout)
	require.Zero(t, cfg.Crawler.MaxPages)
	require.True(t, cfg.Logging.Development)
}

func TestLoadFlagsWin(t *testing.T) {
	t.Setenv("CRAWLER_CRAWLER_THREADS", "3")
	t.Chdir(t.TempDir())

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("host", "", "")
	flags.Int("threads", 0, "")
	flags.Int("max-pages", 0, "")
	flags.String("unrelated", "", "")
	require.NoError(t, flags.Parse([]string{"--host", "http://flag.example.com", "--threads", "12"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	require.Equal(t, "http://flag.example.com/", cfg.Crawler.Host)
	require.Equal(t, 12, cfg.Crawler.Threads)
	require.Zero(t, cfg.Crawler.MaxPages)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{Crawler: CrawlerConfig{
			Host:           "http://example.com/",
			Threads:        1,
			QueueDepth:     1,
			QueuePolicy:    "drop",
			Parser:         "html",
			RequestTimeout: time.Second,
		}}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"missing host":      func(c *Config) { c.Crawler.Host = "" },
		"bad scheme":        func(c *Config) { c.Crawler.Host = "ftp://example.com/" },
		"no threads":        func(c *Config) { c.Crawler.Threads = 0 },
		"negative max":      func(c *Config) { c.Crawler.MaxPages = -1 },
		"no queue depth":    func(c *Config) { c.Crawler.QueueDepth = 0 },
		"unknown policy":    func(c *Config) { c.Crawler.QueuePolicy = "spill" },
		"unknown parser":    func(c *Config) { c.Crawler.Parser = "sax" },
		"no timeout":        func(c *Config) { c.Crawler.RequestTimeout = 0 },
		"topic only":        func(c *Config) { c.Observers.PubSubTopic = "t" },
		"password only":     func(c *Config) { c.Crawler.Password = "x" },
		"negative slowness": func(c *Config) { c.Observers.SlowThresholdMs = -5 },
	}
	for name, mutate := range tests {
		cfg := valid()
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}
}
