// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/queue/memory"
	"github.com/JakeFAU/sitecrawler/internal/worker"
)

// Config captures all crawl configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Entities  EntitiesConfig  `mapstructure:"entities"`
	Observers ObserversConfig `mapstructure:"observers"`
	Server    ServerConfig    `mapstructure:"server"`
	Report    ReportConfig    `mapstructure:"report"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CrawlerConfig governs the dispatcher, the workers and their HTTP clients.
type CrawlerConfig struct {
	Host           string        `mapstructure:"host"`
	Start          string        `mapstructure:"start"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Threads        int           `mapstructure:"threads"`
	MaxPages       int           `mapstructure:"max_pages"`
	Tidy           bool          `mapstructure:"tidy"`
	Parser         string        `mapstructure:"parser"`
	QueueDepth     int           `mapstructure:"queue_depth"`
	QueuePolicy    string        `mapstructure:"queue_policy"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	Filters        FiltersConfig `mapstructure:"filters"`
}

// FiltersConfig lists the URL filters added to the chain before the crawl starts.
type FiltersConfig struct {
	StaticAssets bool     `mapstructure:"static_assets"`
	Suffixes     []string `mapstructure:"suffixes"`
	Prefixes     []string `mapstructure:"prefixes"`
	Contains     []string `mapstructure:"contains"`
	Patterns     []string `mapstructure:"patterns"`
	BlockedHosts []string `mapstructure:"blocked_hosts"`
}

// EntitiesConfig controls how external DTDs are fetched.
type EntitiesConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// ObserversConfig toggles the stock progress observers.
type ObserversConfig struct {
	PrintSuccess    bool   `mapstructure:"print_success"`
	SlowThresholdMs int    `mapstructure:"slow_threshold_ms"`
	PubSubProject   string `mapstructure:"pubsub_project"`
	PubSubTopic     string `mapstructure:"pubsub_topic"`
}

// ServerConfig controls the optional status server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ReportConfig names where the final report goes. An empty URI disables it.
type ReportConfig struct {
	URI string `mapstructure:"uri"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SlowThreshold returns the slow request threshold as a duration.
func (c ObserversConfig) SlowThreshold() time.Duration {
	return time.Duration(c.SlowThresholdMs) * time.Millisecond
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"host":           "crawler.host",
	"start":          "crawler.start",
	"username":       "crawler.username",
	"password":       "crawler.password",
	"threads":        "crawler.threads",
	"max-pages":      "crawler.max_pages",
	"tidy":           "crawler.tidy",
	"parser":         "crawler.parser",
	"queue-depth":    "crawler.queue_depth",
	"queue-policy":   "crawler.queue_policy",
	"user-agent":     "crawler.user_agent",
	"timeout":        "crawler.request_timeout",
	"print-success":  "observers.print_success",
	"slow-threshold": "observers.slow_threshold_ms",
	"pubsub-project": "observers.pubsub_project",
	"pubsub-topic":   "observers.pubsub_topic",
	"listen":         "server.addr",
	"report":         "report.uri",
	"dev":            "logging.development",
	"log-level":      "logging.level",
}

// Load builds a Config from defaults, an optional file, CRAWLER_* environment variables
// and any flags in flags whose names are known. Flags win over everything else.
// Without a path, sitecrawler.yaml is searched in the working directory and
// $HOME/.sitecrawler; a missing file is not an error.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("sitecrawler")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.sitecrawler")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Crawler.Host = crawler.NormalizeHost(cfg.Crawler.Host)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key, so AutomaticEnv can reach keys without a real default
// during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.host", "")
	v.SetDefault("crawler.username", "")
	v.SetDefault("crawler.password", "")
	v.SetDefault("crawler.start", "/")
	v.SetDefault("crawler.threads", 4)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.tidy", false)
	v.SetDefault("crawler.parser", worker.ParserHTML)
	v.SetDefault("crawler.queue_depth", 1024)
	v.SetDefault("crawler.queue_policy", string(memory.PolicyDrop))
	v.SetDefault("crawler.user_agent", "sitecrawler/1.0")
	v.SetDefault("crawler.request_timeout", "30s")
	v.SetDefault("crawler.max_body_bytes", 10*1024*1024)
	v.SetDefault("crawler.filters.static_assets", false)
	v.SetDefault("crawler.filters.suffixes", []string{})
	v.SetDefault("crawler.filters.prefixes", []string{})
	v.SetDefault("crawler.filters.contains", []string{})
	v.SetDefault("crawler.filters.patterns", []string{})
	v.SetDefault("crawler.filters.blocked_hosts", []string{})
	v.SetDefault("entities.fetch_timeout", "30s")
	v.SetDefault("observers.print_success", false)
	v.SetDefault("observers.slow_threshold_ms", 0)
	v.SetDefault("observers.pubsub_project", "")
	v.SetDefault("observers.pubsub_topic", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("report.uri", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Host == "" {
		return fmt.Errorf("crawler.host is required")
	}
	if _, err := crawler.ValidateHost(c.Crawler.Host); err != nil {
		return fmt.Errorf("crawler.host: %w", err)
	}
	if c.Crawler.Threads <= 0 {
		return fmt.Errorf("crawler.threads must be > 0")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if _, err := memory.ParsePolicy(c.Crawler.QueuePolicy); err != nil {
		return fmt.Errorf("crawler.queue_policy: %w", err)
	}
	switch c.Crawler.Parser {
	case worker.ParserHTML, worker.ParserXML:
	default:
		return fmt.Errorf("crawler.parser must be %q or %q", worker.ParserHTML, worker.ParserXML)
	}
	if c.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.Crawler.MaxBodyBytes < 0 {
		return fmt.Errorf("crawler.max_body_bytes must be >= 0")
	}
	if c.Observers.PubSubTopic != "" && c.Observers.PubSubProject == "" {
		return fmt.Errorf("observers.pubsub_topic requires observers.pubsub_project")
	}
	if c.Crawler.Password != "" && c.Crawler.Username == "" {
		return fmt.Errorf("crawler.password requires crawler.username")
	}
	if c.Observers.SlowThresholdMs < 0 {
		return fmt.Errorf("observers.slow_threshold_ms must be >= 0")
	}
	return nil
}
