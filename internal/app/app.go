// Package app assembles a crawl from configuration: it builds the long-lived services
// (entity cache, workers, dispatcher, observers, status server, report writer), runs the
// crawl and tears everything down again.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/api"
	"github.com/JakeFAU/sitecrawler/internal/clock/system"
	"github.com/JakeFAU/sitecrawler/internal/config"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/dispatcher"
	"github.com/JakeFAU/sitecrawler/internal/entity"
	"github.com/JakeFAU/sitecrawler/internal/filter"
	"github.com/JakeFAU/sitecrawler/internal/history"
	"github.com/JakeFAU/sitecrawler/internal/id/uuid"
	"github.com/JakeFAU/sitecrawler/internal/progress/sinks"
	"github.com/JakeFAU/sitecrawler/internal/queue/memory"
	"github.com/JakeFAU/sitecrawler/internal/replay"
	"github.com/JakeFAU/sitecrawler/internal/report"
	"github.com/JakeFAU/sitecrawler/internal/storage"
	"github.com/JakeFAU/sitecrawler/internal/task"
	"github.com/JakeFAU/sitecrawler/internal/worker"
)

// Mode selects how URLs enter the crawl.
type Mode int

const (
	// ModeCrawl seeds the start URL and follows links.
	ModeCrawl Mode = iota
	// ModeReplay fetches only URLs fed from outside, without deduplication or link
	// extraction.
	ModeReplay
)

const (
	replayQueueDepth    = 10
	replaySlowThreshold = 400 * time.Millisecond
	wicketInterface     = "?wicket:interface="
	shutdownTimeout     = 5 * time.Second
)

// Feed pushes URLs into a crawl started in ModeReplay. The crawl stays open until Feed
// returns.
type Feed func(ctx context.Context, q replay.Queuer) error

// App holds every service of one crawl run.
type App struct {
	cfg    config.Config
	mode   Mode
	logger *zap.Logger
	clock  *system.Clock
	runID  string

	registry *prometheus.Registry
	crawler  *dispatcher.Crawler
	waiter   *sinks.Waiter
	slow     *sinks.SlowRequestObserver
	entities *entity.Cache

	pubsubClient *pubsub.Client
	notifier     *sinks.PubSubObserver

	server *http.Server
	dest   *storage.Destination
	writer *report.Writer
}

// New wires the crawl described by cfg, which must already be validated. It fails fast when
// a service cannot be built.
func New(ctx context.Context, cfg config.Config, mode Mode, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID))

	a := &App{
		cfg:      cfg,
		mode:     mode,
		logger:   logger,
		clock:    system.New(),
		runID:    runID,
		registry: prometheus.NewRegistry(),
		waiter:   sinks.NewWaiter(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.entities = entity.NewCache(
		entity.NewHTTPFetcher(nil, cfg.Crawler.UserAgent, cfg.Entities.FetchTimeout),
		entity.WithLogger(logger.Named("entities")),
	)

	workerCfg := worker.Config{
		Host:           cfg.Crawler.Host,
		Username:       cfg.Crawler.Username,
		Password:       cfg.Crawler.Password,
		UserAgent:      cfg.Crawler.UserAgent,
		RequestTimeout: cfg.Crawler.RequestTimeout,
		MaxBodyBytes:   cfg.Crawler.MaxBodyBytes,
		Parser:         cfg.Crawler.Parser,
	}
	contexts, err := worker.NewFactory(workerCfg, a.entities, logger.Named("worker"))
	if err != nil {
		return nil, fmt.Errorf("worker factory: %w", err)
	}

	if err := a.buildCrawler(contexts); err != nil {
		return nil, err
	}
	if err := a.subscribeObservers(); err != nil {
		return nil, err
	}
	if cfg.Observers.PubSubTopic != "" {
		if err := a.subscribePubSub(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	if cfg.Report.URI != "" {
		dest, err := storage.Open(ctx, cfg.Report.URI)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open report destination: %w", err)
		}
		a.dest = dest
		a.writer = report.NewWriter(dest.Store, dest.Path, logger.Named("report"))
	}
	if cfg.Server.Addr != "" {
		srv := api.NewServer(a.crawler, a.registry, a.registry, a.clock, api.Config{
			RunID:     runID,
			Start:     a.crawler.Start(),
			StartedAt: a.clock.Now(),
		}, logger.Named("api"))
		a.server = &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

func (a *App) buildCrawler(contexts dispatcher.ContextFactory) error {
	cfg := a.cfg.Crawler
	policy, err := memory.ParsePolicy(cfg.QueuePolicy)
	if err != nil {
		return fmt.Errorf("queue policy: %w", err)
	}
	depth := cfg.QueueDepth
	var hist crawler.History = history.NewMemory(a.logger.Named("history"))
	taskOpts := task.Options{Tidy: cfg.Tidy, Clock: a.clock, Logger: a.logger.Named("task")}
	if a.mode == ModeReplay {
		hist = history.Passthrough{}
		policy = memory.PolicyBlock
		depth = replayQueueDepth
		taskOpts.SkipLinks = true
	}

	c, err := dispatcher.New(dispatcher.Options{
		Host:       cfg.Host,
		Start:      cfg.Start,
		SkipSeed:   a.mode == ModeReplay,
		Threads:    cfg.Threads,
		MaxPages:   cfg.MaxPages,
		QueueDepth: depth,
		Contexts:   contexts,
		Logger:     a.logger.Named("dispatcher"),
	},
		dispatcher.WithHistory(hist),
		dispatcher.WithTaskFactory(task.NewFactory(taskOpts)),
		dispatcher.WithQueue(memory.NewQueue(depth, policy)),
		dispatcher.WithClock(a.clock),
	)
	if err != nil {
		return fmt.Errorf("build crawler: %w", err)
	}

	filters, err := buildFilters(c.Host(), cfg.Filters, a.mode)
	if err != nil {
		return err
	}
	for _, f := range filters {
		c.AddFilter(f)
	}
	a.crawler = c
	return nil
}

func buildFilters(host string, cfg config.FiltersConfig, mode Mode) ([]crawler.Filter, error) {
	var out []crawler.Filter
	if cfg.StaticAssets || mode == ModeReplay {
		out = append(out, filter.StaticAssets()...)
	}
	if mode == ModeReplay {
		out = append(out, filter.Contains(wicketInterface))
	}
	for _, s := range cfg.Suffixes {
		out = append(out, filter.Suffix(s))
	}
	for _, p := range cfg.Prefixes {
		out = append(out, filter.Prefix(host, p))
	}
	for _, s := range cfg.Contains {
		out = append(out, filter.Contains(s))
	}
	for _, expr := range cfg.Patterns {
		f, err := filter.Pattern(expr)
		if err != nil {
			return nil, fmt.Errorf("crawler.filters.patterns: %w", err)
		}
		out = append(out, f)
	}
	if bl := filter.NewHostBlocklist(cfg.BlockedHosts); bl != nil {
		out = append(out, bl)
	}
	return out, nil
}

func (a *App) subscribeObservers() error {
	a.crawler.Subscribe(sinks.NewLogObserver(a.logger.Named("progress"), a.cfg.Observers.PrintSuccess))

	threshold := a.cfg.Observers.SlowThreshold()
	if threshold == 0 && a.mode == ModeReplay {
		threshold = replaySlowThreshold
	}
	if threshold > 0 {
		a.slow = sinks.NewSlowRequestObserver(threshold, a.logger.Named("slow"))
		a.crawler.Subscribe(a.slow)
	}

	prom, err := sinks.NewPrometheusObserver(a.registry)
	if err != nil {
		return fmt.Errorf("prometheus observer: %w", err)
	}
	a.crawler.Subscribe(prom)
	a.crawler.Subscribe(a.waiter)
	return nil
}

func (a *App) subscribePubSub(ctx context.Context) error {
	client, err := pubsub.NewClient(ctx, a.cfg.Observers.PubSubProject)
	if err != nil {
		return fmt.Errorf("create pubsub client: %w", err)
	}
	a.pubsubClient = client
	topic := client.Topic(a.cfg.Observers.PubSubTopic)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check pubsub topic %q: %w", a.cfg.Observers.PubSubTopic, err)
	}
	if !exists {
		return fmt.Errorf("pubsub topic %q does not exist in project %q", a.cfg.Observers.PubSubTopic, a.cfg.Observers.PubSubProject)
	}
	a.notifier = sinks.NewPubSubObserver(topic, a.runID, a.logger.Named("pubsub"))
	a.crawler.Subscribe(a.notifier)
	return nil
}

// Crawler exposes the dispatcher, mainly for tests.
func (a *App) Crawler() *dispatcher.Crawler { return a.crawler }

// RunID returns the identifier stamped on logs and the report.
func (a *App) RunID() string { return a.runID }

// Run executes the crawl. In ModeReplay feed supplies the URLs; otherwise it is ignored.
// The report, when configured, is written even if the crawl was interrupted.
func (a *App) Run(ctx context.Context, feed Feed) error {
	if a.server != nil {
		ln, err := net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("status server listen: %w", err)
		}
		go func() {
			a.logger.Info("status server started", zap.String("addr", ln.Addr().String()))
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("status server error", zap.Error(err))
			}
		}()
	}

	startedAt := a.clock.Now()
	runErr := a.run(ctx, feed)

	if a.writer != nil {
		rep := report.Build(report.Meta{
			RunID:      a.runID,
			Host:       a.crawler.Host(),
			Start:      a.crawler.Start(),
			StartedAt:  startedAt,
			FinishedAt: a.clock.Now(),
			Finished:   a.crawler.Finished(),
		}, a.crawler.VisitedResults(), a.crawler.Counters())
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if _, err := a.writer.Write(writeCtx, rep); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	stats := a.entities.Stats()
	fields := []zap.Field{
		zap.Duration("elapsed", a.clock.Since(startedAt)),
		zap.Int("dtd_fetches", stats.Fetches),
		zap.Int("dtd_hits", stats.Hits),
	}
	select {
	case <-a.waiter.Done():
		counters, _ := a.waiter.Wait(context.Background())
		fields = append(fields, zap.Int("retrieved", counters.Retrieved))
	default:
		fields = append(fields, zap.Bool("interrupted", true))
	}
	if a.slow != nil {
		fields = append(fields, zap.Int64("slow_requests", a.slow.Count()))
	}
	a.logger.Info("crawl complete", fields...)
	return runErr
}

func (a *App) run(ctx context.Context, feed Feed) error {
	if a.mode != ModeReplay || feed == nil {
		return a.crawler.Run(ctx)
	}

	release := a.crawler.Hold()
	feedErr := make(chan error, 1)
	go func() {
		defer release()
		feedErr <- feed(ctx, a.crawler)
	}()
	runErr := a.crawler.Run(ctx)
	var err error
	select {
	case err = <-feedErr:
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return errors.Join(runErr, fmt.Errorf("replay feed: %w", err))
	}
	return runErr
}

// Close flushes notifications, stops the status server and releases the report
// destination.
func (a *App) Close() {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Warn("flush notifications", zap.Error(err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("close pubsub client", zap.Error(err))
		}
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("status server shutdown error", zap.Error(err))
		}
	}
	if a.dest != nil {
		if err := a.dest.Close(); err != nil {
			a.logger.Warn("close report destination", zap.Error(err))
		}
	}
}
