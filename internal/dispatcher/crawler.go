// Package dispatcher runs a crawl: it deduplicates and filters discovered URLs, feeds
// them to a fixed worker pool and announces completion once every dispatched URL has
// been reported.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/clock/system"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/filter"
	"github.com/JakeFAU/sitecrawler/internal/history"
	"github.com/JakeFAU/sitecrawler/internal/progress"
	"github.com/JakeFAU/sitecrawler/internal/queue/memory"
	"github.com/JakeFAU/sitecrawler/internal/task"
)

const defaultQueueDepth = 1024

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("crawl already running")

// Crawler coordinates one crawl.
type Crawler struct {
	host     string
	start    string
	skipSeed bool
	threads  int
	max      int

	history  crawler.History
	tasks    crawler.TaskFactory
	queue    crawler.Queue
	contexts ContextFactory
	filters  *filter.Chain
	bus      *progress.Bus
	clock    crawler.Clock
	logger   *zap.Logger

	// mu guards the counters and the finished flag together so completion is decided
	// on a consistent view.
	mu         sync.Mutex
	dispatched int
	retrieved  int
	publishing int
	holds      int
	running    bool
	stopping   bool
	finished   bool
	runCtx     context.Context
	startedAt  time.Time

	done chan struct{}
}

var _ crawler.Dispatcher = (*Crawler)(nil)

// New validates opts and builds a crawler. Strategies not supplied through options get
// the in-memory history, the fetch task factory and a drop-policy queue.
func New(opts Options, options ...Option) (*Crawler, error) {
	host := crawler.NormalizeHost(opts.Host)
	if _, err := crawler.ValidateHost(host); err != nil {
		return nil, err
	}
	if opts.Threads < 1 {
		return nil, fmt.Errorf("threads must be positive, got %d", opts.Threads)
	}
	if opts.MaxPages < 0 {
		return nil, fmt.Errorf("max pages must not be negative, got %d", opts.MaxPages)
	}
	if opts.Contexts == nil {
		return nil, errors.New("worker context factory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}

	c := &Crawler{
		host:     host,
		start:    crawler.ResolveStart(host, opts.Start),
		skipSeed: opts.SkipSeed,
		threads:  opts.Threads,
		max:      opts.MaxPages,
		contexts: opts.Contexts,
		filters:  filter.NewChain(),
		bus:      progress.NewBus(logger.Named("observers")),
		clock:    system.New(),
		logger:   logger,
		done:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.history == nil {
		c.history = history.NewMemory(logger.Named("history"))
	}
	if c.tasks == nil {
		c.tasks = task.NewFactory(task.Options{Clock: c.clock, Logger: logger.Named("task")})
	}
	if c.queue == nil {
		c.queue = memory.NewQueue(depth, memory.PolicyDrop)
	}
	return c, nil
}

// Host returns the normalised crawl origin.
func (c *Crawler) Host() string { return c.host }

// Start returns the resolved seed URL.
func (c *Crawler) Start() string { return c.start }

// AddFilter appends f to the filter chain.
func (c *Crawler) AddFilter(f crawler.Filter) { c.filters.Add(f) }

// Subscribe registers an observer for results and the finished event.
func (c *Crawler) Subscribe(o progress.Observer) { c.bus.Subscribe(o) }

// VisitedResults returns the finalized results keyed by URL.
func (c *Crawler) VisitedResults() map[string]*crawler.Result { return c.history.Snapshot() }

// DispatchedCount returns how many URLs went to the worker pool.
func (c *Crawler) DispatchedCount() int { return c.Counters().Dispatched }

// RetrievedCount returns how many dispatched URLs have been reported.
func (c *Crawler) RetrievedCount() int { return c.Counters().Retrieved }

// Counters returns a consistent snapshot of both counters.
func (c *Crawler) Counters() crawler.Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countersLocked()
}

// Finished reports whether the finished event has fired.
func (c *Crawler) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// Done is closed once the crawl has finished.
func (c *Crawler) Done() <-chan struct{} { return c.done }

// Queue submits rawURL, discovered through ref. A full queue waits when the queue policy
// blocks.
func (c *Crawler) Queue(rawURL string, ref crawler.Referrer) {
	c.submit(rawURL, ref, true)
}

// Report records the result of a dispatched URL and publishes it.
func (c *Crawler) Report(res *crawler.Result) {
	if res == nil {
		return
	}
	c.history.Finalize(res)

	c.mu.Lock()
	c.retrieved++
	if c.retrieved > c.dispatched {
		c.logger.Error("retrieved exceeds dispatched",
			zap.String("url", res.URL),
			zap.Int("dispatched", c.dispatched),
			zap.Int("retrieved", c.retrieved),
		)
	}
	c.publishing++
	counters := c.countersLocked()
	c.mu.Unlock()

	c.bus.PublishResult(res, counters)

	c.mu.Lock()
	c.publishing--
	c.mu.Unlock()
	c.maybeFinish()
}

// Hold keeps the crawl open until the returned release func is called, even when every
// dispatched URL has been reported. Take a hold before Run to feed URLs from outside.
func (c *Crawler) Hold() (release func()) {
	c.mu.Lock()
	c.holds++
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.holds--
			c.mu.Unlock()
			c.maybeFinish()
		})
	}
}

// Run builds one WorkerContext per worker, starts the pool, seeds the start URL and
// blocks until the crawl finishes or ctx ends.
func (c *Crawler) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	contexts := make([]crawler.WorkerContext, 0, c.threads)
	for i := range c.threads {
		wc, err := c.contexts.NewContext(runCtx, i)
		if err != nil {
			c.queue.Close()
			return fmt.Errorf("create worker context %d: %w", i, err)
		}
		contexts = append(contexts, wc)
	}

	c.mu.Lock()
	c.runCtx = runCtx
	c.startedAt = c.clock.Now()
	c.mu.Unlock()

	c.logger.Info("crawl started",
		zap.String("host", c.host),
		zap.String("start", c.start),
		zap.Int("threads", c.threads),
		zap.Int("max_pages", c.max),
		zap.Int("filters", c.filters.Len()),
		zap.Int("observers", c.bus.Len()),
	)

	var wg sync.WaitGroup
	for i, wc := range contexts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.work(runCtx, i, wc)
		}()
	}

	release := c.Hold()
	if !c.skipSeed {
		c.Queue(c.start, crawler.Referrer{})
	}
	release()

	var err error
	select {
	case <-c.done:
	case <-ctx.Done():
		err = fmt.Errorf("crawl interrupted: %w", ctx.Err())
	}
	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()
	c.queue.Close()
	cancel()
	wg.Wait()

	counters := c.Counters()
	fields := []zap.Field{
		zap.Int("dispatched", counters.Dispatched),
		zap.Int("retrieved", counters.Retrieved),
		zap.Duration("elapsed", c.clock.Now().Sub(c.startedAt)),
		zap.Bool("finished", c.Finished()),
	}
	if sized, ok := c.history.(interface{ Len() int }); ok {
		fields = append(fields, zap.Int("claimed", sized.Len()))
	}
	c.logger.Info("crawl stopped", fields...)
	return err
}

func (c *Crawler) work(ctx context.Context, id int, wc crawler.WorkerContext) {
	logger := c.logger.With(zap.Int("worker", id))
	for {
		t, err := c.queue.Take(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, memory.ErrClosed) {
				logger.Error("queue take failed", zap.Error(err))
			}
			return
		}
		t.Run(ctx, wc)
	}
}

// submit runs the queue pipeline: normalise, cap check, claim, filter, then hand the
// task to the pool. wait selects Offer over TryOffer.
func (c *Crawler) submit(rawURL string, ref crawler.Referrer, wait bool) {
	normalized := crawler.StripSessionID(strings.TrimSpace(rawURL))
	if normalized == "" {
		return
	}
	if c.capped() {
		return
	}
	if !c.history.Claim(normalized, ref) {
		return
	}

	t := c.tasks.NewTask(workerSide{c}, normalized, ref)
	if f := c.filters.Filter(t); f != nil {
		c.logger.Debug("url filtered", zap.String("url", normalized), zap.String("filter", f.Name()))
		return
	}

	c.mu.Lock()
	if c.max > 0 && c.dispatched >= c.max {
		c.mu.Unlock()
		c.history.Release(normalized)
		return
	}
	c.dispatched++
	reachedMax := c.max > 0 && c.dispatched == c.max
	offerCtx := c.runCtx
	c.mu.Unlock()
	if offerCtx == nil {
		offerCtx = context.Background()
	}
	if reachedMax {
		c.logger.Info("reached dispatch max", zap.Int("max_pages", c.max))
	}

	var accepted bool
	if wait {
		accepted = c.queue.Offer(offerCtx, t)
	} else {
		accepted = c.queue.TryOffer(t)
	}
	if accepted {
		return
	}

	c.mu.Lock()
	c.dispatched--
	c.mu.Unlock()
	c.history.Release(normalized)
	c.logger.Warn("work queue rejected url", zap.String("url", normalized))
	c.maybeFinish()
}

func (c *Crawler) capped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max > 0 && c.dispatched >= c.max
}

func (c *Crawler) maybeFinish() {
	c.mu.Lock()
	if c.finished || !c.running || c.stopping || c.holds > 0 || c.publishing > 0 || c.dispatched != c.retrieved {
		c.mu.Unlock()
		return
	}
	// Reports that land after cancellation must not complete an interrupted run.
	if c.runCtx != nil && c.runCtx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.finished = true
	counters := c.countersLocked()
	c.mu.Unlock()

	c.bus.PublishFinished(counters)
	close(c.done)
}

func (c *Crawler) countersLocked() crawler.Counters {
	return crawler.Counters{Dispatched: c.dispatched, Retrieved: c.retrieved}
}

// workerSide is the Dispatcher handed to tasks. Links found by workers never wait for
// queue space, so a blocking queue cannot stall the pool on itself.
type workerSide struct {
	c *Crawler
}

func (w workerSide) Queue(rawURL string, ref crawler.Referrer) { w.c.submit(rawURL, ref, false) }

func (w workerSide) Report(res *crawler.Result) { w.c.Report(res) }

func (w workerSide) Host() string { return w.c.host }
