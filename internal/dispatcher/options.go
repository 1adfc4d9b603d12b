package dispatcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// ContextFactory builds the WorkerContext owned by worker id.
type ContextFactory interface {
	NewContext(ctx context.Context, id int) (crawler.WorkerContext, error)
}

// ContextFactoryFunc adapts a function to ContextFactory.
type ContextFactoryFunc func(ctx context.Context, id int) (crawler.WorkerContext, error)

// NewContext calls f.
func (f ContextFactoryFunc) NewContext(ctx context.Context, id int) (crawler.WorkerContext, error) {
	return f(ctx, id)
}

// Options is the construction configuration of a crawl.
type Options struct {
	// Host is the crawl origin; a trailing slash is added when missing.
	Host string
	// Start is the seed URL, resolved against Host unless it already lives under it.
	Start string
	// SkipSeed starts the pool without queueing Start; URLs come from Queue calls made
	// under a Hold.
	SkipSeed bool
	// Threads is the worker count.
	Threads int
	// MaxPages caps dispatched URLs. Zero means unbounded.
	MaxPages int
	// QueueDepth sizes the default work queue.
	QueueDepth int
	// Contexts builds one WorkerContext per worker.
	Contexts ContextFactory
	Logger   *zap.Logger
}

// Option swaps one of the crawl strategies.
type Option func(*Crawler)

// WithHistory replaces the in-memory history.
func WithHistory(h crawler.History) Option {
	return func(c *Crawler) {
		if h != nil {
			c.history = h
		}
	}
}

// WithTaskFactory replaces the default fetch task factory.
func WithTaskFactory(f crawler.TaskFactory) Option {
	return func(c *Crawler) {
		if f != nil {
			c.tasks = f
		}
	}
}

// WithQueue replaces the default drop-policy queue.
func WithQueue(q crawler.Queue) Option {
	return func(c *Crawler) {
		if q != nil {
			c.queue = q
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(clk crawler.Clock) Option {
	return func(c *Crawler) {
		if clk != nil {
			c.clock = clk
		}
	}
}
