package crawler

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/sitecrawler/internal/markup"
)

// Dispatcher is the side of the crawler a running task talks back to.
type Dispatcher interface {
	Queue(rawURL string, ref Referrer)
	Report(res *Result)
	Host() string
}

// Task is one unit of work executed on a worker.
type Task interface {
	URL() string
	Referrer() Referrer
	Run(ctx context.Context, wc WorkerContext)
}

// TaskFactory builds the task for an accepted URL.
type TaskFactory interface {
	NewTask(d Dispatcher, rawURL string, ref Referrer) Task
}

// TaskFactoryFunc adapts a function to TaskFactory.
type TaskFactoryFunc func(d Dispatcher, rawURL string, ref Referrer) Task

// NewTask calls f.
func (f TaskFactoryFunc) NewTask(d Dispatcher, rawURL string, ref Referrer) Task {
	return f(d, rawURL, ref)
}

// History is the ledger of claimed URLs.
type History interface {
	// Claim marks rawURL as owned. Only the first caller gets true; later callers have their
	// referrer merged into the existing entry.
	Claim(rawURL string, ref Referrer) bool
	// Finalize replaces the pending claim with the fetched result.
	Finalize(res *Result)
	// Release forgets a pending claim that was never submitted.
	Release(rawURL string)
	// Snapshot returns the finalized results keyed by URL.
	Snapshot() map[string]*Result
}

// Queue is the bounded work queue feeding the worker pool.
type Queue interface {
	// Offer submits a task and reports whether it was accepted. Depending on the queue's
	// policy a full queue either rejects or makes the caller wait.
	Offer(ctx context.Context, t Task) bool
	// TryOffer submits a task only if there is room right now.
	TryOffer(t Task) bool
	// Take blocks until a task is available or ctx ends.
	Take(ctx context.Context) (Task, error)
	Close()
}

// Filter vetoes a candidate task before it takes a worker slot.
type Filter interface {
	Name() string
	Match(t Task) bool
}

// Fetcher performs a single GET.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResponse, error)
}

// Parser streams start elements of a markup document.
type Parser interface {
	Parse(ctx context.Context, r io.Reader, fn markup.StartElementFunc) error
}

// WorkerContext is the per-worker bundle of HTTP client and markup parser.
type WorkerContext interface {
	Fetcher
	Parser
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
