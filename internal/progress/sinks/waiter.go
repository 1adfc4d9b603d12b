package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/progress"
)

// Waiter closes Done when the crawl finishes.
type Waiter struct {
	once     sync.Once
	done     chan struct{}
	counters crawler.Counters
}

// NewWaiter returns a waiter that has not seen the finished event yet.
func NewWaiter() *Waiter {
	return &Waiter{done: make(chan struct{})}
}

// Notify implements progress.Observer.
func (w *Waiter) Notify(evt progress.Event) {
	if evt.Kind != progress.KindFinished {
		return
	}
	w.once.Do(func() {
		w.counters = evt.Counters
		close(w.done)
	})
}

// Done is closed once the finished event arrives.
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the crawl finishes or ctx ends and returns the final counters.
func (w *Waiter) Wait(ctx context.Context) (crawler.Counters, error) {
	select {
	case <-w.done:
		return w.counters, nil
	case <-ctx.Done():
		return crawler.Counters{}, fmt.Errorf("wait for crawl: %w", ctx.Err())
	}
}
