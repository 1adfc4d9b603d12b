// Package memory provides the bounded in-process work queue feeding the worker pool.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// ErrClosed is returned by Take once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Policy decides what Offer does when the queue is full.
type Policy string

const (
	// PolicyDrop rejects the task immediately.
	PolicyDrop Policy = "drop"
	// PolicyBlock waits for space, shutdown or ctx.
	PolicyBlock Policy = "block"
)

// ParsePolicy maps a config value onto a Policy. Empty means PolicyDrop.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyDrop:
		return PolicyDrop, nil
	case PolicyBlock:
		return PolicyBlock, nil
	default:
		return "", fmt.Errorf("unknown queue policy %q", s)
	}
}

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan crawler.Task
	policy Policy

	done      chan struct{}
	closeOnce sync.Once
}

var _ crawler.Queue = (*Queue)(nil)

// NewQueue constructs a queue holding up to capacity tasks.
func NewQueue(capacity int, policy Policy) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	if policy == "" {
		policy = PolicyDrop
	}
	return &Queue{
		ch:     make(chan crawler.Task, capacity),
		policy: policy,
		done:   make(chan struct{}),
	}
}

// Offer submits t and reports whether it was accepted. A closed queue accepts nothing.
func (q *Queue) Offer(ctx context.Context, t crawler.Task) bool {
	if q.TryOffer(t) {
		return true
	}
	if q.policy == PolicyDrop {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-q.done:
		return false
	case q.ch <- t:
		return true
	}
}

// TryOffer submits t only if the queue has room, whatever the policy.
func (q *Queue) TryOffer(t crawler.Task) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- t:
		return true
	default:
		return false
	}
}

// Take pops the next task. Tasks queued before Close are still handed out.
func (q *Queue) Take(ctx context.Context) (crawler.Task, error) {
	select {
	case t := <-q.ch:
		return t, nil
	default:
	}
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("take canceled: %w", ctx.Err())
	case t := <-q.ch:
		return t, nil
	case <-q.done:
		select {
		case t := <-q.ch:
			return t, nil
		default:
			return nil, ErrClosed
		}
	}
}

// Len reports how many tasks wait in the queue.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting tasks. Closing twice is safe.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
