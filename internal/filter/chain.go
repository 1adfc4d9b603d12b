// Package filter holds the predicates that veto candidate URLs before they are fetched.
package filter

import (
	"sync"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Chain is an ordered list of filters. It is safe to add filters while a crawl runs.
type Chain struct {
	mu      sync.RWMutex
	filters []crawler.Filter
}

// NewChain returns a chain holding filters in order.
func NewChain(filters ...crawler.Filter) *Chain {
	c := &Chain{}
	for _, f := range filters {
		c.Add(f)
	}
	return c
}

// Add appends f. Nil filters are ignored.
func (c *Chain) Add(f crawler.Filter) {
	if f == nil {
		return
	}
	c.mu.Lock()
	c.filters = append(c.filters, f)
	c.mu.Unlock()
}

// Filter returns the first filter matching t, or nil when t may proceed.
func (c *Chain) Filter(t crawler.Task) crawler.Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.filters {
		if f.Match(t) {
			return f
		}
	}
	return nil
}

// Len returns the number of registered filters.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}
