// Package history tracks which URLs have been claimed by the crawl.
package history

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

type entry struct {
	result    *crawler.Result
	finalized bool
}

// Memory is the default in-process ledger. A claimed URL starts pending with a shell
// Result that collects referrers until the fetched Result replaces it.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	logger  *zap.Logger
}

var _ crawler.History = (*Memory)(nil)

// NewMemory returns an empty ledger. A nil logger is replaced with a no-op logger.
func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		entries: make(map[string]*entry),
		now:     time.Now,
		logger:  logger,
	}
}

// Claim inserts rawURL as pending. Only the first caller gets true; later callers have
// ref merged into the existing entry.
func (m *Memory) Claim(rawURL string, ref crawler.Referrer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[rawURL]; ok {
		e.result.Referrers.Add(ref)
		return false
	}
	m.entries[rawURL] = &entry{result: crawler.NewResult(rawURL, ref, m.now())}
	return true
}

// Finalize swaps the pending entry for res and carries over every referrer gathered so far.
func (m *Memory) Finalize(res *crawler.Result) {
	if res == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[res.URL]
	switch {
	case !ok:
		m.logger.Warn("finalize for unclaimed url", zap.String("url", res.URL))
		m.entries[res.URL] = &entry{result: ensureReferrers(res), finalized: true}
		return
	case e.finalized:
		m.logger.Warn("unexpected report for finalized url", zap.String("url", res.URL))
		e.result.Referrers.Merge(res.Referrers)
		return
	}
	res = ensureReferrers(res)
	if e.result != res {
		res.Referrers.Merge(e.result.Referrers)
		if res.DiscoveredAt.IsZero() {
			res.DiscoveredAt = e.result.DiscoveredAt
		}
	}
	e.result = res
	e.finalized = true
}

// Release forgets a claim that is still pending.
func (m *Memory) Release(rawURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[rawURL]; ok && !e.finalized {
		delete(m.entries, rawURL)
	}
}

// Snapshot copies the finalized results. The Result values are shared, not cloned.
func (m *Memory) Snapshot() map[string]*crawler.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*crawler.Result, len(m.entries))
	for url, e := range m.entries {
		if e.finalized {
			out[url] = e.result
		}
	}
	return out
}

// Len counts claimed URLs, pending or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func ensureReferrers(res *crawler.Result) *crawler.Result {
	if res.Referrers == nil {
		res.Referrers = crawler.NewReferrerSet()
	}
	return res
}
