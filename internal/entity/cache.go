// Package entity caches external DTDs and entity sets referenced by parsed documents.
package entity

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/sitecrawler/internal/markup"
)

// CanonicalDTDBase is where DTDs referenced by a local path actually live.
const CanonicalDTDBase = "http://www.w3.org/TR/xhtml1/DTD/"

//go:embed dtd/xhtml1-transitional.dtd
var xhtmlTransitional []byte

// ErrNoIdentifier is returned when both identifiers are empty.
var ErrNoIdentifier = errors.New("entity has neither public nor system id")

// Fetcher retrieves a DTD over the network.
type Fetcher interface {
	Fetch(ctx context.Context, systemID string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, systemID string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, systemID string) ([]byte, error) {
	return f(ctx, systemID)
}

// Stats counts cache outcomes.
type Stats struct {
	Hits    int
	Fetches int
}

var _ markup.EntityResolver = (*Cache)(nil)

// Cache resolves DTDs by public id. Concurrent misses for one id share a single fetch.
type Cache struct {
	fetcher Fetcher
	logger  *zap.Logger

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string][]byte
	stats   Stats
}

// Option customises a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithoutBundled skips seeding the bundled XHTML DTD.
func WithoutBundled() Option {
	return func(c *Cache) {
		delete(c.entries, markup.XHTMLTransitionalPublicID)
		delete(c.entries, markup.XHTMLTransitionalSystemID)
	}
}

// NewCache returns a cache preloaded with the bundled XHTML Transitional DTD.
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		logger:  zap.NewNop(),
		entries: map[string][]byte{
			markup.XHTMLTransitionalPublicID: xhtmlTransitional,
			markup.XHTMLTransitionalSystemID: xhtmlTransitional,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the DTD for publicID, fetching systemID on the first miss. A blank
// publicID falls back to keying by the rewritten system id.
func (c *Cache) Resolve(ctx context.Context, publicID, systemID string) ([]byte, error) {
	systemID = CanonicalSystemID(systemID)
	key := publicID
	if key == "" {
		key = systemID
	}
	if key == "" {
		return nil, ErrNoIdentifier
	}
	if data, ok := c.lookup(key); ok {
		return bytes.Clone(data), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if data, ok := c.lookup(key); ok {
			return data, nil
		}
		if c.fetcher == nil || systemID == "" {
			return nil, fmt.Errorf("no source for entity %q", key)
		}
		c.logger.Debug("fetching dtd", zap.String("public_id", publicID), zap.String("system_id", systemID))
		data, err := c.fetcher.Fetch(ctx, systemID)
		if err != nil {
			return nil, fmt.Errorf("fetch dtd %s: %w", systemID, err)
		}
		c.mu.Lock()
		c.entries[key] = data
		c.stats.Fetches++
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.([]byte)), nil
}

// Stats returns the hit and fetch counts so far.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Len returns how many identifiers are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if ok {
		c.stats.Hits++
	}
	return data, ok
}

// CanonicalSystemID maps file and relative system ids onto CanonicalDTDBase. Remote ids
// are returned unchanged.
func CanonicalSystemID(systemID string) string {
	systemID = strings.TrimSpace(systemID)
	if systemID == "" {
		return ""
	}
	u, err := url.Parse(systemID)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return systemID
	}
	name := systemID
	if err == nil && u.Path != "" {
		name = u.Path
	}
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return systemID
	}
	return CanonicalDTDBase + base
}
