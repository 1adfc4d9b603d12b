package entity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// maxDTDBytes caps a single DTD download.
const maxDTDBytes = 4 << 20

// HTTPFetcher downloads DTDs through a colly collector.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// NewHTTPFetcher builds a fetcher with the given timeout. A nil client gets the
// collector's default one.
func NewHTTPFetcher(client *http.Client, userAgent string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{client: client, userAgent: userAgent, timeout: timeout}
}

// Fetch performs a GET for systemID and returns the body of a 200 response.
func (f *HTTPFetcher) Fetch(ctx context.Context, systemID string) ([]byte, error) {
	c := f.collector(ctx)

	var (
		status int
		body   []byte
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	if err := c.Visit(systemID); err != nil {
		return nil, fmt.Errorf("dtd request: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("dtd request: unexpected status %d %s", status, http.StatusText(status))
	}
	return body, nil
}

// collector is built per call so the request follows ctx and concurrent fetches share
// no callback state.
func (f *HTTPFetcher) collector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(maxDTDBytes),
		colly.StdlibContext(ctx),
	)
	if f.client != nil {
		c.SetClient(f.client)
	} else {
		c.SetRequestTimeout(f.timeout)
	}
	if f.userAgent != "" {
		c.UserAgent = f.userAgent
	}
	return c
}
