// Package worker builds the per-goroutine resources a crawl worker uses for every task.
package worker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/markup"
)

// Context is one worker's HTTP client and markup parser. It must not be shared between
// goroutines.
type Context struct {
	collector *colly.Collector
	parser    crawler.Parser
	host      *url.URL
	auth      string

	// response is written by the collector callback during Visit.
	response *crawler.FetchResponse
	start    time.Time
}

var _ crawler.WorkerContext = (*Context)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
}

func newContext(ctx context.Context, cfg Config, host *url.URL, parser crawler.Parser) *Context {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
		colly.StdlibContext(ctx),
	)
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.RequestTimeout)
	// Redirects are handed back to the task, which re-queues the target.
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	wc := &Context{
		collector: c,
		parser:    parser,
		host:      host,
	}
	if cfg.Username != "" || cfg.Password != "" {
		wc.auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Username+":"+cfg.Password))
	}
	wc.configureHooks(c)
	return wc
}

func (wc *Context) configureHooks(hooks collectorHooks) {
	hooks.OnRequest(func(r *colly.Request) {
		if wc.auth != "" && crawler.SameOrigin(wc.host, r.URL) {
			r.Headers.Set("Authorization", wc.auth)
		}
	})
	hooks.OnResponse(func(r *colly.Response) {
		if wc.response == nil {
			return
		}
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*wc.response = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Status:     http.StatusText(r.StatusCode),
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(wc.start),
			Decoded:    declaresCharset(headers.Get("Content-Type")),
		}
	})
}

// Fetch issues a GET for rawURL. Redirects are returned, not followed; non-2xx statuses
// are responses, not errors.
func (wc *Context) Fetch(ctx context.Context, rawURL string) (crawler.FetchResponse, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return crawler.FetchResponse{}, crawler.NewFetchError(crawler.KindURL, rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return crawler.FetchResponse{}, crawler.Errorf(crawler.KindURL, rawURL, "unsupported url %q", rawURL)
	}
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, crawler.NewFetchError(crawler.KindTransport, rawURL, err)
	}

	var resp crawler.FetchResponse
	wc.response = &resp
	wc.start = time.Now()
	defer func() { wc.response = nil }()

	if err := wc.collector.Visit(u.String()); err != nil {
		return crawler.FetchResponse{Duration: time.Since(wc.start)}, classify(rawURL, err)
	}
	if resp.StatusCode == 0 {
		return crawler.FetchResponse{Duration: time.Since(wc.start)},
			crawler.Errorf(crawler.KindTransport, rawURL, "no response for %s", rawURL)
	}
	return resp, nil
}

// Parse runs the worker's markup parser.
func (wc *Context) Parse(ctx context.Context, r io.Reader, fn markup.StartElementFunc) error {
	if err := wc.parser.Parse(ctx, r, fn); err != nil {
		return fmt.Errorf("parse markup: %w", err)
	}
	return nil
}

func classify(rawURL string, err error) error {
	switch {
	case errors.Is(err, colly.ErrMissingURL), errors.Is(err, colly.ErrForbiddenDomain):
		return crawler.NewFetchError(crawler.KindURL, rawURL, err)
	default:
		return crawler.NewFetchError(crawler.KindTransport, rawURL, fmt.Errorf("colly visit failed: %w", err))
	}
}

func declaresCharset(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "charset")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
