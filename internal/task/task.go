// Package task implements the fetch-and-extract unit of work run on crawl workers.
package task

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/markup"
)

// FetchTask fetches one URL, classifies the response and feeds discovered links back to
// the dispatcher. It always reports exactly one Result.
type FetchTask struct {
	d          crawler.Dispatcher
	url        string
	ref        crawler.Referrer
	discovered time.Time
	tidy       bool
	skipLinks  bool
	logger     *zap.Logger
}

var _ crawler.Task = (*FetchTask)(nil)

// URL returns the URL this task fetches.
func (t *FetchTask) URL() string { return t.url }

// Referrer returns the referrer the URL was first discovered through.
func (t *FetchTask) Referrer() crawler.Referrer { return t.ref }

// Run executes the task on wc. Failures end up in the reported Result.
func (t *FetchTask) Run(ctx context.Context, wc crawler.WorkerContext) {
	res := crawler.NewResult(t.url, t.ref, t.discovered)
	defer func() {
		if r := recover(); r != nil {
			res.ErrorKind = crawler.KindUnexpected
			res.Error = fmt.Sprintf("panic: %v", r)
			t.logger.Error("task panicked", zap.String("url", t.url), zap.Any("panic", r))
		}
		t.d.Report(res)
	}()

	if err := t.execute(ctx, wc, res); err != nil {
		res.ErrorKind = crawler.KindOf(err)
		res.Error = err.Error()
		if res.ErrorKind == crawler.KindUnexpected {
			t.logger.Error("fetch failed", zap.String("url", t.url), zap.Error(err))
		} else {
			t.logger.Warn("fetch failed",
				zap.String("url", t.url),
				zap.String("kind", string(res.ErrorKind)),
				zap.Error(err),
			)
		}
	}
}

func (t *FetchTask) execute(ctx context.Context, wc crawler.WorkerContext, res *crawler.Result) error {
	resp, err := wc.Fetch(ctx, t.url)
	res.Elapsed = resp.Duration
	if err != nil {
		return err
	}
	res.Status = resp.StatusCode
	res.ContentType = resp.Headers.Get("Content-Type")
	res.Size = len(resp.Body)

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return t.redirect(resp)
	case resp.StatusCode == http.StatusOK:
		if !markup.IsText(res.ContentType) {
			res.Raw = resp.Body
			return nil
		}
		text, err := decode(resp, res.ContentType)
		if err != nil {
			return crawler.NewFetchError(crawler.KindContent, t.url, err)
		}
		res.Text = text
		if t.skipLinks || !markup.IsHTML(res.ContentType) {
			return nil
		}
		return t.extractLinks(ctx, wc, text)
	default:
		return nil
	}
}

func (t *FetchTask) redirect(resp crawler.FetchResponse) error {
	location := resp.Headers.Get("Location")
	if location == "" {
		return crawler.Errorf(crawler.KindProtocol, t.url, "redirect %d without Location header", resp.StatusCode)
	}
	target := ResolveLocation(t.d.Host(), t.url, location)
	ref := crawler.Referrer{
		ReferrerURL: t.url,
		Href:        resp.Status + ": " + t.ref.String(),
	}
	t.logger.Debug("following redirect", zap.String("url", t.url), zap.String("location", target))
	t.d.Queue(target, ref)
	return nil
}

func (t *FetchTask) extractLinks(ctx context.Context, wc crawler.WorkerContext, text string) error {
	if t.tidy {
		tidied, err := markup.Tidy(text)
		if err != nil {
			return crawler.NewFetchError(crawler.KindContent, t.url, err)
		}
		text = tidied
	}
	host := t.d.Host()
	found := 0
	err := wc.Parse(ctx, strings.NewReader(text), func(name string, attrs []markup.Attr) {
		if name != "a" {
			return
		}
		href, ok := markup.Lookup(attrs, "href")
		if !ok {
			return
		}
		link, ok := ResolveLink(host, t.url, href)
		if !ok {
			return
		}
		found++
		t.d.Queue(link, crawler.Referrer{ReferrerURL: t.url, Href: href})
	})
	if err != nil {
		return crawler.NewFetchError(crawler.KindContent, t.url, err)
	}
	t.logger.Debug("links extracted", zap.String("url", t.url), zap.Int("links", found))
	return nil
}

func decode(resp crawler.FetchResponse, contentType string) (string, error) {
	if resp.Decoded {
		contentType = "text/plain; charset=utf-8"
	}
	text, err := markup.DecodeText(resp.Body, contentType)
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	return text, nil
}
