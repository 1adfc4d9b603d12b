// Package report renders the outcome of a crawl as JSON and writes it to a blob store.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/hash/sha256"
	"github.com/JakeFAU/sitecrawler/internal/storage"
)

const contentType = "application/json"

// Meta describes the run a report belongs to.
type Meta struct {
	RunID      string    `json:"run_id"`
	Host       string    `json:"host"`
	Start      string    `json:"start"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Finished   bool      `json:"finished"`
}

// Entry is one visited URL.
type Entry struct {
	URL           string             `json:"url"`
	DiscoveredAt  time.Time          `json:"discovered_at"`
	ElapsedMillis int64              `json:"elapsed_ms"`
	Status        int                `json:"status"`
	ContentType   string             `json:"content_type,omitempty"`
	Size          int                `json:"size"`
	SHA256        string             `json:"sha256,omitempty"`
	ErrorKind     crawler.ErrorKind  `json:"error_kind,omitempty"`
	Error         string             `json:"error,omitempty"`
	Referrers     []crawler.Referrer `json:"referrers"`
}

// Report is the document written at the end of a crawl.
type Report struct {
	Meta
	Counters crawler.Counters `json:"counters"`
	Failures int              `json:"failures"`
	Results  []Entry          `json:"results"`
}

// Build turns the visited results into a report sorted by URL.
func Build(meta Meta, results map[string]*crawler.Result, counters crawler.Counters) *Report {
	hasher := sha256.New()
	rep := &Report{Meta: meta, Counters: counters, Results: make([]Entry, 0, len(results))}
	for _, res := range results {
		if res == nil {
			continue
		}
		e := Entry{
			URL:           res.URL,
			DiscoveredAt:  res.DiscoveredAt,
			ElapsedMillis: res.ElapsedMillis(),
			Status:        res.Status,
			ContentType:   res.ContentType,
			Size:          res.Size,
			ErrorKind:     res.ErrorKind,
			Error:         res.Error,
			Referrers:     []crawler.Referrer{},
		}
		switch {
		case res.Raw != nil:
			e.SHA256 = hasher.Hash(res.Raw)
		case res.Text != "":
			e.SHA256 = hasher.HashString(res.Text)
		}
		if res.Referrers != nil {
			e.Referrers = res.Referrers.List()
		}
		if res.Failed() {
			rep.Failures++
		}
		rep.Results = append(rep.Results, e)
	}
	sort.Slice(rep.Results, func(i, j int) bool { return rep.Results[i].URL < rep.Results[j].URL })
	return rep
}

// Writer stores reports at a fixed destination.
type Writer struct {
	store  storage.BlobStore
	path   string
	logger *zap.Logger
}

// NewWriter writes reports to path inside store.
func NewWriter(store storage.BlobStore, path string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, path: path, logger: logger}
}

// Write encodes rep and uploads it, returning the URI the store reported.
func (w *Writer) Write(ctx context.Context, rep *Report) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	size := buf.Len()
	uri, err := w.store.PutObject(ctx, w.path, contentType, &buf)
	if err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	w.logger.Info("report written",
		zap.String("uri", uri),
		zap.String("run_id", rep.RunID),
		zap.Int("results", len(rep.Results)),
		zap.Int("bytes", size),
	)
	return uri, nil
}
