package replay

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

const maxLineBytes = 1 << 20

// Queuer accepts replayed URLs.
type Queuer interface {
	Queue(rawURL string, ref crawler.Referrer)
}

// Stats counts what a replay read.
type Stats struct {
	Lines   int
	Skipped int
	Queued  int
}

// Feeder turns access log lines into queued URLs under a base origin.
type Feeder struct {
	base   string
	queue  Queuer
	logger *zap.Logger
}

// NewFeeder builds a feeder. Replayed paths are resolved against host's origin, so the
// host path is ignored.
func NewFeeder(host string, q Queuer, logger *zap.Logger) (*Feeder, error) {
	u, err := crawler.ValidateHost(crawler.NormalizeHost(host))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feeder{base: u.Scheme + "://" + u.Host, queue: q, logger: logger}, nil
}

// Feed reads r line by line until EOF or ctx ends.
func (f *Feeder) Feed(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("replay canceled: %w", err)
		}
		stats.Lines++
		line := sc.Text()
		req, err := ParseLine(line)
		if err != nil {
			stats.Skipped++
			f.logger.Warn("skipping illegal line", zap.String("line", line))
			continue
		}
		target, ok := req.Target()
		if !ok {
			continue
		}
		f.queue.Queue(f.base+target, crawler.Referrer{ReferrerURL: req.Referrer()})
		stats.Queued++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read log: %w", err)
	}
	return stats, nil
}

// FeedPath replays "-" (stdin), a single file or every regular file of a directory in
// name order. Gzip input is detected by its magic bytes.
func (f *Feeder) FeedPath(ctx context.Context, path string) (Stats, error) {
	if path == "-" {
		return f.feedStream(ctx, os.Stdin)
	}
	files, err := listFiles(path)
	if err != nil {
		return Stats{}, err
	}
	var total Stats
	for _, name := range files {
		st, err := f.feedFile(ctx, name)
		total.Lines += st.Lines
		total.Skipped += st.Skipped
		total.Queued += st.Queued
		if err != nil {
			return total, err
		}
		f.logger.Info("replayed log file", zap.String("file", name), zap.Int("lines", st.Lines), zap.Int("queued", st.Queued))
	}
	return total, nil
}

func (f *Feeder) feedFile(ctx context.Context, name string) (Stats, error) {
	// #nosec G304 -- replaying operator-supplied log files is the point.
	file, err := os.Open(name)
	if err != nil {
		return Stats{}, fmt.Errorf("open log: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()
	return f.feedStream(ctx, file)
}

func (f *Feeder) feedStream(ctx context.Context, r io.Reader) (Stats, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return Stats{}, fmt.Errorf("peek log: %w", err)
	}
	if !bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		return f.Feed(ctx, br)
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return Stats{}, fmt.Errorf("open gzip log: %w", err)
	}
	defer func() {
		_ = zr.Close()
	}()
	return f.Feed(ctx, zr)
}

func listFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
