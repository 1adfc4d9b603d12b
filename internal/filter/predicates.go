package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Func adapts a function into a named filter.
type Func struct {
	name  string
	match func(crawler.Task) bool
}

// New returns a filter called name that vetoes tasks for which match returns true.
func New(name string, match func(crawler.Task) bool) *Func {
	return &Func{name: name, match: match}
}

// Name implements crawler.Filter.
func (f *Func) Name() string { return f.name }

// Match implements crawler.Filter.
func (f *Func) Match(t crawler.Task) bool { return f.match(t) }

// Prefix vetoes URLs below host whose remainder starts with prefix. A leading slash on
// prefix is optional.
func Prefix(host, prefix string) *Func {
	full := crawler.NormalizeHost(host) + strings.TrimPrefix(prefix, "/")
	return New("prefix:"+prefix, func(t crawler.Task) bool {
		return strings.HasPrefix(t.URL(), full)
	})
}

// Suffix vetoes URLs ending in suffix, ignoring case.
func Suffix(suffix string) *Func {
	lower := strings.ToLower(suffix)
	return New("suffix:"+suffix, func(t crawler.Task) bool {
		return strings.HasSuffix(strings.ToLower(t.URL()), lower)
	})
}

// Contains vetoes URLs containing s.
func Contains(s string) *Func {
	return New("contains:"+s, func(t crawler.Task) bool {
		return strings.Contains(t.URL(), s)
	})
}

// Pattern vetoes URLs matching the regular expression expr.
func Pattern(expr string) (*Func, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile filter pattern %q: %w", expr, err)
	}
	return New("pattern:"+expr, func(t crawler.Task) bool {
		return re.MatchString(t.URL())
	}), nil
}

// StaticAssets returns the suffix filters used when replaying request logs.
func StaticAssets() []crawler.Filter {
	exts := []string{".jpg", ".jpeg", ".gif", ".png", ".ico", ".xml"}
	out := make([]crawler.Filter, 0, len(exts))
	for _, ext := range exts {
		out = append(out, Suffix(ext))
	}
	return out
}
