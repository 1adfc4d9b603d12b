package filter

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// HostBlocklist vetoes URLs on blocked hosts. Entries are exact hosts or "*.suffix"
// wildcards; a leading dot is read as a wildcard too.
type HostBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewHostBlocklist builds a blocklist from patterns. It returns nil when no pattern is usable.
func NewHostBlocklist(patterns []string) *HostBlocklist {
	b := &HostBlocklist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
		}
	}
	if len(b.exact) == 0 && len(b.suffixes) == 0 {
		return nil
	}
	return b
}

func (b *HostBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// Name implements crawler.Filter.
func (b *HostBlocklist) Name() string { return "host-blocklist" }

// Match implements crawler.Filter. Unparseable URLs pass so the fetch reports them.
func (b *HostBlocklist) Match(t crawler.Task) bool {
	u, err := url.Parse(t.URL())
	if err != nil {
		return false
	}
	return b.IsBlocked(u.Hostname())
}

// IsBlocked reports whether host is covered by the blocklist.
func (b *HostBlocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
