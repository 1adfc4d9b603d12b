package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

const sessionIDMarker = ";jsessionid="

// NormalizeHost ensures the crawl origin ends with a slash.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" || strings.HasSuffix(host, "/") {
		return host
	}
	return host + "/"
}

// ResolveStart makes start absolute against host unless it already lives under it.
func ResolveStart(host, start string) string {
	host = NormalizeHost(host)
	start = strings.TrimSpace(start)
	if strings.HasPrefix(start, host) {
		return start
	}
	return host + strings.TrimPrefix(start, "/")
}

// StripSessionID removes a ";jsessionid=..." path parameter, keeping any query string.
func StripSessionID(rawURL string) string {
	idx := strings.Index(rawURL, sessionIDMarker)
	if idx < 0 {
		return rawURL
	}
	path := rawURL[:idx]
	if q := strings.IndexByte(rawURL[idx:], '?'); q >= 0 {
		return path + rawURL[idx+q:]
	}
	return path
}

// ValidateHost checks that the crawl origin is an absolute http(s) URL.
func ValidateHost(host string) (*url.URL, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse host: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("host %q must use http or https", host)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("host %q has no hostname", host)
	}
	return u, nil
}

// SameOrigin reports whether u shares scheme and hostname with host, ignoring the port.
func SameOrigin(host *url.URL, u *url.URL) bool {
	if host == nil || u == nil {
		return false
	}
	return strings.EqualFold(host.Scheme, u.Scheme) && strings.EqualFold(host.Hostname(), u.Hostname())
}
