package task

import (
	"regexp"
	"strings"
)

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)

// ResolveLink turns an href found on page into an absolute URL under host. It reports
// false for links the crawl must not follow: same-page anchors, foreign hosts and
// non-http schemes.
func ResolveLink(host, page, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if i := strings.LastIndex(href, "#"); i == 0 {
		return "", false
	} else if i > 0 {
		href = href[:i]
	}
	if href == "" {
		return "", false
	}

	var resolved string
	switch {
	case strings.HasPrefix(href, "//"):
		scheme, _, _ := strings.Cut(host, "//")
		resolved = scheme + href
	case schemePattern.MatchString(href):
		lower := strings.ToLower(href)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return "", false
		}
		resolved = href
	case strings.HasPrefix(href, "/"):
		resolved = host + href[1:]
	case strings.HasPrefix(href, "?"):
		resolved = stripQuery(page) + href
	default:
		resolved = resolveRelative(page, href)
	}
	if !strings.HasPrefix(resolved, host) {
		return "", false
	}
	return resolved, true
}

// ResolveLocation resolves a redirect target. Only root-relative locations are rebased
// onto host; anything else is followed as given, relative paths against page.
func ResolveLocation(host, page, location string) string {
	location = strings.TrimSpace(location)
	switch {
	case strings.HasPrefix(location, "//"):
		scheme, _, _ := strings.Cut(host, "//")
		return scheme + location
	case strings.HasPrefix(location, "/"):
		return host + location[1:]
	case schemePattern.MatchString(location):
		return location
	default:
		return resolveRelative(page, location)
	}
}

// resolveRelative consumes leading "../" and "./" segments against page's directory.
// "../" never climbs above the origin.
func resolveRelative(page, href string) string {
	base := stripQuery(page)
	root := originLen(base)
	dir := base
	if i := strings.LastIndex(base, "/"); i >= root-1 {
		dir = base[:i+1]
	} else {
		dir = base + "/"
	}
	switch href {
	case ".":
		href = "./"
	case "..":
		href = "../"
	}
	for {
		switch {
		case strings.HasPrefix(href, "../"):
			href = href[3:]
			dir = parentDir(dir, root)
		case strings.HasPrefix(href, "./"):
			href = href[2:]
		default:
			return dir + href
		}
	}
}

func parentDir(dir string, root int) string {
	trimmed := strings.TrimSuffix(dir, "/")
	i := strings.LastIndex(trimmed, "/")
	if i+1 < root {
		return dir[:root]
	}
	return trimmed[:i+1]
}

// originLen returns the length of "scheme://authority/" in u, or 0 when u has no scheme.
func originLen(u string) int {
	i := strings.Index(u, "://")
	if i < 0 {
		return 0
	}
	rest := u[i+3:]
	j := strings.Index(rest, "/")
	if j < 0 {
		return len(u) + 1
	}
	return i + 3 + j + 1
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}
