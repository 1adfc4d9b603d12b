// Package replay feeds the successful GET requests of webserver access logs into a crawl.
package replay

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedLine is returned for lines that are not in combined log format.
var ErrMalformedLine = errors.New("line is not in combined log format")

// combined matches: ip ident user [date] "request" status size "referer" "agent".
var combined = regexp.MustCompile(`^(\S+) \S+ \S+ \[([^\]]+)\] "((?:[^"\\]|\\.)*)" (\d{3}) (\S+)(?: "((?:[^"\\]|\\.)*)" "((?:[^"\\]|\\.)*)")?`)

var requestLine = regexp.MustCompile(`^([A-Z]+) (\S+) (HTTP/[01]\.[019])$`)

// Request is the subset of an access log entry replay needs.
type Request struct {
	IP      string
	Date    string
	Request string
	Status  int
	Referer string
	Agent   string
}

// ParseLine parses one combined-format log line.
func ParseLine(line string) (Request, error) {
	m := combined.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Request{}, ErrMalformedLine
	}
	status, err := strconv.Atoi(m[4])
	if err != nil {
		return Request{}, ErrMalformedLine
	}
	return Request{
		IP:      m[1],
		Date:    m[2],
		Request: m[3],
		Status:  status,
		Referer: m[6],
		Agent:   m[7],
	}, nil
}

// Target returns the path of a successful GET, or false when the entry is not replayable.
func (r Request) Target() (string, bool) {
	if r.Status != 200 {
		return "", false
	}
	m := requestLine.FindStringSubmatch(r.Request)
	if m == nil || m[1] != "GET" || m[2] == "-" {
		return "", false
	}
	target := m[2]
	if strings.HasPrefix(target, "/") {
		return target, true
	}
	u, err := url.Parse(target)
	if err != nil || !u.IsAbs() {
		return "", false
	}
	return u.RequestURI(), true
}

// Referrer returns the logged referer, with "-" meaning none.
func (r Request) Referrer() string {
	if r.Referer == "-" {
		return ""
	}
	return r.Referer
}
