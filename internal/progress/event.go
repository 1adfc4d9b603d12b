package progress

import (
	"time"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Kind tells Result events apart from the terminal Finished event.
type Kind string

// Event kinds.
const (
	KindResult   Kind = "result"
	KindFinished Kind = "finished"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusError StatusClass = "error"
	StatusOther StatusClass = "other"
)

// Event is one notification on the bus.
type Event struct {
	Kind Kind
	// TS is when the event was published.
	TS time.Time
	// Result is set for KindResult only.
	Result *crawler.Result
	// Counters is the dispatch snapshot taken when the event was published.
	Counters crawler.Counters
}

// ClassifyStatus groups HTTP status codes.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}

// ClassifyResult groups a result, mapping fetch failures to StatusError.
func ClassifyResult(res *crawler.Result) StatusClass {
	if res == nil {
		return StatusOther
	}
	if res.Failed() && res.Status == 0 {
		return StatusError
	}
	return ClassifyStatus(res.Status)
}
