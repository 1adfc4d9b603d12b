// Package crawler defines core types shared across subsystems.
package crawler

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Referrer records the page a URL was discovered on and the link that pointed at it.
// The zero value marks a seed URL that nobody referred to.
type Referrer struct {
	ReferrerURL string `json:"referrer_url"`
	Href        string `json:"href"`
}

// IsZero reports whether r is the seed referrer.
func (r Referrer) IsZero() bool {
	return r.ReferrerURL == "" && r.Href == ""
}

// Compare orders referrers by ReferrerURL, then Href.
func (r Referrer) Compare(o Referrer) int {
	switch {
	case r.ReferrerURL < o.ReferrerURL:
		return -1
	case r.ReferrerURL > o.ReferrerURL:
		return 1
	case r.Href < o.Href:
		return -1
	case r.Href > o.Href:
		return 1
	default:
		return 0
	}
}

// String renders the referrer as "referrer|href".
func (r Referrer) String() string {
	if r.IsZero() {
		return ""
	}
	return r.ReferrerURL + "|" + r.Href
}

// ReferrerSet is a sorted, deduplicated set of referrers. It is safe for concurrent use
// because later discoveries keep adding to a Result after it was reported.
type ReferrerSet struct {
	mu    sync.RWMutex
	items []Referrer
}

// NewReferrerSet builds a set seeded with refs; zero referrers are skipped.
func NewReferrerSet(refs ...Referrer) *ReferrerSet {
	s := &ReferrerSet{}
	for _, r := range refs {
		s.Add(r)
	}
	return s
}

// Add inserts r and reports whether it was new.
func (s *ReferrerSet) Add(r Referrer) bool {
	if r.IsZero() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.items), func(i int) bool { return s.items[i].Compare(r) >= 0 })
	if i < len(s.items) && s.items[i] == r {
		return false
	}
	s.items = append(s.items, Referrer{})
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = r
	return true
}

// Merge adds every referrer of other into s.
func (s *ReferrerSet) Merge(other *ReferrerSet) {
	if other == nil || other == s {
		return
	}
	for _, r := range other.List() {
		s.Add(r)
	}
}

// Contains reports whether r is in the set.
func (s *ReferrerSet) Contains(r Referrer) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.items), func(i int) bool { return s.items[i].Compare(r) >= 0 })
	return i < len(s.items) && s.items[i] == r
}

// Len returns the number of referrers.
func (s *ReferrerSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// List returns a sorted copy of the referrers.
func (s *ReferrerSet) List() []Referrer {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Referrer, len(s.items))
	copy(out, s.items)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s *ReferrerSet) MarshalJSON() ([]byte, error) {
	list := s.List()
	if list == nil {
		list = []Referrer{}
	}
	return json.Marshal(list)
}

// Result is the outcome of fetching one dispatched URL. The worker that owns the fetch
// fills it in; after Report only Referrers keeps changing.
type Result struct {
	URL          string        `json:"url"`
	DiscoveredAt time.Time     `json:"discovered_at"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	Status       int           `json:"status"`
	ErrorKind    ErrorKind     `json:"error_kind,omitempty"`
	Error        string        `json:"error,omitempty"`
	ContentType  string        `json:"content_type,omitempty"`
	Text         string        `json:"-"`
	Raw          []byte        `json:"-"`
	Size         int           `json:"size"`
	Referrers    *ReferrerSet  `json:"referrers"`
}

// NewResult returns a Result for url seeded with its discovering referrer.
func NewResult(url string, ref Referrer, discovered time.Time) *Result {
	return &Result{
		URL:          url,
		DiscoveredAt: discovered,
		Referrers:    NewReferrerSet(ref),
	}
}

// ElapsedMillis returns the fetch time in milliseconds.
func (r *Result) ElapsedMillis() int64 {
	return r.Elapsed.Milliseconds()
}

// Failed reports whether the fetch captured an error.
func (r *Result) Failed() bool {
	return r.Error != ""
}

// Counters is a consistent snapshot of the dispatch counters.
type Counters struct {
	Dispatched int `json:"dispatched"`
	Retrieved  int `json:"retrieved"`
}

// FetchResponse is what a worker's HTTP client hands back for one GET.
type FetchResponse struct {
	URL        string
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	// Decoded is set when Body was already transcoded to UTF-8 from a header charset.
	Decoded bool
}
