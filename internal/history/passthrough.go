package history

import "github.com/JakeFAU/sitecrawler/internal/crawler"

// Passthrough never deduplicates. Replay uses it so every logged request is fetched again.
type Passthrough struct{}

var _ crawler.History = Passthrough{}

// Claim always wins.
func (Passthrough) Claim(string, crawler.Referrer) bool { return true }

// Finalize discards the result.
func (Passthrough) Finalize(*crawler.Result) {}

// Release is a no-op.
func (Passthrough) Release(string) {}

// Snapshot is always empty.
func (Passthrough) Snapshot() map[string]*crawler.Result { return map[string]*crawler.Result{} }
