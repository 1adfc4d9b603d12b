// Package progress delivers crawl events to observers. A Result event is published for
// every reported fetch and a single Finished event closes the stream. Observers are
// called synchronously in the order they subscribed.
package progress
