// Package sinks implements the stock crawl observers: structured logging, slow request
// detection, Prometheus metrics, Pub/Sub notifications and a waiter that unblocks once the
// crawl finishes.
package sinks
