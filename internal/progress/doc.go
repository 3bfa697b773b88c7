// Package progress delivers crawl session lifecycle events to subscribers.
// Events are queued without bound on a Hub and delivered by a single
// background goroutine, so every subscriber observes the same total order and
// a slow subscriber never stalls the crawl pool.
package progress
