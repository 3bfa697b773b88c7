// Package sinks implements concrete progress subscribers: structured logging,
// Prometheus collectors, a console reporter, a text report written to blob
// storage, result persistence, and a Pub/Sub session summary. The Hub calls
// each of them from a single goroutine, one session at a time.
package sinks
