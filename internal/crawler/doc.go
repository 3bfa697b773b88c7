// Package crawler defines the core types shared across the crawl engine:
// addresses and the URL admission filter, the Page and Outcome values exchanged
// between workers and the coordinator, the error taxonomy, and the collaborator
// interfaces (fetchers, stores, publishers) the engine consumes.
package crawler
