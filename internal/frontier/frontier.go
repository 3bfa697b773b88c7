// Package frontier holds the per-session set of admitted address identities.
package frontier

import (
	"sync"
	"sync/atomic"
)

// Frontier is a write-once-per-key set. Admit is a linearizable test-and-set:
// concurrent callers racing on the same identity see exactly one true.
type Frontier struct {
	seen  sync.Map
	count atomic.Int64
}

// New returns an empty Frontier.
func New() *Frontier {
	return &Frontier{}
}

// Admit records identity and reports whether this call was the first to do so.
func (f *Frontier) Admit(identity string) bool {
	if _, loaded := f.seen.LoadOrStore(identity, struct{}{}); loaded {
		return false
	}
	f.count.Add(1)
	return true
}

// Len returns the number of admitted identities.
func (f *Frontier) Len() int {
	return int(f.count.Load())
}
