package crawler

import (
	"sort"
	"time"
)

// OutcomeKind tags the variant carried by an Outcome.
type OutcomeKind string

// Outcome variants reported back to the coordinator.
const (
	OutcomeSuccess         OutcomeKind = "success"
	OutcomeFailure         OutcomeKind = "failure"
	OutcomeSessionFinished OutcomeKind = "session_finished"
)

// Page is the immutable result of successfully processing one address.
// Two pages are the same entity when their addresses match.
type Page struct {
	Address    string   `json:"address"`
	ChildLinks []string `json:"child_links"`
}

// NewPage builds a Page with a deduplicated, sorted copy of children.
func NewPage(address string, children []string) Page {
	seen := make(map[string]struct{}, len(children))
	links := make([]string, 0, len(children))
	for _, child := range children {
		if _, ok := seen[child]; ok {
			continue
		}
		seen[child] = struct{}{}
		links = append(links, child)
	}
	sort.Strings(links)
	return Page{Address: address, ChildLinks: links}
}

// Children returns a copy of the page's child links.
func (p Page) Children() []string {
	out := make([]string, len(p.ChildLinks))
	copy(out, p.ChildLinks)
	return out
}

// Equal reports whether two pages describe the same address.
func (p Page) Equal(other Page) bool {
	return p.Address == other.Address
}

// Outcome is the single event a worker (or the quiescence waiter) reports.
// Exactly one of Page, Address/Message, or Duration is meaningful per Kind.
type Outcome struct {
	Kind     OutcomeKind
	Page     Page
	Address  string
	Message  string
	Duration time.Duration
}

// Success wraps a successfully crawled page.
func Success(page Page) Outcome {
	return Outcome{Kind: OutcomeSuccess, Page: page, Address: page.Address}
}

// Failure reports an address that could not be crawled.
func Failure(address, message string) Outcome {
	return Outcome{Kind: OutcomeFailure, Address: address, Message: message}
}

// SessionFinished reports that the frontier is exhausted.
func SessionFinished(d time.Duration) Outcome {
	return Outcome{Kind: OutcomeSessionFinished, Duration: d}
}

// SessionInfo describes a started crawl session.
type SessionInfo struct {
	ID          string    `json:"id"`
	BaseAddress string    `json:"base_address"`
	Scope       string    `json:"scope"`
	StartedAt   time.Time `json:"started_at"`
}

// ProbeResult carries what a HEAD-style probe learned about an address.
type ProbeResult struct {
	URL         string
	StatusCode  int
	ContentType string
}

// FetchResult carries the absolute link targets extracted from a document.
type FetchResult struct {
	URL        string
	StatusCode int
	Links      []string
}

// SessionStatus is the lifecycle state recorded for a session.
type SessionStatus string

// Session status values persisted by result stores.
const (
	SessionStatusRunning  SessionStatus = "running"
	SessionStatusFinished SessionStatus = "finished"
)

// SessionRecord is the persisted summary of a session.
type SessionRecord struct {
	ID             string        `json:"id"`
	BaseAddress    string        `json:"base_address"`
	Scope          string        `json:"scope"`
	Status         SessionStatus `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
	PagesSucceeded int           `json:"pages_succeeded"`
	PagesFailed    int           `json:"pages_failed"`
}

// PageRecord is persisted for each address a session finished with.
type PageRecord struct {
	SessionID  string    `json:"session_id"`
	Address    string    `json:"address"`
	Succeeded  bool      `json:"succeeded"`
	ChildLinks []string  `json:"child_links,omitempty"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
