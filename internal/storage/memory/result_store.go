package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// ResultStore keeps sessions and page results in memory.
type ResultStore struct {
	mu       sync.RWMutex
	sessions map[string]crawler.SessionRecord
	pages    map[string][]crawler.PageRecord
	index    map[string]map[string]int
}

// NewResultStore constructs an empty ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{
		sessions: make(map[string]crawler.SessionRecord),
		pages:    make(map[string][]crawler.PageRecord),
		index:    make(map[string]map[string]int),
	}
}

// CreateSession stores a new session.
func (s *ResultStore) CreateSession(_ context.Context, session crawler.SessionRecord) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return errors.New("session already exists")
	}
	s.sessions[session.ID] = session
	s.index[session.ID] = make(map[string]int)
	return nil
}

// RecordPage stores the result for one address, replacing an earlier result
// for the same address.
func (s *ResultStore) RecordPage(_ context.Context, page crawler.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.index[page.SessionID]
	if !ok {
		return crawler.ErrSessionNotFound
	}
	page.ChildLinks = append([]string(nil), page.ChildLinks...)
	if pos, seen := idx[page.Address]; seen {
		s.pages[page.SessionID][pos] = page
		return nil
	}
	idx[page.Address] = len(s.pages[page.SessionID])
	s.pages[page.SessionID] = append(s.pages[page.SessionID], page)
	return nil
}

// FinishSession marks the session finished.
func (s *ResultStore) FinishSession(_ context.Context, sessionID string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return crawler.ErrSessionNotFound
	}
	session.Status = crawler.SessionStatusFinished
	session.FinishedAt = &finishedAt
	s.sessions[sessionID] = session
	return nil
}

// GetSession returns the session with page counters derived from recorded pages.
func (s *ResultStore) GetSession(_ context.Context, sessionID string) (crawler.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return crawler.SessionRecord{}, crawler.ErrSessionNotFound
	}
	session.PagesSucceeded, session.PagesFailed = 0, 0
	for _, page := range s.pages[sessionID] {
		if page.Succeeded {
			session.PagesSucceeded++
		} else {
			session.PagesFailed++
		}
	}
	if session.FinishedAt != nil {
		finished := *session.FinishedAt
		session.FinishedAt = &finished
	}
	return session, nil
}

// ListPages returns copies of the page results in recording order.
func (s *ResultStore) ListPages(_ context.Context, sessionID string) ([]crawler.PageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, crawler.ErrSessionNotFound
	}
	src := s.pages[sessionID]
	out := make([]crawler.PageRecord, len(src))
	for i, page := range src {
		page.ChildLinks = append([]string(nil), page.ChildLinks...)
		out[i] = page
	}
	return out, nil
}
