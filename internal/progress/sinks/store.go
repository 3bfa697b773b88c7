package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// StoreSubscriber persists sessions and per-page results to a
// crawler.ResultStore so they can be queried after the fact.
type StoreSubscriber struct {
	repo    crawler.ResultStore
	clock   crawler.Clock
	session crawler.SessionInfo
}

// NewStoreSubscriber constructs a StoreSubscriber for the provided repository.
func NewStoreSubscriber(repo crawler.ResultStore, clock crawler.Clock) *StoreSubscriber {
	return &StoreSubscriber{repo: repo, clock: clock}
}

// Name implements progress.Subscriber.
func (s *StoreSubscriber) Name() string { return "store" }

// OnSessionStarted implements progress.Subscriber.
func (s *StoreSubscriber) OnSessionStarted(ctx context.Context, session crawler.SessionInfo) error {
	s.session = session
	if err := s.repo.CreateSession(ctx, crawler.SessionRecord{
		ID:          session.ID,
		BaseAddress: session.BaseAddress,
		Scope:       session.Scope,
		Status:      crawler.SessionStatusRunning,
		StartedAt:   session.StartedAt,
	}); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// OnPageCompleted implements progress.Subscriber.
func (s *StoreSubscriber) OnPageCompleted(ctx context.Context, page crawler.Page) error {
	if err := s.repo.RecordPage(ctx, crawler.PageRecord{
		SessionID:  s.session.ID,
		Address:    page.Address,
		Succeeded:  true,
		ChildLinks: page.Children(),
		RecordedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("record page: %w", err)
	}
	return nil
}

// OnPageFailed implements progress.Subscriber.
func (s *StoreSubscriber) OnPageFailed(ctx context.Context, address, message string) error {
	if err := s.repo.RecordPage(ctx, crawler.PageRecord{
		SessionID:  s.session.ID,
		Address:    address,
		Error:      message,
		RecordedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("record page: %w", err)
	}
	return nil
}

// OnSessionFinished implements progress.Subscriber.
func (s *StoreSubscriber) OnSessionFinished(ctx context.Context, elapsed time.Duration) error {
	finishedAt := s.session.StartedAt.Add(elapsed)
	if err := s.repo.FinishSession(ctx, s.session.ID, finishedAt); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

func (s *StoreSubscriber) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
