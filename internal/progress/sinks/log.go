package sinks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// LogSubscriber emits one structured log line per lifecycle event. It is
// useful during development or audits where a durable store is unavailable.
type LogSubscriber struct {
	logger  *zap.Logger
	session string
}

// NewLogSubscriber wires a Zap logger to the subscriber interface.
func NewLogSubscriber(logger *zap.Logger) *LogSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSubscriber{logger: logger.Named("events")}
}

// Name implements progress.Subscriber.
func (s *LogSubscriber) Name() string { return "log" }

// OnSessionStarted implements progress.Subscriber.
func (s *LogSubscriber) OnSessionStarted(_ context.Context, session crawler.SessionInfo) error {
	s.session = session.ID
	s.logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("url", session.BaseAddress),
		zap.String("scope", session.Scope),
		zap.Time("started_at", session.StartedAt),
	)
	return nil
}

// OnPageCompleted implements progress.Subscriber.
func (s *LogSubscriber) OnPageCompleted(_ context.Context, page crawler.Page) error {
	s.logger.Info("page completed",
		zap.String("session_id", s.session),
		zap.String("url", page.Address),
		zap.Int("children", len(page.ChildLinks)),
	)
	return nil
}

// OnPageFailed implements progress.Subscriber.
func (s *LogSubscriber) OnPageFailed(_ context.Context, address, message string) error {
	s.logger.Warn("page failed",
		zap.String("session_id", s.session),
		zap.String("url", address),
		zap.String("error", message),
	)
	return nil
}

// OnSessionFinished implements progress.Subscriber.
func (s *LogSubscriber) OnSessionFinished(_ context.Context, elapsed time.Duration) error {
	s.logger.Info("session finished",
		zap.String("session_id", s.session),
		zap.Duration("dur", elapsed),
	)
	return nil
}
