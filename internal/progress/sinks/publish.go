package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// SessionSummary is the message published when a session finishes.
type SessionSummary struct {
	SessionID      string    `json:"session_id"`
	BaseAddress    string    `json:"base_address"`
	Scope          string    `json:"scope"`
	StartedAt      time.Time `json:"started_at"`
	DurationMillis int64     `json:"duration_ms"`
	PagesSucceeded int       `json:"pages_succeeded"`
	PagesFailed    int       `json:"pages_failed"`
}

// PublishSubscriber publishes a SessionSummary to a topic when a session finishes.
type PublishSubscriber struct {
	publisher crawler.Publisher
	topic     string
	logger    *zap.Logger

	summary SessionSummary
}

// NewPublishSubscriber publishes summaries to topic through publisher.
func NewPublishSubscriber(publisher crawler.Publisher, topic string, logger *zap.Logger) *PublishSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSubscriber{publisher: publisher, topic: topic, logger: logger.Named("publish")}
}

// Name implements progress.Subscriber.
func (p *PublishSubscriber) Name() string { return "publish" }

// OnSessionStarted implements progress.Subscriber.
func (p *PublishSubscriber) OnSessionStarted(_ context.Context, session crawler.SessionInfo) error {
	p.summary = SessionSummary{
		SessionID:   session.ID,
		BaseAddress: session.BaseAddress,
		Scope:       session.Scope,
		StartedAt:   session.StartedAt,
	}
	return nil
}

// OnPageCompleted implements progress.Subscriber.
func (p *PublishSubscriber) OnPageCompleted(context.Context, crawler.Page) error {
	p.summary.PagesSucceeded++
	return nil
}

// OnPageFailed implements progress.Subscriber.
func (p *PublishSubscriber) OnPageFailed(context.Context, string, string) error {
	p.summary.PagesFailed++
	return nil
}

// OnSessionFinished implements progress.Subscriber.
func (p *PublishSubscriber) OnSessionFinished(ctx context.Context, elapsed time.Duration) error {
	p.summary.DurationMillis = elapsed.Milliseconds()
	id, err := p.publisher.Publish(ctx, p.topic, p.summary)
	if err != nil {
		return fmt.Errorf("publish session summary: %w", err)
	}
	p.logger.Info("session summary published",
		zap.String("session_id", p.summary.SessionID),
		zap.String("topic", p.topic),
		zap.String("message_id", id),
	)
	return nil
}
