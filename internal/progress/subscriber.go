package progress

import (
	"context"
	"time"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Subscriber is notified of session lifecycle events. Calls for one Hub are
// never concurrent, and OnSessionFinished is the last call of a session.
// Returned errors are logged by the Hub and otherwise ignored.
type Subscriber interface {
	Name() string
	OnSessionStarted(ctx context.Context, session crawler.SessionInfo) error
	OnPageCompleted(ctx context.Context, page crawler.Page) error
	OnPageFailed(ctx context.Context, address, message string) error
	OnSessionFinished(ctx context.Context, elapsed time.Duration) error
}

// Closer is implemented by subscribers that hold resources released when the Hub closes.
type Closer interface {
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so the
// coordinator can remain agnostic about how events are delivered.
type Emitter interface {
	Emit(evt Event)
}

// NopSubscriber implements Subscriber with no-op callbacks. Embed it to
// handle only the events you care about.
type NopSubscriber struct{}

// OnSessionStarted implements Subscriber.
func (NopSubscriber) OnSessionStarted(context.Context, crawler.SessionInfo) error { return nil }

// OnPageCompleted implements Subscriber.
func (NopSubscriber) OnPageCompleted(context.Context, crawler.Page) error { return nil }

// OnPageFailed implements Subscriber.
func (NopSubscriber) OnPageFailed(context.Context, string, string) error { return nil }

// OnSessionFinished implements Subscriber.
func (NopSubscriber) OnSessionFinished(context.Context, time.Duration) error { return nil }
