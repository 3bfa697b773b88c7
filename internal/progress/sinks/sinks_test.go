package sinks

import (
	"context"
	"time"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/progress"
)

var testSession = crawler.SessionInfo{
	ID:          "0190b1c2-7d4e-7abc-8def-0123456789ab",
	BaseAddress: "https://example.com",
	Scope:       "example.com",
	StartedAt:   time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
}

// replay drives sub through a small session: two successful pages and one failure.
func replay(sub progress.Subscriber) error {
	ctx := context.Background()
	steps := []func() error{
		func() error { return sub.OnSessionStarted(ctx, testSession) },
		func() error {
			return sub.OnPageCompleted(ctx, crawler.NewPage("https://example.com",
				[]string{"https://example.com/about", "https://example.com/missing"}))
		},
		func() error { return sub.OnPageCompleted(ctx, crawler.NewPage("https://example.com/about", nil)) },
		func() error { return sub.OnPageFailed(ctx, "https://example.com/missing", "status 404") },
		func() error { return sub.OnSessionFinished(ctx, 3*time.Second) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }
