package sinks

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// ConsoleSubscriber prints human-facing progress to a terminal.
type ConsoleSubscriber struct {
	out     io.Writer
	base    string
	crawled int
}

// NewConsoleSubscriber writes progress lines to out.
func NewConsoleSubscriber(out io.Writer) *ConsoleSubscriber {
	if out == nil {
		out = io.Discard
	}
	return &ConsoleSubscriber{out: out}
}

// Name implements progress.Subscriber.
func (c *ConsoleSubscriber) Name() string { return "console" }

// OnSessionStarted implements progress.Subscriber.
func (c *ConsoleSubscriber) OnSessionStarted(_ context.Context, session crawler.SessionInfo) error {
	c.base = session.BaseAddress
	c.crawled = 0
	_, err := fmt.Fprintf(c.out,
		"*** Starting to crawl %s ***\nProgress is reported below as pages complete.\n",
		session.BaseAddress,
	)
	return err
}

// OnPageCompleted implements progress.Subscriber.
func (c *ConsoleSubscriber) OnPageCompleted(context.Context, crawler.Page) error {
	c.crawled++
	_, err := fmt.Fprintf(c.out, "Pages crawled so far: %d\n", c.crawled)
	return err
}

// OnPageFailed implements progress.Subscriber. Failures are left to the logs.
func (c *ConsoleSubscriber) OnPageFailed(context.Context, string, string) error {
	return nil
}

// OnSessionFinished implements progress.Subscriber.
func (c *ConsoleSubscriber) OnSessionFinished(_ context.Context, elapsed time.Duration) error {
	if c.crawled == 0 {
		_, err := fmt.Fprintln(c.out, "No page could be crawled. See the logs for details.")
		return err
	}
	_, err := fmt.Fprintf(c.out,
		"Finished crawling %s.\nCrawled %d pages in %d seconds.\n",
		c.base, c.crawled, int64(elapsed.Seconds()),
	)
	return err
}
