package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/app"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

const (
	maxInputErrors  = 5
	shutdownTimeout = 30 * time.Second
)

// errTooManyInputErrors ends an interactive crawl after maxInputErrors rejected URLs.
var errTooManyInputErrors = errors.New("too many invalid urls")

// sessionStarter is the slice of the coordinator the prompt loop needs.
type sessionStarter interface {
	Start(rawAddress string) (crawler.SessionInfo, error)
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawls one site until every reachable page has been visited",
		Long: `Crawls every page reachable from the given base URL that shares its host,
then prints the elapsed time. Without an argument, or when the URL is
rejected, the URL is read from stdin. Interrupting the crawl stops new
pages from being admitted; pages already queued still finish.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawlCommand,
	}
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newApp(ctx, e.cfg, e.logger, app.Options{Console: out})
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	closed := false
	closeApp := func() error {
		if closed {
			return nil
		}
		closed = true
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.Close(closeCtx)
	}
	defer func() {
		if cerr := closeApp(); cerr != nil {
			e.logger.Warn("failed to close application services", zap.Error(cerr))
		}
	}()
	a.Start(ctx)

	coord := a.Coordinator()
	var initial string
	if len(args) > 0 {
		initial = args[0]
	}
	if _, err := startSession(coord, initial, cmd.InOrStdin(), out); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	finished := make(chan struct{})
	defer close(finished)
	go watchInterrupt(sigCtx, stop, coord, e.logger, finished)

	if err := coord.Wait(ctx); err != nil {
		return err
	}
	// The report is written once the hub drains, so close before reading it.
	if err := closeApp(); err != nil {
		return fmt.Errorf("close application services: %w", err)
	}
	if uri := a.LastReportURI(); uri != "" {
		fmt.Fprintf(out, "Report written to %s\n", uri)
	}
	e.logger.Info("crawl command finished")
	return nil
}

// startSession tries initial first (when non-empty) and then reads one URL
// per line from in. Each rejected URL counts against maxInputErrors.
func startSession(starter sessionStarter, initial string, in io.Reader, out io.Writer) (crawler.SessionInfo, error) {
	scanner := bufio.NewScanner(in)
	next := func() (string, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("read url: %w", err)
			}
			return "", io.ErrUnexpectedEOF
		}
		return strings.TrimSpace(scanner.Text()), nil
	}

	raw := initial
	if raw == "" {
		fmt.Fprintln(out, "Please enter a base url to start:")
		var err error
		if raw, err = next(); err != nil {
			return crawler.SessionInfo{}, err
		}
	}
	for errorCount := 0; ; {
		info, err := starter.Start(raw)
		if err == nil {
			return info, nil
		}
		var verr *crawler.ValidationError
		if !errors.As(err, &verr) {
			return crawler.SessionInfo{}, fmt.Errorf("start session: %w", err)
		}
		errorCount++
		if errorCount >= maxInputErrors {
			fmt.Fprintln(out, "Too many invalid urls, giving up.")
			return crawler.SessionInfo{}, errTooManyInputErrors
		}
		fmt.Fprintf(out, "%v. Please enter a valid url:\n", err)
		if raw, err = next(); err != nil {
			return crawler.SessionInfo{}, err
		}
	}
}

type stopper interface {
	Stop() bool
}

// watchInterrupt stops the session on the first interrupt, then releases the
// signal hook so a second interrupt ends the process.
func watchInterrupt(sigCtx context.Context, release func(), s stopper, logger *zap.Logger, finished <-chan struct{}) {
	select {
	case <-sigCtx.Done():
		if s.Stop() {
			logger.Info("interrupt received; draining admitted pages, interrupt again to exit")
		}
		release()
	case <-finished:
	}
}
