// Package coordinator owns a crawl session: it admits the base address,
// dispatches workers onto the pool, expands the frontier from their outcomes
// and reports completion exactly once when no task is outstanding.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/dispatcher"
	"github.com/JakeFAU/sitecrawler/internal/frontier"
	"github.com/JakeFAU/sitecrawler/internal/metrics"
	"github.com/JakeFAU/sitecrawler/internal/progress"
	"github.com/JakeFAU/sitecrawler/internal/tracker"
	"github.com/JakeFAU/sitecrawler/internal/worker"
)

// Pool runs tasks concurrently. Submit must not block.
type Pool interface {
	Submit(task dispatcher.Task) error
}

// Deps are the collaborators a Coordinator drives.
type Deps struct {
	Fetcher     crawler.Fetcher
	Pool        Pool
	Tracker     *tracker.Tracker
	NewFrontier func() *frontier.Frontier
	Hub         progress.Emitter
	Clock       crawler.Clock
	IDs         crawler.IDGenerator
}

// Config tunes sessions started by the Coordinator.
type Config struct {
	// RequestTimeout bounds each probe and fetch.
	RequestTimeout time.Duration
}

// Stats is a point-in-time view of the current (or most recent) session.
type Stats struct {
	Session     crawler.SessionInfo `json:"session"`
	Active      bool                `json:"active"`
	Stopped     bool                `json:"stopped"`
	Outstanding int64               `json:"outstanding"`
	Admitted    int                 `json:"admitted"`
	Registered  int64               `json:"registered"`
	Completed   int64               `json:"completed"`
	Succeeded   int64               `json:"succeeded"`
	Failed      int64               `json:"failed"`
}

// Coordinator runs at most one session at a time. Sessions may be started
// again once the previous one has finished.
type Coordinator struct {
	deps   Deps
	cfg    Config
	root   *zap.Logger
	logger *zap.Logger

	mu      sync.Mutex
	active  bool
	current *session
}

type session struct {
	info     crawler.SessionInfo
	id       [16]byte
	frontier *frontier.Frontier
	worker   *worker.Worker
	done     chan struct{}
	// began carries a monotonic reading, so elapsed time survives wall clock steps.
	began time.Time

	stopped    atomic.Bool
	registered atomic.Int64
	completed  atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
}

// New constructs a Coordinator. Pool, Fetcher, Clock and IDs are required.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Coordinator, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("coordinator: fetcher is required")
	case deps.Pool == nil:
		return nil, errors.New("coordinator: pool is required")
	case deps.Clock == nil:
		return nil, errors.New("coordinator: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("coordinator: id generator is required")
	}
	if deps.Tracker == nil {
		deps.Tracker = tracker.New()
	}
	if deps.NewFrontier == nil {
		deps.NewFrontier = frontier.New
	}
	if deps.Hub == nil {
		deps.Hub = nopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Coordinator{
		deps:   deps,
		cfg:    cfg,
		root:   logger,
		logger: logger.Named("coordinator"),
	}, nil
}

// Start validates rawAddress and begins a session for it. It returns once
// the base task is dispatched; the crawl proceeds asynchronously. A
// *crawler.ValidationError means nothing was registered or dispatched.
func (c *Coordinator) Start(rawAddress string) (crawler.SessionInfo, error) {
	u, err := crawler.ParseAddress(rawAddress)
	if err != nil {
		return crawler.SessionInfo{}, &crawler.ValidationError{
			Input: rawAddress,
			Err:   fmt.Errorf("%w: %w", crawler.ErrInvalidAddress, err),
		}
	}
	if !crawler.IsSupportedScheme(u.Scheme) {
		return crawler.SessionInfo{}, &crawler.ValidationError{
			Input: rawAddress,
			Err:   fmt.Errorf("%w %q", crawler.ErrUnsupportedScheme, u.Scheme),
		}
	}
	base := crawler.StripFragment(u)
	identity, err := crawler.Identity(base)
	if err != nil {
		return crawler.SessionInfo{}, &crawler.ValidationError{Input: rawAddress, Err: err}
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return crawler.SessionInfo{}, &crawler.ValidationError{Input: rawAddress, Err: crawler.ErrSessionActive}
	}
	sessionID, err := c.deps.IDs.NewID()
	if err != nil {
		c.mu.Unlock()
		return crawler.SessionInfo{}, fmt.Errorf("new session id: %w", err)
	}
	rawID, err := progress.ParseSessionID(sessionID)
	if err != nil {
		c.mu.Unlock()
		return crawler.SessionInfo{}, fmt.Errorf("new session id: %w", err)
	}

	filter := crawler.NewURLFilter(base.Host)
	s := &session{
		info: crawler.SessionInfo{
			ID:          sessionID,
			BaseAddress: identity,
			Scope:       filter.Scope(),
			StartedAt:   c.deps.Clock.Now(),
		},
		id:       rawID,
		frontier: c.deps.NewFrontier(),
		worker:   worker.New(c.deps.Fetcher, filter, worker.Config{Timeout: c.cfg.RequestTimeout}, c.root),
		done:     make(chan struct{}),
		began:    time.Now(),
	}
	s.frontier.Admit(identity)
	c.register(s)
	c.active = true
	c.current = s
	c.mu.Unlock()

	metrics.ObserveSession("started")
	metrics.SetFrontierSize(s.frontier.Len())
	c.logger.Info("session started",
		zap.String("session_id", sessionID),
		zap.String("url", identity),
		zap.String("scope", s.info.Scope),
	)
	c.emit(s, progress.Event{Stage: progress.StageSessionStarted, Session: s.info})
	c.dispatch(s, identity)
	go c.awaitQuiescence(s)
	return s.info, nil
}

// Stop asks the current session to stop admitting new addresses. Tasks
// already queued or running still finish, and the session still reports
// completion. It reports whether a session was active.
func (c *Coordinator) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.current == nil {
		return false
	}
	if c.current.stopped.CompareAndSwap(false, true) {
		c.logger.Info("session stop requested", zap.String("session_id", c.current.info.ID))
	}
	return true
}

// Wait blocks until the current session has emitted its completion event or
// ctx ends. It returns nil immediately when no session was ever started.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for session: %w", ctx.Err())
	}
}

// Active reports whether a session is running.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Current returns the current or most recent session.
func (c *Coordinator) Current() (crawler.SessionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return crawler.SessionInfo{}, false
	}
	return c.current.info, true
}

// Stats returns counters for the current or most recent session.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	s := c.current
	active := c.active
	c.mu.Unlock()
	if s == nil {
		return Stats{}
	}
	return Stats{
		Session:     s.info,
		Active:      active,
		Stopped:     s.stopped.Load(),
		Outstanding: c.deps.Tracker.Outstanding(),
		Admitted:    s.frontier.Len(),
		Registered:  s.registered.Load(),
		Completed:   s.completed.Load(),
		Succeeded:   s.succeeded.Load(),
		Failed:      s.failed.Load(),
	}
}

// dispatch submits a task for an address that is already registered. A
// rejected submission is completed on the spot so the count stays balanced.
func (c *Coordinator) dispatch(s *session, address string) {
	err := c.deps.Pool.Submit(func(ctx context.Context) {
		c.handleOutcome(s, c.execute(ctx, s, address))
	})
	if err == nil {
		return
	}
	c.logger.Warn("dropping admitted address",
		zap.String("session_id", s.info.ID),
		zap.String("url", address),
		zap.Error(err),
	)
	s.failed.Add(1)
	c.emit(s, progress.Event{
		Stage:   progress.StagePageFailed,
		URL:     address,
		Message: fmt.Sprintf("dispatch: %v", err),
	})
	c.complete(s)
}

func (c *Coordinator) execute(ctx context.Context, s *session, address string) (out crawler.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("worker panicked", zap.String("url", address), zap.Any("panic", r))
			out = crawler.Failure(address, fmt.Sprintf("worker panic: %v", r))
		}
	}()
	return s.worker.Execute(ctx, address)
}

// handleOutcome runs on pool goroutines and may be invoked concurrently.
// Children are registered before the parent completes, and the page event is
// emitted before the parent completes so it precedes the completion event.
func (c *Coordinator) handleOutcome(s *session, out crawler.Outcome) {
	switch out.Kind {
	case crawler.OutcomeSuccess:
		if !s.stopped.Load() {
			for _, child := range out.Page.ChildLinks {
				if !s.frontier.Admit(child) {
					continue
				}
				c.register(s)
				c.dispatch(s, child)
			}
			metrics.SetFrontierSize(s.frontier.Len())
		}
		s.succeeded.Add(1)
		metrics.ObservePage(out.Page.Address, "success")
		c.emit(s, progress.Event{Stage: progress.StagePageCompleted, Page: out.Page})
	case crawler.OutcomeFailure:
		s.failed.Add(1)
		metrics.ObservePage(out.Address, "failure")
		c.emit(s, progress.Event{Stage: progress.StagePageFailed, URL: out.Address, Message: out.Message})
	default:
		c.logger.Error("unexpected worker outcome", zap.String("kind", string(out.Kind)))
	}
	c.complete(s)
}

// awaitQuiescence is the session's dedicated waiter. It never occupies a pool slot.
func (c *Coordinator) awaitQuiescence(s *session) {
	if err := c.deps.Tracker.AwaitZero(context.Background()); err != nil {
		c.logger.Error("quiescence wait failed", zap.String("session_id", s.info.ID), zap.Error(err))
	}
	c.finish(s, crawler.SessionFinished(time.Since(s.began)))
}

func (c *Coordinator) finish(s *session, out crawler.Outcome) {
	// Emit before releasing the session so a following session's start event
	// cannot overtake this completion event.
	c.emit(s, progress.Event{Stage: progress.StageSessionFinished, Dur: out.Duration})

	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
	close(s.done)

	metrics.ObserveSession("finished")
	c.logger.Info("session finished",
		zap.String("session_id", s.info.ID),
		zap.String("url", s.info.BaseAddress),
		zap.Duration("elapsed", out.Duration),
		zap.Int64("succeeded", s.succeeded.Load()),
		zap.Int64("failed", s.failed.Load()),
	)
}

func (c *Coordinator) register(s *session) {
	c.deps.Tracker.Register()
	s.registered.Add(1)
	metrics.SetOutstandingTasks(c.deps.Tracker.Outstanding())
}

func (c *Coordinator) complete(s *session) {
	s.completed.Add(1)
	c.deps.Tracker.Complete()
	metrics.SetOutstandingTasks(c.deps.Tracker.Outstanding())
}

func (c *Coordinator) emit(s *session, evt progress.Event) {
	evt.SessionID = s.id
	evt.TS = c.deps.Clock.Now()
	c.deps.Hub.Emit(evt)
}

type nopEmitter struct{}

func (nopEmitter) Emit(progress.Event) {}
