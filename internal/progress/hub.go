package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/queue/memory"
)

// Config controls delivery for the Hub.
//   - SubscriberTimeout: per-callback timeout (default 10s).
//   - BaseContext: parent context passed to subscriber calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	SubscriberTimeout time.Duration
	BaseContext       context.Context
	Logger            *zap.Logger
}

const defaultSubscriberTimeout = 10 * time.Second

// Hub queues Events and delivers them to subscribers in subscription order on
// one background goroutine. It is safe for concurrent use, never blocks
// callers, and never drops an accepted event.
type Hub struct {
	cfg         Config
	subscribers []Subscriber
	events      *memory.Queue[Event]
	doneCh      chan struct{}
	logger      *zap.Logger
	delivered   atomic.Int64
	closed      atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
	ctxMu     sync.Mutex
}

// NewHub initializes a Hub and starts the delivery goroutine. The returned Hub
// is immediately ready to accept events.
func NewHub(cfg Config, subscribers ...Subscriber) *Hub {
	if cfg.SubscriberTimeout <= 0 {
		cfg.SubscriberTimeout = defaultSubscriberTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	subs := make([]Subscriber, 0, len(subscribers))
	for _, s := range subscribers {
		if s != nil {
			subs = append(subs, s)
		}
	}
	h := &Hub{
		cfg:         cfg,
		subscribers: subs,
		events:      memory.NewQueue[Event](),
		doneCh:      make(chan struct{}),
		logger:      logger.Named("progress"),
	}
	go h.run()
	return h
}

// Emit enqueues an Event for delivery. It never blocks. Invalid events and
// events emitted after Close are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil {
		return
	}
	if h.closed.Load() {
		h.logger.Debug("discarding progress event after close", zap.String("stage", string(evt.Stage)))
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Warn("discarding invalid progress event", zap.String("stage", string(evt.Stage)), zap.Error(err))
		return
	}
	if err := h.events.Enqueue(evt); err != nil {
		h.logger.Debug("discarding progress event", zap.Error(err))
	}
}

// Pending returns the number of events accepted but not yet delivered.
func (h *Hub) Pending() int {
	return h.events.Len()
}

// Delivered returns the number of events handed to subscribers so far.
func (h *Hub) Delivered() int64 {
	return h.delivered.Load()
}

// Close delivers remaining events, closes subscribers that implement Closer,
// and blocks until the background goroutine exits. It is safe to call
// multiple times.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.ctxMu.Lock()
		h.closeCtx = ctx
		h.ctxMu.Unlock()
		h.closed.Store(true)
		h.events.Close()
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	for {
		evt, err := h.events.Dequeue(context.Background())
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) {
				h.logger.Warn("progress dequeue failed", zap.Error(err))
			}
			h.closeSubscribers()
			return
		}
		h.dispatch(evt)
		h.delivered.Add(1)
	}
}

func (h *Hub) dispatch(evt Event) {
	for _, sub := range h.subscribers {
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SubscriberTimeout)
		if err := deliver(ctx, sub, evt); err != nil {
			h.logger.Warn("subscriber callback failed",
				zap.String("subscriber", sub.Name()),
				zap.String("stage", string(evt.Stage)),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// deliver invokes the callback matching evt.Stage, converting a panic into an error.
func deliver(ctx context.Context, sub Subscriber, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	switch evt.Stage {
	case StageSessionStarted:
		return sub.OnSessionStarted(ctx, evt.Session)
	case StagePageCompleted:
		return sub.OnPageCompleted(ctx, evt.Page)
	case StagePageFailed:
		return sub.OnPageFailed(ctx, evt.URL, evt.Message)
	case StageSessionFinished:
		return sub.OnSessionFinished(ctx, evt.Dur)
	default:
		return fmt.Errorf("unknown stage %q", evt.Stage)
	}
}

func (h *Hub) closeSubscribers() {
	h.ctxMu.Lock()
	ctx := h.closeCtx
	h.ctxMu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sub := range h.subscribers {
		closer, ok := sub.(Closer)
		if !ok {
			continue
		}
		if err := closer.Close(ctx); err != nil {
			h.logger.Warn("subscriber close failed", zap.String("subscriber", sub.Name()), zap.Error(err))
		}
	}
}
