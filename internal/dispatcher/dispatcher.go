// Package dispatcher runs submitted tasks on a fixed pool of goroutines.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/metrics"
	"github.com/JakeFAU/sitecrawler/internal/queue/memory"
	"github.com/JakeFAU/sitecrawler/internal/tracker"
)

// DefaultWorkers is the pool size used when Config.Workers is not positive.
const DefaultWorkers = 10

// ErrPoolClosed is returned by Submit after Close has been called.
var ErrPoolClosed = errors.New("dispatcher: pool closed")

// Task is a unit of work executed by a pool goroutine.
type Task func(ctx context.Context)

// Config tunes the pool.
type Config struct {
	Workers int
}

// Pool fans tasks from an unbounded queue out to a fixed set of goroutines.
// Submit never blocks, so a running task may submit further tasks.
type Pool struct {
	queue   *memory.Queue[Task]
	workers int
	logger  *zap.Logger

	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// New creates a Pool. Call Start before submitting work.
func New(cfg Config, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Pool{
		queue:   memory.NewQueue[Task](),
		workers: cfg.Workers,
		logger:  logger.Named("dispatcher"),
	}
}

// Workers returns the number of pool goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Start launches the pool goroutines. Tasks receive a context derived from ctx;
// canceling it stops the pool without draining the queue.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(slot int) {
				defer p.wg.Done()
				p.loop(runCtx, slot)
			}(i)
		}
		p.logger.Info("pool started", zap.Int("workers", p.workers))
	})
}

// Submit queues task for execution.
func (p *Pool) Submit(task Task) error {
	if err := p.queue.Enqueue(task); err != nil {
		if errors.Is(err, memory.ErrClosed) {
			return ErrPoolClosed
		}
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	return p.queue.Len()
}

// Close stops accepting tasks, lets queued tasks drain, and waits for the
// pool goroutines to exit or ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.closeOnce.Do(p.queue.Close)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		if p.cancel != nil {
			p.cancel()
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool close wait: %w", ctx.Err())
	}
}

func (p *Pool) loop(ctx context.Context, slot int) {
	for {
		task, err := p.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) {
				p.logger.Debug("pool goroutine stopping", zap.Int("slot", slot), zap.Error(err))
			}
			return
		}
		p.run(ctx, slot, task)
	}
}

func (p *Pool) run(ctx context.Context, slot int, task Task) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		// A broken completion count means quiescence can no longer be trusted.
		if err, ok := r.(error); ok && errors.Is(err, tracker.ErrNegativeOutstanding) {
			p.logger.Error("task violated the completion count", zap.Int("slot", slot), zap.Error(err))
			panic(r)
		}
		p.logger.Error("task panicked", zap.Int("slot", slot), zap.Any("panic", r))
	}()
	task(ctx)
}
