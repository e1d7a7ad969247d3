package concurrency

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxorio/relay/pkg/core"
)

// ExecutorConfig sizes a pool: how many goroutines drain the queue, and
// how deep the queue is allowed to grow before Submit starts rejecting.
type ExecutorConfig struct {
	Workers   int
	QueueSize int
}

// DefaultExecutorConfig is a reasonable pool size for an offload path
// handling a handful of slow RPC methods.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{Workers: 10, QueueSize: 1000}
}

type poolExecutor struct {
	tasks   chan Task
	workers int
	cap     int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  core.Logger

	mu     sync.RWMutex
	closed bool

	queued    int64
	completed int64
	rejected  int64
}

// NewExecutor starts cfg.Workers goroutines draining a channel of depth
// cfg.QueueSize. logger may be nil; it only surfaces task failures that
// would otherwise be silently dropped.
func NewExecutor(ctx context.Context, cfg ExecutorConfig, logger core.Logger) Executor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}

	runCtx, cancel := context.WithCancel(ctx)
	e := &poolExecutor{
		tasks:   make(chan Task, cfg.QueueSize),
		workers: cfg.Workers,
		cap:     cfg.QueueSize,
		ctx:     runCtx,
		cancel:  cancel,
		logger:  logger,
	}

	e.wg.Add(e.workers)
	for i := 0; i < e.workers; i++ {
		go e.drain(i)
	}
	return e
}

func (e *poolExecutor) drain(id int) {
	defer e.wg.Done()
	for {
		select {
		case task, ok := <-e.tasks:
			if !ok {
				return
			}
			atomic.AddInt64(&e.queued, -1)
			if err := task.Execute(e.ctx); err != nil && e.logger != nil {
				e.logger.Errorf("concurrency: executor worker %d: task %s failed: %v", id, task.Name(), err)
			}
			atomic.AddInt64(&e.completed, 1)
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *poolExecutor) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("concurrency: nil task")
	}
	if e.isClosed() {
		return ErrPoolClosed
	}

	select {
	case e.tasks <- task:
		atomic.AddInt64(&e.queued, 1)
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	default:
		atomic.AddInt64(&e.rejected, 1)
		return ErrQueueFull
	}
}

func (e *poolExecutor) SubmitWithTimeout(task Task, timeout time.Duration) error {
	if task == nil {
		return fmt.Errorf("concurrency: nil task")
	}
	if e.isClosed() {
		return ErrPoolClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.tasks <- task:
		atomic.AddInt64(&e.queued, 1)
		return nil
	case <-timer.C:
		atomic.AddInt64(&e.rejected, 1)
		return fmt.Errorf("concurrency: submit timed out after %v", timeout)
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

func (e *poolExecutor) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *poolExecutor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.tasks)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		return fmt.Errorf("concurrency: executor shutdown timed out: %w", ctx.Err())
	}
}

func (e *poolExecutor) Stats() ExecutorStats {
	return ExecutorStats{
		Queued:        atomic.LoadInt64(&e.queued),
		Workers:       e.workers,
		Completed:     atomic.LoadInt64(&e.completed),
		Rejected:      atomic.LoadInt64(&e.rejected),
		QueueCapacity: e.cap,
	}
}
