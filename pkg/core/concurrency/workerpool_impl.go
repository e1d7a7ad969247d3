package concurrency

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fluxorio/relay/pkg/core"
)

// WorkerPoolConfig sizes a WorkerPool the same way ExecutorConfig sizes
// an Executor.
type WorkerPoolConfig struct {
	Workers   int
	QueueSize int
}

// DefaultWorkerPoolConfig mirrors DefaultExecutorConfig.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{Workers: 10, QueueSize: 1000}
}

type gatedWorkerPool struct {
	workers int
	tasks   chan Task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running int32
	ctx     context.Context
	cancel  context.CancelFunc
	logger  core.Logger
}

// NewWorkerPool builds a pool that does nothing until Start is called.
func NewWorkerPool(ctx context.Context, cfg WorkerPoolConfig, logger core.Logger) WorkerPool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}

	runCtx, cancel := context.WithCancel(ctx)
	return &gatedWorkerPool{
		workers: cfg.Workers,
		tasks:   make(chan Task, cfg.QueueSize),
		ctx:     runCtx,
		cancel:  cancel,
		logger:  logger,
	}
}

func (wp *gatedWorkerPool) Start() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if atomic.LoadInt32(&wp.running) == 1 {
		return fmt.Errorf("concurrency: worker pool already running")
	}
	atomic.StoreInt32(&wp.running, 1)

	wp.wg.Add(wp.workers)
	for i := 0; i < wp.workers; i++ {
		go wp.drain(i)
	}
	return nil
}

func (wp *gatedWorkerPool) drain(id int) {
	defer wp.wg.Done()
	for {
		select {
		case task, ok := <-wp.tasks:
			if !ok {
				return
			}
			if err := task.Execute(wp.ctx); err != nil && wp.logger != nil {
				wp.logger.Errorf("concurrency: worker pool worker %d: task %s failed: %v", id, task.Name(), err)
			}
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *gatedWorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if atomic.LoadInt32(&wp.running) == 0 {
		return nil
	}
	atomic.StoreInt32(&wp.running, 0)
	wp.cancel()
	close(wp.tasks)

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("concurrency: worker pool stop timed out: %w", ctx.Err())
	}
}

func (wp *gatedWorkerPool) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("concurrency: nil task")
	}
	if atomic.LoadInt32(&wp.running) == 0 {
		return fmt.Errorf("concurrency: worker pool not running")
	}

	select {
	case wp.tasks <- task:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (wp *gatedWorkerPool) Workers() int { return wp.workers }

func (wp *gatedWorkerPool) IsRunning() bool { return atomic.LoadInt32(&wp.running) == 1 }
