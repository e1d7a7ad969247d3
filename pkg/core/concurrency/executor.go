package concurrency

import (
	"context"
	"time"
)

// ExecutorStats is a point-in-time snapshot of one Executor's queue
// pressure and completion/rejection counters.
type ExecutorStats struct {
	Queued        int64
	Workers       int
	Completed     int64
	Rejected      int64
	QueueCapacity int
}

// Executor runs submitted Tasks on a fixed pool of goroutines reading
// from one bounded channel. dispatch.RegisterAsync submits a dispatched
// handler's body here so a CPU-heavy "slow_add"-style method never
// blocks the reactor goroutine that every connection shares.
type Executor interface {
	TaskSubmitter

	// SubmitWithTimeout is Submit with a bounded wait for queue room
	// instead of immediate rejection.
	SubmitWithTimeout(task Task, timeout time.Duration) error

	// Shutdown stops accepting new tasks and waits for the queue to
	// drain, or for ctx to expire first.
	Shutdown(ctx context.Context) error

	Stats() ExecutorStats
}
