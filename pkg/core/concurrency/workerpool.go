package concurrency

import "context"

// WorkerPool is the explicit-lifecycle sibling of Executor: Start/Stop
// are separate from construction, so a caller can build the pool ahead
// of time and bring it up only once a listener is actually serving.
// cmd/relayserver backs its "batch_add" method with one.
type WorkerPool interface {
	TaskSubmitter

	Start() error
	Stop(ctx context.Context) error
	Workers() int
	IsRunning() bool
}
