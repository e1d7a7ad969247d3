// Package concurrency carries the teacher module's bounded offload
// primitives into the RPC runtime: dispatch.RegisterAsync needs
// somewhere to run a handler body without blocking the reactor
// goroutine, and Executor/WorkerPool are the two pool shapes it can
// submit onto.
package concurrency

import (
	"context"
	"errors"
)

var (
	// ErrQueueFull is returned when a pool's task queue has no room and
	// the caller asked for non-blocking submission.
	ErrQueueFull = errors.New("concurrency: task queue full")

	// ErrPoolClosed is returned when Submit is called on a pool that has
	// already shut down.
	ErrPoolClosed = errors.New("concurrency: pool closed")
)

// Task is one unit of offloaded work. A dispatch handler body wrapped
// by RegisterAsync becomes a Task whose Execute runs off the reactor
// goroutine; its eventual result is posted back through the reactor by
// the caller, never returned from Execute directly to RPC state.
type Task interface {
	Execute(ctx context.Context) error
	Name() string
}

// TaskFunc adapts a plain func to Task, naming it "anonymous" since
// most offloaded dispatch handlers don't need a distinct label.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Execute(ctx context.Context) error { return f(ctx) }
func (f TaskFunc) Name() string                      { return "anonymous" }

// NamedTask pairs a TaskFunc with a label that shows up in pool error
// logs, useful when a pool runs more than one kind of handler.
type NamedTask struct {
	label string
	fn    TaskFunc
}

// NewNamedTask wraps fn under label.
func NewNamedTask(label string, fn TaskFunc) *NamedTask {
	return &NamedTask{label: label, fn: fn}
}

func (t *NamedTask) Execute(ctx context.Context) error { return t.fn(ctx) }
func (t *NamedTask) Name() string                      { return t.label }

// TaskSubmitter is the narrow capability dispatch.RegisterAsync needs
// from an offload pool: accept one task for out-of-band execution.
// Both Executor and WorkerPool satisfy it.
type TaskSubmitter interface {
	Submit(task Task) error
}
