package reactor

import (
	"context"
	"errors"
	"time"

	"github.com/fluxorio/relay/pkg/core/concurrency"
)

var (
	// ErrBackpressure is returned by Post/PostTimeout when the reactor's
	// mailbox is full and the caller should shed load rather than block.
	ErrBackpressure = errors.New("reactor: mailbox full")

	// ErrStopped is returned by Post/PostTimeout once Stop has been
	// called; no further closures will run.
	ErrStopped = errors.New("reactor: stopped")
)

// Reactor is a single-goroutine, FIFO closure scheduler. It stands in for
// the external event loop the protocol engine is normally embedded in
// (pyev, libevent, asyncio): everything that touches shared Deferred,
// Proxy, or Protocol state runs as a closure posted here, never inline
// from a connection's own goroutine.
//
// The queue itself is a concurrency.Mailbox — the teacher's own bounded
// channel-hiding primitive, restored here as the reactor's inbound
// closure buffer rather than left unwired. Its Send/Close are mutually
// exclusive under one RWMutex, which is what closes the shutdown-then-
// post race a raw "check stopped, then send" pair could not.
type Reactor struct {
	mailbox concurrency.Mailbox
	done    chan struct{}
}

type ReactorOptions struct {
	MailboxSize int
}

func NewReactor(opts ReactorOptions) *Reactor {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 1024 // Default mailbox size
	}
	return &Reactor{
		mailbox: concurrency.NewBoundedMailbox(opts.MailboxSize),
		done:    make(chan struct{}),
	}
}

// Start launches the reactor's run loop on its own goroutine.
func (r *Reactor) Start() {
	go r.run()
}

func (r *Reactor) run() {
	defer close(r.done)
	ctx := context.Background()
	for {
		msg, err := r.mailbox.Receive(ctx)
		if err != nil {
			return
		}
		msg.(func())()
	}
}

// Stop closes the mailbox and waits for the run loop to drain it, or for
// ctx to expire first.
func (r *Reactor) Stop(ctx context.Context) error {
	r.mailbox.Close()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post schedules fn to run on the reactor goroutine (schedule_now).
func (r *Reactor) Post(fn func()) error {
	return translateMailboxErr(r.mailbox.Send(fn))
}

// PostTimeout is like Post but gives up after d if the mailbox stays full.
func (r *Reactor) PostTimeout(d time.Duration, fn func()) error {
	return translateMailboxErr(r.mailbox.SendTimeout(fn, d))
}

func translateMailboxErr(err error) error {
	switch err {
	case nil:
		return nil
	case concurrency.ErrMailboxFull:
		return ErrBackpressure
	case concurrency.ErrMailboxClosed:
		return ErrStopped
	default:
		return err
	}
}

func (r *Reactor) SetTimer(d time.Duration, fn func()) func() {
	timer := time.NewTimer(d)
	go func() {
		<-timer.C
		r.Post(fn)
	}()
	return func() { timer.Stop() }
}

func (r *Reactor) SetPeriodic(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				r.Post(fn)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
