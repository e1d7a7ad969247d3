// Package deferred implements the single-assignment Deferred/Future cell
// described in this module's RPC design: a result slot with an ordered
// success/failure handler chain, resolved exactly once and resumed on a
// reactor rather than inline, so handler execution is never reentrant.
//
// The design is grounded in Twisted-style Deferreds (add_callback /
// add_errback / callback / errback), not the one-shot Future of most Go
// async libraries: handlers mutate the same cell in place, a failure
// handler can recover the chain back to a success value, and the object
// is shared by every party holding a registration or a waiter.
package deferred

import (
	"runtime"
	"sync"
	"time"

	"github.com/fluxorio/relay/pkg/core"
	"github.com/fluxorio/relay/pkg/reactor"
	"github.com/fluxorio/relay/pkg/rpcerrors"
)

type state int

const (
	statePending state = iota
	stateResult
	stateFailure
	stateCancelled
)

type chainKind int

const (
	kindOK chainKind = iota
	kindErr
)

// SuccessFunc transforms a successful value. Returning a non-nil error
// converts the chain to the failure branch; returning a *Deferred pauses
// the chain until that Deferred terminates, then adopts its outcome.
type SuccessFunc func(value interface{}) (interface{}, error)

// FailureFunc observes (and may recover) a failure. Returning a nil
// error converts the chain back to the success branch with the returned
// value; returning a *Deferred pauses the chain the same way SuccessFunc
// does.
type FailureFunc func(err error) (interface{}, error)

type handlerPair struct {
	onSuccess SuccessFunc
	onFailure FailureFunc
}

// Deferred is a single-assignment result cell with a sequential handler
// chain. The zero value is not usable; construct with New.
type Deferred struct {
	reactor *reactor.Reactor
	logger  core.Logger

	mu    sync.Mutex
	state state

	chain      []handlerPair
	chainIndex int
	chainKind  chainKind
	chainValue interface{}
	chainErr   error
	chainGen   int

	resumeScheduled bool
	awaitingInner   bool
	consumed        bool

	cancelNotify func()
}

// New creates a pending Deferred driven by r. If logger is non-nil, an
// unobserved terminal failure is logged once when the Deferred is
// garbage collected.
func New(r *reactor.Reactor, logger core.Logger) *Deferred {
	d := &Deferred{
		reactor: r,
		logger:  logger,
	}
	if logger != nil {
		runtime.SetFinalizer(d, finalizeDeferred)
	}
	return d
}

// OnCancel registers a callback invoked exactly once if Cancel wins the
// race to resolve this Deferred. It must be set before the Deferred can
// be cancelled to have any effect.
func (d *Deferred) OnCancel(fn func()) {
	d.mu.Lock()
	d.cancelNotify = fn
	d.mu.Unlock()
}

// AddSuccess appends a success handler to the chain.
func (d *Deferred) AddSuccess(fn SuccessFunc) *Deferred {
	d.addPair(handlerPair{onSuccess: fn})
	return d
}

// AddFailure appends a failure handler to the chain.
func (d *Deferred) AddFailure(fn FailureFunc) *Deferred {
	d.addPair(handlerPair{onFailure: fn})
	return d
}

// AddBoth appends a handler pair that is invoked regardless of which
// branch the chain is currently on.
func (d *Deferred) AddBoth(onOK SuccessFunc, onErr FailureFunc) *Deferred {
	d.addPair(handlerPair{onSuccess: onOK, onFailure: onErr})
	return d
}

func (d *Deferred) addPair(p handlerPair) {
	d.mu.Lock()
	d.chain = append(d.chain, p)
	terminal := d.state != statePending
	d.mu.Unlock()

	if terminal {
		d.scheduleResume()
	}
}

// Succeed transitions a pending Deferred to a successful result and
// schedules chain resumption. It returns rpcerrors.Cancelled if the
// Deferred was already cancelled, or rpcerrors.AlreadyCalled for any
// other non-pending state.
func (d *Deferred) Succeed(value interface{}) error {
	d.mu.Lock()
	if d.state != statePending {
		err := d.terminalErrorLocked()
		d.mu.Unlock()
		return err
	}
	d.state = stateResult
	d.chainKind = kindOK
	d.chainValue = value
	d.mu.Unlock()

	d.scheduleResume()
	return nil
}

// Fail transitions a pending Deferred to a failure and schedules chain
// resumption.
func (d *Deferred) Fail(err error) error {
	d.mu.Lock()
	if d.state != statePending {
		terminalErr := d.terminalErrorLocked()
		d.mu.Unlock()
		return terminalErr
	}
	d.state = stateFailure
	d.chainKind = kindErr
	d.chainErr = err
	d.mu.Unlock()

	d.scheduleResume()
	return nil
}

func (d *Deferred) terminalErrorLocked() error {
	if d.state == stateCancelled {
		return rpcerrors.Cancelled
	}
	return rpcerrors.AlreadyCalled
}

// Cancel transitions a pending Deferred to cancelled, invoking the
// cancellation notifier (if any) and entering failure-propagation mode
// with rpcerrors.Cancelled. A Deferred currently paused awaiting an
// inner Deferred (see chain-adoption in resume) may also be cancelled:
// it resolves to cancelled immediately and the inner Deferred's eventual
// outcome is discarded. Any other non-pending state fails with
// rpcerrors.AlreadyCalled.
func (d *Deferred) Cancel() error {
	d.mu.Lock()
	switch {
	case d.state == statePending:
		d.state = stateCancelled
	case d.awaitingInner:
		d.chainGen++ // invalidates the pending inner-await closure
		d.awaitingInner = false
	default:
		d.mu.Unlock()
		return rpcerrors.AlreadyCalled
	}

	d.chainKind = kindErr
	d.chainErr = rpcerrors.Cancelled
	notify := d.cancelNotify
	d.mu.Unlock()

	if notify != nil {
		notify()
	}
	d.scheduleResume()
	return nil
}

// Wait blocks the calling goroutine until the Deferred reaches a
// terminal state or timeout elapses (timeout <= 0 waits indefinitely).
// It drives the resumption through the reactor rather than polling: the
// timeout itself is armed as a reactor timer. On timeout the Deferred is
// left completely untouched, so a later Wait still observes the
// eventual outcome.
func (d *Deferred) Wait(timeout time.Duration) (interface{}, error) {
	done := make(chan struct{})
	var (
		value  interface{}
		outErr error
	)
	d.AddBoth(
		func(v interface{}) (interface{}, error) {
			value = v
			close(done)
			return v, nil
		},
		func(e error) (interface{}, error) {
			outErr = e
			close(done)
			return nil, e
		},
	)

	if timeout <= 0 {
		<-done
		return value, outErr
	}

	fired := make(chan struct{})
	cancelTimer := d.reactor.SetTimer(timeout, func() { close(fired) })

	select {
	case <-done:
		cancelTimer()
		return value, outErr
	case <-fired:
		return nil, rpcerrors.Timeout
	}
}

// scheduleResume posts resume onto the reactor unless a resume is
// already in flight or the Deferred is still pending. Posting is
// best-effort: a backpressure error is logged and the chain will resume
// on the next handler registration or state transition that calls
// scheduleResume again.
func (d *Deferred) scheduleResume() {
	d.mu.Lock()
	if d.resumeScheduled || d.state == statePending {
		d.mu.Unlock()
		return
	}
	d.resumeScheduled = true
	d.mu.Unlock()

	if err := d.reactor.Post(d.resume); err != nil {
		d.mu.Lock()
		d.resumeScheduled = false
		d.mu.Unlock()
		if d.logger != nil {
			d.logger.Warnf("deferred: failed to schedule chain resumption: %v", err)
		}
	}
}

// resume drains as much of the handler chain as it can without
// reentrancy: each handler is invoked with the mutex released, and a
// handler that returns an inner *Deferred pauses resume entirely until
// that inner Deferred completes (at which point resume is rescheduled
// via the reactor, never called directly from the inner completion
// handler).
func (d *Deferred) resume() {
	d.mu.Lock()
	d.resumeScheduled = false
	if d.awaitingInner {
		d.mu.Unlock()
		return
	}

	for d.chainIndex < len(d.chain) {
		pair := d.chain[d.chainIndex]
		d.chainIndex++

		kind := d.chainKind
		value := d.chainValue
		failure := d.chainErr
		gen := d.chainGen
		d.mu.Unlock()

		var (
			handled   bool
			result    interface{}
			handlerErr error
		)

		switch kind {
		case kindOK:
			if pair.onSuccess != nil {
				handled = true
				result, handlerErr = pair.onSuccess(value)
			}
		case kindErr:
			if pair.onFailure != nil {
				handled = true
				d.mu.Lock()
				d.consumed = true
				d.mu.Unlock()
				result, handlerErr = pair.onFailure(failure)
			}
		}

		if !handled {
			d.mu.Lock()
			continue
		}

		if handlerErr != nil {
			d.mu.Lock()
			if d.chainGen != gen {
				continue // outer was cancelled mid-handler; discard
			}
			d.chainKind = kindErr
			d.chainErr = handlerErr
			d.chainValue = nil
			continue
		}

		if inner, ok := result.(*Deferred); ok {
			d.mu.Lock()
			if d.chainGen != gen {
				d.mu.Unlock()
				return // cancelled while the handler ran; drop the inner wait entirely
			}
			d.awaitingInner = true
			d.mu.Unlock()
			d.awaitInner(inner, gen)
			return
		}

		d.mu.Lock()
		if d.chainGen != gen {
			continue
		}
		d.chainKind = kindOK
		d.chainValue = result
		d.chainErr = nil
	}

	d.mu.Unlock()
}

// awaitInner attaches a completion hook to inner and, once it
// terminates, adopts its outcome as the current chain state and
// reschedules resume. gen is the chainGen snapshot taken when the inner
// Deferred was returned; if Cancel bumped chainGen in the meantime, the
// adoption is silently discarded.
func (d *Deferred) awaitInner(inner *Deferred, gen int) {
	inner.AddBoth(
		func(v interface{}) (interface{}, error) {
			d.mu.Lock()
			if d.chainGen == gen {
				d.awaitingInner = false
				d.chainKind = kindOK
				d.chainValue = v
				d.chainErr = nil
			}
			d.mu.Unlock()
			d.scheduleResume()
			return v, nil
		},
		func(e error) (interface{}, error) {
			d.mu.Lock()
			if d.chainGen == gen {
				d.awaitingInner = false
				d.chainKind = kindErr
				d.chainErr = e
				d.chainValue = nil
			}
			d.mu.Unlock()
			d.scheduleResume()
			return nil, e
		},
	)
}

// finalizeDeferred is the Deferred's unobserved-failure safety net: the
// nearest Go analogue of a __del__ hook. It fires when the garbage
// collector determines nothing references the Deferred any longer.
func finalizeDeferred(d *Deferred) {
	d.mu.Lock()
	state := d.state
	consumed := d.consumed
	kind := d.chainKind
	failure := d.chainErr
	logger := d.logger
	d.mu.Unlock()

	if logger == nil || state == statePending || consumed {
		return
	}
	if kind == kindErr {
		logger.Errorf("deferred: unobserved failure: %v", failure)
	}
}
