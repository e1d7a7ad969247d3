// Package rpcproxy implements the client-side view of a peer's
// dispatcher: it tracks outbound calls by request id and resolves the
// matching Deferred when a response arrives, independent of which wire
// codec the owning protocol uses. Grounded on whizzer.rpc.Proxy /
// MarshalRPCProxy's begin_call/begin_notify/results bookkeeping.
package rpcproxy

import (
	"context"
	"time"

	"sync"

	"github.com/fluxorio/relay/pkg/codec"
	"github.com/fluxorio/relay/pkg/core"
	"github.com/fluxorio/relay/pkg/deferred"
	relaymetrics "github.com/fluxorio/relay/pkg/observability/prometheus"
	relaytracing "github.com/fluxorio/relay/pkg/observability/tracing"
	"github.com/fluxorio/relay/pkg/reactor"
	"github.com/fluxorio/relay/pkg/rpcerrors"
	"go.opentelemetry.io/otel/trace"
)

// Sender is the narrow interface a Proxy needs from its owning
// protocol: encode and ship one frame out over the wire.
type Sender interface {
	SendFrame(f codec.Frame) error
}

// Proxy is per-connection outbound-call state. It is driven entirely
// from the reactor goroutine; BeginCall/BeginNotify may be invoked from
// any goroutine, but the bookkeeping itself only ever mutates under the
// mutex.
type Proxy struct {
	sender  Sender
	reactor *reactor.Reactor
	logger  core.Logger

	mu             sync.Mutex
	nextID         uint64
	inFlight       map[uint64]*deferred.Deferred
	callStarted    map[uint64]time.Time
	callSpans      map[uint64]trace.Span
	defaultTimeout time.Duration

	metrics *relaymetrics.Metrics
	tracer  *relaytracing.Tracer
}

// New returns a Proxy that sends frames through sender.
func New(sender Sender, r *reactor.Reactor, logger core.Logger) *Proxy {
	return &Proxy{
		sender:      sender,
		reactor:     r,
		logger:      logger,
		inFlight:    make(map[uint64]*deferred.Deferred),
		callStarted: make(map[uint64]time.Time),
		callSpans:   make(map[uint64]trace.Span),
	}
}

// SetTimeout sets the default wait duration used by Call. Notify does
// not use it: BeginNotify's Deferred is already resolved when it returns.
func (p *Proxy) SetTimeout(d time.Duration) {
	p.mu.Lock()
	p.defaultTimeout = d
	p.mu.Unlock()
}

// SetMetrics attaches a Prometheus registry this Proxy records call
// volume, latency, and in-flight pressure against. Optional: a Proxy
// with no metrics attached behaves identically, just unobserved.
func (p *Proxy) SetMetrics(m *relaymetrics.Metrics) {
	p.mu.Lock()
	p.metrics = m
	p.mu.Unlock()
}

// SetTracer attaches a Tracer this Proxy opens a client span against
// for every BeginCall/BeginNotify. Optional: a Proxy with no tracer
// attached behaves identically, just unobserved.
func (p *Proxy) SetTracer(t *relaytracing.Tracer) {
	p.mu.Lock()
	p.tracer = t
	p.mu.Unlock()
}

// BeginCall allocates the next request id, records it against a fresh
// Deferred before sending, then sends the request frame. The Deferred
// resolves when Resolve is later called with a matching id, or is
// failed immediately if the send itself fails.
func (p *Proxy) BeginCall(method string, params []interface{}) *deferred.Deferred {
	result := deferred.New(p.reactor, p.logger)

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.inFlight[id] = result
	p.callStarted[id] = time.Now()
	metrics := p.metrics
	tracer := p.tracer
	p.mu.Unlock()
	if metrics != nil {
		metrics.RPCInflightRequests.Inc()
	}

	_, span := tracer.StartCall(context.Background(), method)
	if span != nil {
		p.mu.Lock()
		p.callSpans[id] = span
		p.mu.Unlock()
	}

	if err := p.sender.SendFrame(codec.NewCallFrame(id, method, params)); err != nil {
		p.mu.Lock()
		delete(p.inFlight, id)
		delete(p.callStarted, id)
		delete(p.callSpans, id)
		p.mu.Unlock()
		if metrics != nil {
			metrics.RPCInflightRequests.Dec()
			metrics.RecordCall(method, err, 0)
		}
		relaytracing.End(span, err)
		result.Fail(err)
		return result
	}

	result.AddBoth(
		func(v interface{}) (interface{}, error) {
			p.recordCallOutcome(id, method, nil)
			return v, nil
		},
		func(e error) (interface{}, error) {
			p.recordCallOutcome(id, method, e)
			return nil, e
		},
	)
	return result
}

// recordCallOutcome reports one completed call's duration and status
// once, using the start time recorded by BeginCall.
func (p *Proxy) recordCallOutcome(id uint64, method string, callErr error) {
	p.mu.Lock()
	started, ok := p.callStarted[id]
	delete(p.callStarted, id)
	span := p.callSpans[id]
	delete(p.callSpans, id)
	metrics := p.metrics
	p.mu.Unlock()

	relaytracing.End(span, callErr)

	if metrics == nil || !ok {
		return
	}
	metrics.RPCInflightRequests.Dec()
	metrics.RecordCall(method, callErr, time.Since(started))
}

// Call is BeginCall(...).Wait(default_timeout). It blocks the calling
// goroutine only; the reactor keeps servicing other connections while
// this call is outstanding.
func (p *Proxy) Call(method string, params []interface{}) (interface{}, error) {
	p.mu.Lock()
	timeout := p.defaultTimeout
	p.mu.Unlock()
	return p.BeginCall(method, params).Wait(timeout)
}

// BeginNotify sends a one-way frame. No id is allocated and no
// in-flight entry is recorded; the returned Deferred is pre-resolved
// once the frame has been handed to the sender (or failed if the send
// itself failed).
func (p *Proxy) BeginNotify(method string, params []interface{}) *deferred.Deferred {
	result := deferred.New(p.reactor, p.logger)

	p.mu.Lock()
	tracer := p.tracer
	p.mu.Unlock()
	_, span := tracer.StartNotify(context.Background(), method)

	if err := p.sender.SendFrame(codec.NewNotifyFrame(method, params)); err != nil {
		relaytracing.End(span, err)
		result.Fail(err)
		return result
	}

	p.mu.Lock()
	metrics := p.metrics
	p.mu.Unlock()
	if metrics != nil {
		metrics.RecordNotify(method)
	}

	relaytracing.End(span, nil)
	result.Succeed(nil)
	return result
}

// Notify sends a one-way frame and returns once it has been submitted.
func (p *Proxy) Notify(method string, params []interface{}) error {
	_, err := p.BeginNotify(method, params).Wait(0)
	return err
}

// Resolve applies an inbound response to the matching in-flight
// Deferred, removing it from the map exactly once. A response whose id
// has no matching entry (already resolved, or never issued by this
// Proxy) is dropped and logged.
func (p *Proxy) Resolve(requestID uint64, errPayload interface{}, result interface{}) {
	p.mu.Lock()
	pending, ok := p.inFlight[requestID]
	if ok {
		delete(p.inFlight, requestID)
	}
	p.mu.Unlock()

	if !ok {
		if p.logger != nil {
			p.logger.Warnf("rpcproxy: response for unknown request id %d", requestID)
		}
		return
	}

	if errPayload != nil {
		pending.Fail(rpcerrors.NewRemoteError(errPayload))
		return
	}
	pending.Succeed(result)
}

// FailAll resolves every in-flight request with err. Called once when
// the owning protocol transitions to closed, so no caller waits
// forever on a connection that is gone.
func (p *Proxy) FailAll(err error) {
	p.mu.Lock()
	inFlight := p.inFlight
	p.inFlight = make(map[uint64]*deferred.Deferred)
	p.mu.Unlock()

	for _, pending := range inFlight {
		pending.Fail(err)
	}
}

// InFlightCount reports the number of outstanding calls. Exposed for
// tests asserting the notify-never-allocates invariant.
func (p *Proxy) InFlightCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}
