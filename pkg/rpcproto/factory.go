package rpcproto

import (
	"sync"

	"github.com/fluxorio/relay/pkg/codec"
	"github.com/fluxorio/relay/pkg/core"
	"github.com/fluxorio/relay/pkg/deferred"
	"github.com/fluxorio/relay/pkg/dispatch"
	relaymetrics "github.com/fluxorio/relay/pkg/observability/prometheus"
	relaytracing "github.com/fluxorio/relay/pkg/observability/tracing"
	"github.com/fluxorio/relay/pkg/reactor"
	"github.com/fluxorio/relay/pkg/rpcerrors"
)

// Factory builds one Protocol per connection and exposes proxies by a
// connection index that never changes for the lifetime of the Factory.
// The index list is sparse: lostConnection nulls a slot rather than
// shifting survivors down, fixing the source's append-then-list.remove
// renumbering bug (spec.md §9, "Connection index stability").
type Factory struct {
	reactor    *reactor.Reactor
	dispatcher *dispatch.Dispatcher
	logger     core.Logger
	newCodec   func() codec.Codec

	mu        sync.Mutex
	protocols []*Protocol // nil entries are vacant slots
	metrics   *relaymetrics.Metrics
	tracer    *relaytracing.Tracer
}

// SetMetrics attaches a Prometheus registry this Factory records
// connection counts against. Optional: without one, Build/lostConnection
// behave identically, just unobserved.
func (f *Factory) SetMetrics(m *relaymetrics.Metrics) {
	f.mu.Lock()
	f.metrics = m
	f.mu.Unlock()
}

// SetTracer attaches a Tracer every Protocol this Factory builds opens
// a server span against for each dispatched call/notify. Optional:
// without one, dispatch behaves identically, just unobserved.
func (f *Factory) SetTracer(t *relaytracing.Tracer) {
	f.mu.Lock()
	f.tracer = t
	f.mu.Unlock()
}

// NewFactory returns a Factory that builds protocols over newCodec()
// (the concrete wire variant — nativecodec.New or msgpackrpc.New) and
// dispatches inbound calls/notifies through dispatcher.
func NewFactory(r *reactor.Reactor, dispatcher *dispatch.Dispatcher, newCodec func() codec.Codec, logger core.Logger) *Factory {
	return &Factory{
		reactor:    r,
		dispatcher: dispatcher,
		logger:     logger,
		newCodec:   newCodec,
	}
}

// Build constructs a new Protocol for a fresh connection and assigns it
// the next connection index.
func (f *Factory) Build() *Protocol {
	f.mu.Lock()
	p := NewProtocol(f.newCodec(), f.dispatcher, f.reactor, f.logger)
	p.SetTracer(f.tracer)
	p.setIndex(len(f.protocols))
	p.setOnLost(f.lostConnection)
	f.protocols = append(f.protocols, p)
	metrics := f.metrics
	f.mu.Unlock()

	if metrics != nil {
		metrics.RecordConnectionOpened()
	}
	return p
}

// Proxy delegates to the protocol at index, returning an
// already-failed Future (rpcerrors.ConnectionLost) if index names a
// vacant or out-of-range slot.
func (f *Factory) Proxy(index int) *deferred.Deferred {
	f.mu.Lock()
	var p *Protocol
	if index >= 0 && index < len(f.protocols) {
		p = f.protocols[index]
	}
	f.mu.Unlock()

	if p == nil {
		result := deferred.New(f.reactor, f.logger)
		result.Fail(rpcerrors.ConnectionLost)
		return result
	}
	return p.Proxy()
}

// lostConnection vacates p's slot without renumbering any surviving
// protocol's index.
func (f *Factory) lostConnection(p *Protocol) {
	f.mu.Lock()
	idx := p.Index()
	vacated := idx >= 0 && idx < len(f.protocols) && f.protocols[idx] == p
	if vacated {
		f.protocols[idx] = nil
	}
	metrics := f.metrics
	f.mu.Unlock()

	if vacated && metrics != nil {
		metrics.RecordConnectionClosed()
	}
}

// Len returns the total number of connection slots ever assigned,
// including vacant ones — exposed so callers and tests can confirm
// index stability without reaching into factory internals.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.protocols)
}
