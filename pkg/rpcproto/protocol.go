// Package rpcproto implements the RPC Protocol state machine: the
// inbound message demultiplexer that owns a connection's Proxy and
// drives it from decoded frames, plus the Protocol Factory that
// instantiates one Protocol per connection and exposes proxies by a
// stable numeric index. Grounded on whizzer.rpc.MarshalRPCProtocol /
// RPCProtocolFactory, with the factory's connection-index bug (plain
// list.remove shifting survivors) fixed by sparse deletion.
package rpcproto

import (
	"context"
	"sync"

	"github.com/fluxorio/relay/pkg/codec"
	"github.com/fluxorio/relay/pkg/core"
	"github.com/fluxorio/relay/pkg/deferred"
	"github.com/fluxorio/relay/pkg/dispatch"
	relaytracing "github.com/fluxorio/relay/pkg/observability/tracing"
	"github.com/fluxorio/relay/pkg/reactor"
	"github.com/fluxorio/relay/pkg/rpcerrors"
	"github.com/fluxorio/relay/pkg/rpcproxy"
)

// notifyContext returns a request-scoped logger for one dispatched
// notify: a fresh request id is minted so a failure logged here carries
// the same request_id field the rest of the module's logging uses, even
// though notify itself carries no wire-level id to correlate against.
func (p *Protocol) notifyContext() core.Logger {
	if p.logger == nil {
		return nil
	}
	return p.logger.WithContext(core.WithNewRequestID(context.Background()))
}

type connState int

const (
	stateInit connState = iota
	stateOpen
	stateClosed
)

// FrameWriter is the narrow interface a Protocol needs from its
// transport: hand encoded bytes to the wire.
type FrameWriter interface {
	Write(data []byte) error
}

// Protocol is per-connection state: decoder, dispatcher reference,
// owned Proxy, and the list of Futures waiting on that Proxy to exist.
type Protocol struct {
	reactor *reactor.Reactor
	logger  core.Logger

	mu         sync.Mutex
	state      connState
	codec      codec.Codec
	dispatcher *dispatch.Dispatcher
	proxy      *rpcproxy.Proxy
	waiters    []*deferred.Deferred
	writer     FrameWriter

	index  int
	onLost func(*Protocol)
	tracer *relaytracing.Tracer
}

// SetTracer attaches a Tracer this Protocol opens a server span against
// for every dispatched call/notify. Optional: without one, dispatch
// behaves identically, just unobserved.
func (p *Protocol) SetTracer(t *relaytracing.Tracer) {
	p.mu.Lock()
	p.tracer = t
	p.mu.Unlock()
}

// NewProtocol returns a Protocol in the init state, not yet usable
// until ConnectionMade is called.
func NewProtocol(c codec.Codec, dispatcher *dispatch.Dispatcher, r *reactor.Reactor, logger core.Logger) *Protocol {
	return &Protocol{
		reactor:    r,
		logger:     logger,
		codec:      c,
		dispatcher: dispatcher,
		index:      -1,
	}
}

func (p *Protocol) setIndex(i int)            { p.index = i }
func (p *Protocol) setOnLost(fn func(*Protocol)) { p.onLost = fn }

// Index returns the connection index this Protocol was assigned by its
// factory, or -1 if it was built without one.
func (p *Protocol) Index() int { return p.index }

// SendFrame implements rpcproxy.Sender: encode f and hand it to the
// transport. Sending on a non-open connection fails with
// rpcerrors.ConnectionLost rather than panicking on a nil writer.
func (p *Protocol) SendFrame(f codec.Frame) error {
	p.mu.Lock()
	st := p.state
	c := p.codec
	w := p.writer
	p.mu.Unlock()

	if st != stateOpen {
		return rpcerrors.ConnectionLost
	}
	data, err := c.Encode(f)
	if err != nil {
		return err
	}
	return w.Write(data)
}

// ConnectionMade transitions init -> open, builds the Proxy, and
// resolves every pending proxy waiter with it.
func (p *Protocol) ConnectionMade(writer FrameWriter) {
	p.mu.Lock()
	p.writer = writer
	p.state = stateOpen
	p.proxy = rpcproxy.New(p, p.reactor, p.logger)
	waiters := p.waiters
	p.waiters = nil
	proxy := p.proxy
	p.mu.Unlock()

	for _, w := range waiters {
		w.Succeed(proxy)
	}
}

// Proxy returns a Future resolved with this connection's Proxy once it
// exists. A caller asking before connection-up is queued as a waiter
// and resolved by ConnectionMade; asking after connection-loss fails
// immediately with rpcerrors.ConnectionLost.
func (p *Protocol) Proxy() *deferred.Deferred {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateOpen:
		result := deferred.New(p.reactor, p.logger)
		result.Succeed(p.proxy)
		return result
	case stateClosed:
		result := deferred.New(p.reactor, p.logger)
		result.Fail(rpcerrors.ConnectionLost)
		return result
	default:
		waiter := deferred.New(p.reactor, p.logger)
		p.waiters = append(p.waiters, waiter)
		return waiter
	}
}

// HandleData feeds newly-arrived bytes through the codec and
// demultiplexes every frame that becomes complete. A decode failure is
// fatal to the connection.
func (p *Protocol) HandleData(data []byte) {
	p.mu.Lock()
	if p.state != stateOpen {
		p.mu.Unlock()
		return
	}
	c := p.codec
	p.mu.Unlock()

	frames, err := c.Feed(data)
	for _, f := range frames {
		p.dispatchFrame(f)
	}
	if err != nil {
		p.ConnectionLost(err)
	}
}

func (p *Protocol) dispatchFrame(f codec.Frame) {
	switch f.Kind {
	case codec.KindResponse:
		p.mu.Lock()
		proxy := p.proxy
		p.mu.Unlock()
		if proxy != nil {
			proxy.Resolve(f.RequestID, f.Err, f.Result)
		}

	case codec.KindNotify:
		p.dispatchNotify(f)

	case codec.KindCall:
		p.dispatchCall(f)
	}
}

// dispatchNotify invokes the handler and discards both its return value
// and any error it raises, regardless of outcome: a notify never
// produces a response frame. An error is logged, never replied to.
func (p *Protocol) dispatchNotify(f codec.Frame) {
	p.mu.Lock()
	dispatcher := p.dispatcher
	tracer := p.tracer
	p.mu.Unlock()
	if dispatcher == nil {
		return
	}

	_, span := tracer.StartDispatch(context.Background(), f.Method)

	result, err := dispatcher.Call(f.Method, f.Params)
	if err != nil {
		relaytracing.End(span, err)
		p.logNotifyFailure(f.Method, err)
		return
	}
	if inner, ok := result.(*deferred.Deferred); ok {
		inner.AddBoth(
			func(v interface{}) (interface{}, error) {
				relaytracing.End(span, nil)
				return v, nil
			},
			func(e error) (interface{}, error) {
				relaytracing.End(span, e)
				p.logNotifyFailure(f.Method, e)
				return nil, e
			},
		)
		return
	}
	relaytracing.End(span, nil)
}

func (p *Protocol) logNotifyFailure(method string, err error) {
	if logger := p.notifyContext(); logger != nil {
		logger.WithFields(map[string]interface{}{"method": method}).
			Warnf("rpcproto: notify failed: %v", err)
	}
}

// dispatchCall invokes the handler and replies with a response frame:
// response-ok for a plain return, response-err if the handler raised,
// or a hook attached to the returned Deferred when the handler is
// asynchronous.
func (p *Protocol) dispatchCall(f codec.Frame) {
	p.mu.Lock()
	dispatcher := p.dispatcher
	tracer := p.tracer
	p.mu.Unlock()
	if dispatcher == nil {
		return
	}

	_, span := tracer.StartDispatch(context.Background(), f.Method)

	result, err := dispatcher.Call(f.Method, f.Params)
	if err != nil {
		relaytracing.End(span, err)
		p.SendFrame(codec.NewErrorFrame(f.RequestID, err.Error()))
		return
	}

	if inner, ok := result.(*deferred.Deferred); ok {
		inner.AddBoth(
			func(v interface{}) (interface{}, error) {
				relaytracing.End(span, nil)
				p.SendFrame(codec.NewResultFrame(f.RequestID, v))
				return v, nil
			},
			func(e error) (interface{}, error) {
				relaytracing.End(span, e)
				p.SendFrame(codec.NewErrorFrame(f.RequestID, e.Error()))
				return nil, e
			},
		)
		return
	}

	relaytracing.End(span, nil)
	p.SendFrame(codec.NewResultFrame(f.RequestID, result))
}

// ConnectionLost transitions open -> closed exactly once: it fails
// every in-flight proxy request and every still-queued Proxy() waiter
// with rpcerrors.ConnectionLost (so a caller that asked for the proxy
// before ConnectionMade ever fired does not wait forever), drops the
// dispatcher reference, and notifies the owning factory so the
// connection's slot can be vacated.
func (p *Protocol) ConnectionLost(err error) {
	p.mu.Lock()
	if p.state == stateClosed {
		p.mu.Unlock()
		return
	}
	p.state = stateClosed
	proxy := p.proxy
	waiters := p.waiters
	p.waiters = nil
	p.dispatcher = nil
	onLost := p.onLost
	p.mu.Unlock()

	if proxy != nil {
		proxy.FailAll(rpcerrors.ConnectionLost)
	}
	for _, w := range waiters {
		w.Fail(rpcerrors.ConnectionLost)
	}
	if p.logger != nil {
		p.logger.Warnf("rpcproto: connection lost: %v", err)
	}
	if onLost != nil {
		onLost(p)
	}
}
