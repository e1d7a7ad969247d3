package rpcproxy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/relay/pkg/codec"
	"github.com/fluxorio/relay/pkg/reactor"
	"github.com/fluxorio/relay/pkg/rpcerrors"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []codec.Frame
	onSend func(codec.Frame) error
}

func (f *fakeSender) SendFrame(frame codec.Frame) error {
	f.mu.Lock()
	f.sent = append(f.sent, frame)
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		return hook(frame)
	}
	return nil
}

func (f *fakeSender) lastFrame() codec.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func newTestProxy(t *testing.T) (*Proxy, *fakeSender) {
	t.Helper()
	r := reactor.NewReactor(reactor.ReactorOptions{MailboxSize: 32})
	r.Start()
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	sender := &fakeSender{}
	return New(sender, r, nil), sender
}

// Scenario 5 analogue at the Proxy layer: begin_call records an id
// before sending, and a matching response resolves exactly that Future.
func TestProxy_CallRoundTrip(t *testing.T) {
	p, sender := newTestProxy(t)

	d := p.BeginCall("add", []interface{}{2, 3})
	assert.Equal(t, 1, p.InFlightCount())

	frame := sender.lastFrame()
	assert.Equal(t, codec.KindCall, frame.Kind)

	p.Resolve(frame.RequestID, nil, 5)

	value, err := d.Wait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, value)
	assert.Equal(t, 0, p.InFlightCount())
}

func TestProxy_CallRemoteError(t *testing.T) {
	p, sender := newTestProxy(t)

	d := p.BeginCall("add", []interface{}{2, 3})
	frame := sender.lastFrame()

	p.Resolve(frame.RequestID, "division by zero", nil)

	_, err := d.Wait(time.Second)
	require.Error(t, err)
	remoteErr, ok := err.(*rpcerrors.RemoteError)
	require.True(t, ok)
	assert.Equal(t, "division by zero", remoteErr.Payload)
}

// Notify fire-and-forget: never allocates an in-flight entry.
func TestProxy_NotifyNeverAllocatesEntry(t *testing.T) {
	p, _ := newTestProxy(t)

	err := p.Notify("add", []interface{}{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0, p.InFlightCount())
}

// A spurious response for an unknown id is silently dropped, not
// mutating any other Future.
func TestProxy_UnknownResponseIsDropped(t *testing.T) {
	p, sender := newTestProxy(t)

	d := p.BeginCall("add", []interface{}{2, 3})
	frame := sender.lastFrame()

	p.Resolve(frame.RequestID+999, nil, "wrong")
	assert.Equal(t, 1, p.InFlightCount())

	p.Resolve(frame.RequestID, nil, 5)
	value, err := d.Wait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, value)
}

func TestProxy_FailAllOnConnectionLost(t *testing.T) {
	p, _ := newTestProxy(t)

	d1 := p.BeginCall("a", nil)
	d2 := p.BeginCall("b", nil)

	p.FailAll(rpcerrors.ConnectionLost)

	_, err1 := d1.Wait(time.Second)
	_, err2 := d2.Wait(time.Second)
	assert.Equal(t, rpcerrors.ConnectionLost, err1)
	assert.Equal(t, rpcerrors.ConnectionLost, err2)
	assert.Equal(t, 0, p.InFlightCount())
}

func TestProxy_BeginCallSendFailureFailsImmediately(t *testing.T) {
	r := reactor.NewReactor(reactor.ReactorOptions{MailboxSize: 8})
	r.Start()
	defer r.Stop(context.Background())

	sender := &fakeSender{onSend: func(codec.Frame) error { return errors.New("write failed") }}
	p := New(sender, r, nil)

	d := p.BeginCall("add", []interface{}{2, 3})
	_, err := d.Wait(time.Second)
	assert.EqualError(t, err, "write failed")
	assert.Equal(t, 0, p.InFlightCount())
}
