package rpcproto

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/relay/pkg/codec"
	"github.com/fluxorio/relay/pkg/codec/nativecodec"
	"github.com/fluxorio/relay/pkg/dispatch"
	"github.com/fluxorio/relay/pkg/reactor"
	"github.com/fluxorio/relay/pkg/rpcerrors"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	r := reactor.NewReactor(reactor.ReactorOptions{MailboxSize: 32})
	r.Start()
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	return NewFactory(r, dispatch.New(), func() codec.Codec { return nativecodec.New() }, nil)
}

func TestFactory_BuildAssignsSequentialIndices(t *testing.T) {
	f := newTestFactory(t)

	p0 := f.Build()
	p1 := f.Build()
	p2 := f.Build()

	assert.Equal(t, 0, p0.Index())
	assert.Equal(t, 1, p1.Index())
	assert.Equal(t, 2, p2.Index())
	assert.Equal(t, 3, f.Len())
}

// Sparse factory indices: losing a connection never renumbers a
// survivor's index, fixing the source's list.remove(p) bug.
func TestFactory_LostConnectionDoesNotRenumber(t *testing.T) {
	f := newTestFactory(t)

	p0 := f.Build()
	p1 := f.Build()
	p2 := f.Build()

	p0.ConnectionMade(&directWriter{peer: p0})
	p1.ConnectionMade(&directWriter{peer: p1})
	p2.ConnectionMade(&directWriter{peer: p2})

	p1.ConnectionLost(nil)

	assert.Equal(t, 0, p0.Index())
	assert.Equal(t, 2, p2.Index())
	assert.Equal(t, 3, f.Len())

	_, err := f.Proxy(1).Wait(time.Second)
	assert.Equal(t, rpcerrors.ConnectionLost, err)

	val, err := f.Proxy(2).Wait(time.Second)
	require.NoError(t, err)
	assert.NotNil(t, val)
}

func TestFactory_ProxyOutOfRangeFailsImmediately(t *testing.T) {
	f := newTestFactory(t)

	_, err := f.Proxy(42).Wait(time.Second)
	assert.Equal(t, rpcerrors.ConnectionLost, err)
}
