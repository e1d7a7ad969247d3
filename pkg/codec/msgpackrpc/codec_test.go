package msgpackrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/relay/pkg/codec"
)

func TestCodec_RoundTripRequest(t *testing.T) {
	c := New()
	in := codec.NewCallFrame(7, "add", []interface{}{2, 3})

	wire, err := c.Encode(in)
	require.NoError(t, err)

	frames, err := c.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, codec.KindCall, frames[0].Kind)
	assert.Equal(t, uint64(7), frames[0].RequestID)
	assert.Equal(t, "add", frames[0].Method)
}

func TestCodec_RoundTripNotify(t *testing.T) {
	c := New()
	in := codec.NewNotifyFrame("add", []interface{}{2, 3})

	wire, err := c.Encode(in)
	require.NoError(t, err)

	frames, err := c.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, codec.KindNotify, frames[0].Kind)
	assert.Equal(t, "add", frames[0].Method)
}

func TestCodec_RoundTripResponseOK(t *testing.T) {
	c := New()
	in := codec.NewResultFrame(7, int64(5))

	wire, err := c.Encode(in)
	require.NoError(t, err)

	frames, err := c.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, codec.KindResponse, frames[0].Kind)
	assert.Nil(t, frames[0].Err)
	assert.EqualValues(t, 5, frames[0].Result)
}

func TestCodec_RoundTripResponseErr(t *testing.T) {
	c := New()
	in := codec.NewErrorFrame(7, "boom")

	wire, err := c.Encode(in)
	require.NoError(t, err)

	frames, err := c.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "boom", frames[0].Err)
}

func TestCodec_IncompleteFrameWaitsForMoreBytes(t *testing.T) {
	c := New()
	wire, err := c.Encode(codec.NewCallFrame(1, "ping", nil))
	require.NoError(t, err)
	require.Greater(t, len(wire), 1)

	frames, err := c.Feed(wire[:len(wire)-1])
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = c.Feed(wire[len(wire)-1:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "ping", frames[0].Method)
}

func TestCodec_MultipleFramesInOneFeed(t *testing.T) {
	c := New()
	a, err := c.Encode(codec.NewCallFrame(1, "a", nil))
	require.NoError(t, err)
	b, err := c.Encode(codec.NewCallFrame(2, "b", nil))
	require.NoError(t, err)

	frames, err := c.Feed(append(a, b...))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(1), frames[0].RequestID)
	assert.Equal(t, uint64(2), frames[1].RequestID)
}
