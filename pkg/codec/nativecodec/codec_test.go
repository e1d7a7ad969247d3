package nativecodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/relay/pkg/codec"
	"github.com/fluxorio/relay/pkg/rpcerrors"
)

func TestCodec_RoundTripCall(t *testing.T) {
	c := New()
	in := codec.NewCallFrame(7, "add", []interface{}{2, 3})

	wire, err := c.Encode(in)
	require.NoError(t, err)

	frames, err := c.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, in, frames[0])
}

func TestCodec_RoundTripNotify(t *testing.T) {
	c := New()
	in := codec.NewNotifyFrame("add", []interface{}{2, 3})

	wire, err := c.Encode(in)
	require.NoError(t, err)

	frames, err := c.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, in, frames[0])
}

func TestCodec_RoundTripResponseOK(t *testing.T) {
	c := New()
	in := codec.NewResultFrame(7, 5)

	wire, err := c.Encode(in)
	require.NoError(t, err)

	frames, err := c.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, in, frames[0])
}

func TestCodec_RoundTripResponseErr(t *testing.T) {
	c := New()
	in := codec.NewErrorFrame(7, "boom")

	wire, err := c.Encode(in)
	require.NoError(t, err)

	frames, err := c.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, in, frames[0])
}

func TestCodec_FeedsByteAtATime(t *testing.T) {
	c := New()
	in := codec.NewCallFrame(1, "ping", nil)
	wire, err := c.Encode(in)
	require.NoError(t, err)

	var got []codec.Frame
	for _, b := range wire {
		frames, err := c.Feed([]byte{b})
		require.NoError(t, err)
		got = append(got, frames...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, in, got[0])
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

func TestCodec_FrameTooLarge(t *testing.T) {
	c := New()
	oversized := make([]byte, 4)
	// Declare a length far beyond MaxFrameSize in the 4-byte LE prefix.
	oversized[0], oversized[1], oversized[2], oversized[3] = 0xff, 0xff, 0xff, 0x7f

	_, err := c.Feed(oversized)
	assert.Equal(t, rpcerrors.FrameTooLarge, err)
}
