// Package nativecodec implements the compact native-marshal wire codec:
// a 4-byte little-endian length prefix followed by a gob-encoded tuple.
// gob is this module's language-native serialization, standing in for
// the source's use of Python's marshal module — both are "whatever the
// runtime's own object graph encodes to," not a portable interchange
// format.
package nativecodec

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/fluxorio/relay/pkg/codec"
	"github.com/fluxorio/relay/pkg/rpcerrors"
)

// MaxFrameSize is the safety cap spec.md §4.2 suggests: a declared
// length beyond this fails the connection rather than allocating an
// attacker-controlled buffer.
const MaxFrameSize = 64 << 20 // 64 MiB

const lengthPrefixSize = 4

func init() {
	// gob requires every concrete type that crosses an interface{}
	// boundary to be registered once, up front.
	gob.Register([]interface{}{})
	gob.Register(map[string]interface{}{})
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(string(""))
	gob.Register(bool(false))
}

// wireTuple mirrors the spec's (is_result, request_id, a, b) shape as a
// gob-friendly struct. hasID distinguishes a notify (no id) from a call
// or response (id present).
type wireTuple struct {
	IsResult  bool
	HasID     bool
	RequestID uint64
	Method    string
	Params    []interface{}
	Result    interface{}
	Err       interface{}
}

// Codec implements codec.Codec over the native marshal wire format. It
// is not safe for concurrent use — one Codec per connection, driven
// only from the reactor goroutine.
type Codec struct {
	buf bytes.Buffer
}

// New returns a Codec with an empty accumulation buffer.
func New() *Codec {
	return &Codec{}
}

// Feed appends data to the internal buffer and extracts every frame
// that has become complete.
func (c *Codec) Feed(data []byte) ([]codec.Frame, error) {
	c.buf.Write(data)

	var frames []codec.Frame
	for {
		available := c.buf.Bytes()
		if len(available) < lengthPrefixSize {
			break
		}

		n := binary.LittleEndian.Uint32(available[:lengthPrefixSize])
		if n > MaxFrameSize {
			return frames, rpcerrors.FrameTooLarge
		}
		total := lengthPrefixSize + int(n)
		if len(available) < total {
			break
		}

		payload := available[lengthPrefixSize:total]
		var tuple wireTuple
		dec := gob.NewDecoder(bytes.NewReader(payload))
		if err := dec.Decode(&tuple); err != nil {
			return frames, rpcerrors.DecodeError
		}

		frames = append(frames, tupleToFrame(tuple))

		// Compact the consumed bytes.
		remaining := make([]byte, len(available)-total)
		copy(remaining, available[total:])
		c.buf.Reset()
		c.buf.Write(remaining)
	}
	return frames, nil
}

// Encode serializes f as a length-prefixed gob tuple.
func (c *Codec) Encode(f codec.Frame) ([]byte, error) {
	tuple := frameToTuple(f)

	var payload bytes.Buffer
	enc := gob.NewEncoder(&payload)
	if err := enc.Encode(tuple); err != nil {
		return nil, err
	}
	if payload.Len() > MaxFrameSize {
		return nil, rpcerrors.FrameTooLarge
	}

	out := make([]byte, lengthPrefixSize+payload.Len())
	binary.LittleEndian.PutUint32(out[:lengthPrefixSize], uint32(payload.Len()))
	copy(out[lengthPrefixSize:], payload.Bytes())
	return out, nil
}

func frameToTuple(f codec.Frame) wireTuple {
	switch f.Kind {
	case codec.KindCall:
		return wireTuple{IsResult: false, HasID: true, RequestID: f.RequestID, Method: f.Method, Params: f.Params}
	case codec.KindNotify:
		return wireTuple{IsResult: false, HasID: false, Method: f.Method, Params: f.Params}
	default: // KindResponse
		return wireTuple{IsResult: true, HasID: true, RequestID: f.RequestID, Result: f.Result, Err: f.Err}
	}
}

func tupleToFrame(t wireTuple) codec.Frame {
	if t.IsResult {
		if t.Err != nil {
			return codec.NewErrorFrame(t.RequestID, t.Err)
		}
		return codec.NewResultFrame(t.RequestID, t.Result)
	}
	if t.HasID {
		return codec.NewCallFrame(t.RequestID, t.Method, t.Params)
	}
	return codec.NewNotifyFrame(t.Method, t.Params)
}
