// Package msgpackrpc implements the MessagePack-RPC wire codec: requests
// are self-delimiting MessagePack arrays of shape
// [0, msgid, method, params], responses [1, msgid, error, result], and
// notifications [2, method, params]. Unlike the native codec there is no
// length prefix — a MessagePack array already encodes its own extent,
// so Feed decodes directly off the accumulated byte buffer.
package msgpackrpc

import (
	"bytes"
	"errors"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/fluxorio/relay/pkg/codec"
	"github.com/fluxorio/relay/pkg/rpcerrors"
)

const (
	tagRequest  = 0
	tagResponse = 1
	tagNotify   = 2
)

// Codec implements codec.Codec over MessagePack-RPC. Not safe for
// concurrent use — one Codec per connection, driven only from the
// reactor goroutine.
type Codec struct {
	data []byte
}

// New returns a Codec with an empty accumulation buffer.
func New() *Codec {
	return &Codec{}
}

// countingReader tracks how many bytes the msgpack decoder actually
// consumed, so Feed can advance its buffer by exactly that amount
// instead of guessing.
type countingReader struct {
	r *bytes.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

// Feed decodes as many complete MessagePack-RPC messages as are present
// in the accumulated buffer. A decode failure due to insufficient bytes
// is not an error: it means the next message is still in flight.
func (c *Codec) Feed(data []byte) ([]codec.Frame, error) {
	c.data = append(c.data, data...)

	var frames []codec.Frame
	for len(c.data) > 0 {
		cr := &countingReader{r: bytes.NewReader(c.data)}
		dec := msgpack.NewDecoder(cr)

		var raw []interface{}
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return frames, rpcerrors.DecodeError
		}

		c.data = c.data[cr.n:]

		frame, err := rawToFrame(raw)
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// Encode serializes f as the appropriate MessagePack-RPC array.
func (c *Codec) Encode(f codec.Frame) ([]byte, error) {
	var raw []interface{}
	switch f.Kind {
	case codec.KindCall:
		raw = []interface{}{tagRequest, f.RequestID, f.Method, f.Params}
	case codec.KindNotify:
		raw = []interface{}{tagNotify, f.Method, f.Params}
	case codec.KindResponse:
		raw = []interface{}{tagResponse, f.RequestID, f.Err, f.Result}
	default:
		return nil, rpcerrors.DecodeError
	}
	return msgpack.Marshal(raw)
}

func rawToFrame(raw []interface{}) (codec.Frame, error) {
	if len(raw) == 0 {
		return codec.Frame{}, rpcerrors.DecodeError
	}
	tag, ok := toInt(raw[0])
	if !ok {
		return codec.Frame{}, rpcerrors.DecodeError
	}

	switch tag {
	case tagRequest:
		if len(raw) != 4 {
			return codec.Frame{}, rpcerrors.DecodeError
		}
		id, ok := toUint64(raw[1])
		if !ok {
			return codec.Frame{}, rpcerrors.DecodeError
		}
		method, _ := raw[2].(string)
		params, _ := raw[3].([]interface{})
		return codec.NewCallFrame(id, method, params), nil

	case tagResponse:
		if len(raw) != 4 {
			return codec.Frame{}, rpcerrors.DecodeError
		}
		id, ok := toUint64(raw[1])
		if !ok {
			return codec.Frame{}, rpcerrors.DecodeError
		}
		if raw[2] != nil {
			return codec.NewErrorFrame(id, raw[2]), nil
		}
		return codec.NewResultFrame(id, raw[3]), nil

	case tagNotify:
		if len(raw) != 3 {
			return codec.Frame{}, rpcerrors.DecodeError
		}
		method, _ := raw[1].(string)
		params, _ := raw[2].([]interface{})
		return codec.NewNotifyFrame(method, params), nil

	default:
		return codec.Frame{}, rpcerrors.DecodeError
	}
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

func toUint64(v interface{}) (uint64, bool) {
	n, ok := toInt(v)
	if !ok {
		return 0, false
	}
	return uint64(n), true
}
