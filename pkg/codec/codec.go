// Package codec defines the wire-neutral Frame shape shared by both
// protocol codecs (pkg/codec/nativecodec and pkg/codec/msgpackrpc), so
// the dispatcher, proxy, and RPC protocol never need to know which
// codec decoded a message.
package codec

// FrameKind distinguishes the three message shapes the RPC protocol
// exchanges.
type FrameKind int

const (
	// KindCall is a request expecting a response.
	KindCall FrameKind = iota
	// KindNotify is a one-way request; no response is ever sent.
	KindNotify
	// KindResponse answers a prior KindCall by RequestID.
	KindResponse
)

func (k FrameKind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindNotify:
		return "notify"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Frame is one decoded message, independent of wire representation.
type Frame struct {
	Kind FrameKind

	// RequestID is meaningful for KindCall and KindResponse. Notify
	// frames never carry one.
	RequestID uint64

	// Method and Params are populated for KindCall and KindNotify.
	Method string
	Params []interface{}

	// Result and Err are populated for KindResponse. Err == nil means
	// the call succeeded; Result is nil whenever Err is set.
	Result interface{}
	Err    interface{}
}

// NewCallFrame builds a request frame awaiting a response.
func NewCallFrame(requestID uint64, method string, params []interface{}) Frame {
	return Frame{Kind: KindCall, RequestID: requestID, Method: method, Params: params}
}

// NewNotifyFrame builds a one-way request frame.
func NewNotifyFrame(method string, params []interface{}) Frame {
	return Frame{Kind: KindNotify, Method: method, Params: params}
}

// NewResultFrame builds a successful response frame.
func NewResultFrame(requestID uint64, result interface{}) Frame {
	return Frame{Kind: KindResponse, RequestID: requestID, Result: result}
}

// NewErrorFrame builds a failed response frame.
func NewErrorFrame(requestID uint64, err interface{}) Frame {
	return Frame{Kind: KindResponse, RequestID: requestID, Err: err}
}

// Codec turns a byte stream into discrete Frames and back. Feed may be
// called repeatedly as more bytes arrive; it returns every frame that
// became complete since the last call and consumes those bytes from its
// internal buffer.
type Codec interface {
	Feed(data []byte) ([]Frame, error)
	Encode(f Frame) ([]byte, error)
}
