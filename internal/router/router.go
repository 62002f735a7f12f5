// Package router implements the frame router (SPEC_FULL.md C7): PLAY-phase
// frames are handed to an external handler capability that may forward,
// reply, or originate frames, modeled as the teacher's p2p package models a
// registered Protocol handle — a narrow capability the transport hands off
// to, rather than a type hierarchy.
package router

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"

	"github.com/lacrosse-labs/mcproxy/internal/proto"
)

// Frame is a decoded PLAY-phase frame descriptor handed to a Handler.
type Frame struct {
	Direction proto.Direction
	Type      int32
	Payload   []byte // opaque, type-specific payload, not including the type varint
	Raw       []byte // the original encoded bytes (type varint + payload), unmodified
	Modified  bool   // true if Payload was changed by the handler after receipt
}

// Encoder re-encodes a Frame whose Payload has been modified. It must
// produce the full payload including the leading type varint.
type Encoder func(f Frame) ([]byte, error)

// Handler is the external capability the frame router depends on
// (SPEC_FULL.md §4.7, §9 "External handler as capability"). Given a decoded
// frame, it appends zero or more frames to forward (sent to the peer
// opposite the arrival side) and reply (sent back to the arrival side).
type Handler interface {
	HandlePacket(f Frame) (forward []Frame, reply []Frame)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(f Frame) (forward []Frame, reply []Frame)

// HandlePacket implements Handler.
func (fn HandlerFunc) HandlePacket(f Frame) (forward []Frame, reply []Frame) {
	return fn(f)
}

// Identity is the default no-op handler: every frame is forwarded to the
// opposite peer unmodified, with nothing replied. It lets the proxy run as
// a pure forwarder with zero registered packet types.
var Identity Handler = HandlerFunc(func(f Frame) ([]Frame, []Frame) {
	return []Frame{f}, nil
})

// Router drains a Handler's forward/reply queues into re-encoded bytes,
// enforcing the re-encode invariant: a frame with modified payload must
// have a registered Encoder for its type, or it is a fatal programming
// error (SPEC_FULL.md §4.7).
type Router struct {
	handler  Handler
	encoders map[int32]Encoder
	known    mapset.Set // type ids with a registered encoder, mirrored for O(1) membership checks
}

// New constructs a Router around handler. A nil handler defaults to
// Identity.
func New(handler Handler) *Router {
	if handler == nil {
		handler = Identity
	}
	return &Router{
		handler:  handler,
		encoders: make(map[int32]Encoder),
		known:    mapset.NewSet(),
	}
}

// RegisterEncoder associates an Encoder with a packet type id. Registering
// the same type twice replaces the previous encoder.
func (r *Router) RegisterEncoder(typ int32, enc Encoder) {
	r.encoders[typ] = enc
	r.known.Add(typ)
}

// Dispatch invokes the handler on f and returns the raw bytes (type varint
// included) to append to the forward-direction and reply-direction
// transmit buffers, in arrival order.
func (r *Router) Dispatch(f Frame) (forwardBytes [][]byte, replyBytes [][]byte, err error) {
	forward, reply := r.handler.HandlePacket(f)
	forwardBytes, err = r.encodeAll(forward)
	if err != nil {
		return nil, nil, err
	}
	replyBytes, err = r.encodeAll(reply)
	if err != nil {
		return nil, nil, err
	}
	return forwardBytes, replyBytes, nil
}

func (r *Router) encodeAll(frames []Frame) ([][]byte, error) {
	out := make([][]byte, 0, len(frames))
	for _, f := range frames {
		b, err := r.encodeOne(f)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *Router) encodeOne(f Frame) ([]byte, error) {
	if !f.Modified {
		if f.Raw != nil {
			return f.Raw, nil
		}
		// Originated frame with no raw encoding recorded: fall through to
		// the encoder path below, same as a modified frame.
	}
	if !r.known.Contains(f.Type) {
		return nil, fmt.Errorf("router: frame type %#x modified or originated with no registered encoder", f.Type)
	}
	enc := r.encoders[f.Type]
	return enc(f)
}
