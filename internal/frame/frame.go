// Package frame implements the length-prefixed framing and optional zlib
// compression envelope shared by both legs of a session. It mirrors the
// buffer-with-cursors approach the teacher's rlpxFrameRW uses for its own
// length-prefixed wire records, generalized to a varint length and an
// optional compression envelope instead of a fixed AEAD-sealed header.
package frame

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/lacrosse-labs/mcproxy/internal/wire"
)

// MaxFrameSize bounds a single decoded frame payload; larger frames are a
// fatal protocol error (spec §5).
const MaxFrameSize = 4 * 1024 * 1024

// ErrOversizeFrame is returned when a frame's declared length exceeds
// MaxFrameSize.
var ErrOversizeFrame = errors.New("frame: oversize frame")

// ErrIncomplete signals that buf does not yet hold a complete frame; the
// caller should wait for more bytes rather than treat this as fatal.
var ErrIncomplete = errors.New("frame: incomplete")

// Extract consumes a single length-prefixed frame from the head of buf.
// It returns the frame payload, the number of bytes consumed from buf, and
// an error. ErrIncomplete is returned (non-fatally) when buf holds a
// partial length varint or an incomplete payload.
func Extract(buf []byte) (payload []byte, consumed int, err error) {
	length, n, err := wire.ReadVarint(buf)
	if err != nil {
		if err == wire.ErrShortBuffer {
			return nil, 0, ErrIncomplete
		}
		return nil, 0, err
	}
	if length < 0 || int(length) > MaxFrameSize {
		return nil, 0, ErrOversizeFrame
	}
	total := n + int(length)
	if total > len(buf) {
		return nil, 0, ErrIncomplete
	}
	return buf[n:total], total, nil
}

// Append frames payload (prefixing it with its varint length) onto dst.
func Append(dst, payload []byte) []byte {
	dst = wire.WriteVarint(dst, int32(len(payload)))
	return append(dst, payload...)
}

// Envelope implements the compression envelope described in SPEC_FULL.md
// §4.2: when threshold is negative, compression is disabled and the frame
// passes through unchanged; otherwise a varint(U) prefix is added, U=0 for
// raw bodies (below threshold, or empty) and U=uncompressed-length for zlib
// bodies.
type Envelope struct {
	// Threshold is the compression threshold. Negative disables
	// compression. It must only ever be set once it has gone non-negative
	// (spec invariant 3: monotonic, observed on the next frame).
	Threshold int
}

// Wrap produces the wire payload for a single outgoing frame given the
// current threshold.
func (e Envelope) Wrap(frame []byte) ([]byte, error) {
	if e.Threshold < 0 {
		return frame, nil
	}
	// An empty frame always takes the raw form: U=0 cannot announce a
	// zero-length compressed body.
	if len(frame) < e.Threshold || len(frame) == 0 {
		out := wire.WriteVarint(nil, 0)
		return append(out, frame...), nil
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(frame); err != nil {
		return nil, fmt.Errorf("frame: zlib compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("frame: zlib compress: %w", err)
	}
	out := wire.WriteVarint(nil, int32(len(frame)))
	return append(out, buf.Bytes()...), nil
}

// Unwrap reverses Wrap, returning the original frame payload.
func (e Envelope) Unwrap(body []byte) ([]byte, error) {
	if e.Threshold < 0 {
		return body, nil
	}
	uncompressedLen, n, err := wire.ReadVarint(body)
	if err != nil {
		return nil, fmt.Errorf("frame: envelope header: %w", err)
	}
	rest := body[n:]
	if uncompressedLen == 0 {
		return rest, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return nil, fmt.Errorf("frame: zlib decompress: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, int64(uncompressedLen)+1))
	if err != nil {
		return nil, fmt.Errorf("frame: zlib decompress: %w", err)
	}
	if len(out) != int(uncompressedLen) {
		return nil, fmt.Errorf("frame: decompressed length mismatch: got %d, want %d", len(out), uncompressedLen)
	}
	return out, nil
}
