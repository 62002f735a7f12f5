// Package capture implements the C8 capture file: a flat, append-only
// binary log of every frame that crossed the proxy, written under an
// advisory lock so two proxy instances never race on the same directory.
// The lock is the ecosystem counterpart of the teacher's own datadir lock
// (node.go's use of gofrs/flock to guard a single instance per data
// directory) — that file isn't part of this retrieval, but the concern
// (one writer per directory) is identical, so the same library fits.
package capture

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/lacrosse-labs/mcproxy/internal/proto"
)

// recordHeaderSize is direction(4) + seconds(4) + microseconds(4) + length(4),
// all big-endian (SPEC_FULL.md §6).
const recordHeaderSize = 16

// Writer appends frame records to a single capture file for the lifetime of
// one session.
type Writer struct {
	file *os.File
	lock *flock.Flock
}

// Open acquires the directory lock and creates a fresh capture file named
// after startedAt under dir.
func Open(dir string, startedAt time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: create dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, ".mcproxy.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("capture: acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("capture: directory %s is locked by another instance", dir)
	}
	name := fmt.Sprintf("%s.mcs", startedAt.UTC().Format("20060102_150405"))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("capture: create file: %w", err)
	}
	return &Writer{file: f, lock: lock}, nil
}

// WriteFrame appends one record: a big-endian u32 direction flag (0 = S->C,
// 1 = C->S), the capture timestamp as big-endian u32 seconds and
// microseconds, a big-endian u32 payload length, then the raw payload bytes
// (post-decompression, pre-decryption on the read side, per SPEC_FULL.md
// §4.8/§6).
func (w *Writer) WriteFrame(dir proto.Direction, at time.Time, payload []byte) error {
	var hdr [recordHeaderSize]byte
	if dir == proto.ClientToServer {
		binary.BigEndian.PutUint32(hdr[0:4], 1)
	}
	binary.BigEndian.PutUint32(hdr[4:8], uint32(at.Unix()))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(at.Nanosecond()/1000))
	binary.BigEndian.PutUint32(hdr[12:16], uint32(len(payload)))
	if _, err := w.file.Write(hdr[:]); err != nil {
		return fmt.Errorf("capture: write header: %w", err)
	}
	if _, err := w.file.Write(payload); err != nil {
		return fmt.Errorf("capture: write payload: %w", err)
	}
	return nil
}

// Close flushes and closes the capture file and releases the directory
// lock.
func (w *Writer) Close() error {
	closeErr := w.file.Close()
	if err := w.lock.Unlock(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}

// Record is a single decoded capture-file entry, used by readers (the
// inspector tail and offline analysis tooling).
type Record struct {
	Direction proto.Direction
	Seconds   uint32
	Micros    uint32
	Payload   []byte
}

// ReadRecord parses one record from the head of buf, mirroring WriteFrame's
// layout. It returns the record, the bytes consumed, and false if buf does
// not yet hold a complete record.
func ReadRecord(buf []byte) (rec Record, consumed int, ok bool) {
	if len(buf) < recordHeaderSize {
		return Record{}, 0, false
	}
	dir := proto.ServerToClient
	if binary.BigEndian.Uint32(buf[0:4]) == 1 {
		dir = proto.ClientToServer
	}
	seconds := binary.BigEndian.Uint32(buf[4:8])
	micros := binary.BigEndian.Uint32(buf[8:12])
	length := binary.BigEndian.Uint32(buf[12:16])
	total := recordHeaderSize + int(length)
	if len(buf) < total {
		return Record{}, 0, false
	}
	return Record{
		Direction: dir,
		Seconds:   seconds,
		Micros:    micros,
		Payload:   buf[recordHeaderSize:total],
	}, total, true
}
