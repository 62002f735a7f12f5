package capture

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lacrosse-labs/mcproxy/internal/proto"
)

func binaryBE32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func TestWriteAndReadRecordRoundtrip(t *testing.T) {
	dir := t.TempDir()
	at := time.Unix(1700000000, 123000)

	w, err := Open(dir, at)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	payload := []byte("hello frame")
	if err := w.WriteFrame(proto.ClientToServer, at, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var capFile string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".mcs" {
			capFile = filepath.Join(dir, e.Name())
		}
	}
	if capFile == "" {
		t.Fatalf("no .mcs file found in %s", dir)
	}

	data, err := os.ReadFile(capFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	rec, consumed, ok := ReadRecord(data)
	if !ok {
		t.Fatalf("ReadRecord: incomplete")
	}
	if consumed != len(data) {
		t.Fatalf("consumed = %d, want %d", consumed, len(data))
	}
	if rec.Direction != proto.ClientToServer {
		t.Fatalf("direction = %v, want C->S", rec.Direction)
	}
	if !bytes.Equal(rec.Payload, payload) {
		t.Fatalf("payload = %q, want %q", rec.Payload, payload)
	}

	// Pin the literal 16-byte header layout: u32 direction, u32 sec, u32
	// usec, u32 length, all big-endian.
	if got := binaryBE32(data[0:4]); got != 1 {
		t.Fatalf("direction field = %d, want 1", got)
	}
	if got := binaryBE32(data[4:8]); got != uint32(at.Unix()) {
		t.Fatalf("seconds field = %d, want %d", got, at.Unix())
	}
	if got := binaryBE32(data[8:12]); got != uint32(at.Nanosecond()/1000) {
		t.Fatalf("microseconds field = %d, want %d", got, at.Nanosecond()/1000)
	}
	if got := binaryBE32(data[12:16]); got != uint32(len(payload)) {
		t.Fatalf("length field = %d, want %d", got, len(payload))
	}
	if len(data) != recordHeaderSize+len(payload) {
		t.Fatalf("total record length = %d, want %d", len(data), recordHeaderSize+len(payload))
	}
}

func TestOpenLocksDirectoryAgainstSecondWriter(t *testing.T) {
	dir := t.TempDir()
	at := time.Now()

	w1, err := Open(dir, at)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	defer w1.Close()

	if _, err := Open(dir, at.Add(time.Millisecond)); err == nil {
		t.Fatalf("expected second Open on the same directory to fail while locked")
	}
}
