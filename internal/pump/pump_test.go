package pump

import (
	"net"
	"testing"
	"time"

	"github.com/lacrosse-labs/mcproxy/internal/frame"
	"github.com/lacrosse-labs/mcproxy/internal/handshake"
	"github.com/lacrosse-labs/mcproxy/internal/proto"
	"github.com/lacrosse-labs/mcproxy/internal/router"
	"github.com/lacrosse-labs/mcproxy/internal/session"
)

// loopback returns two connected TCP pipes usable with SyscallConn, which
// net.Pipe's in-memory implementation does not support.
func loopback(t *testing.T) (a, b net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	select {
	case c := <-acceptCh:
		return client, c
	case err := <-errCh:
		t.Fatalf("accept: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for accept")
	}
	return nil, nil
}

func TestPumpForwardsPlayFrameUnmodified(t *testing.T) {
	clientSide, proxyToClient := loopback(t)
	serverSide, proxyToServer := loopback(t)
	defer clientSide.Close()
	defer serverSide.Close()

	s := session.New(proxyToClient, proxyToServer, "upstream.example.com:25565")
	s.Phase = session.Phase(proto.PhasePlay)

	hm := handshake.New(nil, nil, nil)
	r := router.New(nil) // identity: forward unmodified to the opposite peer

	p := New(s, hm, r, nil)
	done := make(chan error, 1)
	go func() { done <- p.Run() }()

	payload := []byte{0x10, 'h', 'i'} // type 0x10, body "hi"
	if _, err := clientSide.Write(frame.Append(nil, payload)); err != nil {
		t.Fatalf("client write: %v", err)
	}

	serverSide.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 64)
	n, err := serverSide.Read(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	got, consumed, err := frame.Extract(buf[:n])
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if consumed != n {
		t.Fatalf("consumed = %d, want %d", consumed, n)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}

	clientSide.Close()
	serverSide.Close()
	<-done
}
