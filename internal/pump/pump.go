// Package pump implements the C6 connection pump: the single-threaded,
// cooperative event loop that drives one session's two legs. It uses
// golang.org/x/sys/unix.Poll on the raw socket descriptors, the direct Go
// counterpart of the original implementation's poll(2)-based loop (see
// original_source/mcproxy.c's main loop), rather than leaning on goroutines
// per connection the way most Go network code would.
package pump

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lacrosse-labs/mcproxy/internal/frame"
	"github.com/lacrosse-labs/mcproxy/internal/handshake"
	"github.com/lacrosse-labs/mcproxy/internal/iobuf"
	"github.com/lacrosse-labs/mcproxy/internal/proto"
	"github.com/lacrosse-labs/mcproxy/internal/rlog"
	"github.com/lacrosse-labs/mcproxy/internal/router"
	"github.com/lacrosse-labs/mcproxy/internal/session"
	"github.com/lacrosse-labs/mcproxy/internal/wire"
)

// pollTimeoutMillis mirrors the original implementation's 1000ms poll
// timeout, bounding how long SIGINT can take to be observed between
// cycles.
const pollTimeoutMillis = 1000

// minVarintLookahead is the conservative byte count the frame-extraction
// loop waits for before giving up on a partially-arrived length varint
// (SPEC_FULL.md §4.6).
const minVarintLookahead = 129

// Recorder receives each frame's post-decompression, pre-decryption-on-read
// bytes for the capture file. May be nil.
type Recorder interface {
	WriteFrame(dir proto.Direction, at time.Time, payload []byte) error
}

// Tail receives the same records as Recorder but never returns an error
// (the inspector hub drops frames for slow clients instead of failing).
// May be nil.
type Tail interface {
	Publish(dir proto.Direction, at time.Time, payload []byte)
}

// MetricsSink receives the counters the pump produces as it runs. May be
// nil.
type MetricsSink interface {
	FrameRelayed(dir proto.Direction, n int)
	CompressionSaved(n int)
	HandshakeSucceeded()
	HandshakeFailed()
}

// Pump drives one session to completion.
type Pump struct {
	Session   *session.Session
	Handshake *handshake.Machine
	Router    *router.Router
	Capture   Recorder
	Tail      Tail
	Metrics   MetricsSink
	Log       rlog.Logger

	// SigInt is polled between cycles; when it reports true the loop
	// flushes and returns cleanly instead of continuing.
	SigInt func() bool
}

// New builds a Pump. A nil router defaults to an identity forwarder.
func New(s *session.Session, hm *handshake.Machine, r *router.Router, logger rlog.Logger) *Pump {
	if r == nil {
		r = router.New(nil)
	}
	if logger == nil {
		logger = rlog.Discard()
	}
	return &Pump{Session: s, Handshake: hm, Router: r, Log: logger, SigInt: func() bool { return false }}
}

type socketDesc struct {
	conn net.Conn
	fd   int
	dir  proto.Direction // direction of data ARRIVING on this socket
}

var errPeerClosed = errors.New("pump: peer closed")

// Run executes the event loop until EOF on either leg, a fatal protocol
// error, or SigInt reports true. It always tears down the session before
// returning.
func (p *Pump) Run() error {
	defer p.Session.Teardown()

	clientFD, err := rawFD(p.Session.Client)
	if err != nil {
		return fmt.Errorf("pump: client socket: %w", err)
	}
	serverFD, err := rawFD(p.Session.Server)
	if err != nil {
		return fmt.Errorf("pump: server socket: %w", err)
	}

	sockets := []socketDesc{
		{conn: p.Session.Client, fd: clientFD, dir: proto.ClientToServer},
		{conn: p.Session.Server, fd: serverFD, dir: proto.ServerToClient},
	}

	for {
		if p.SigInt() {
			p.Log.Info("session interrupted, flushing and tearing down")
			return nil
		}

		pfds := make([]unix.PollFd, len(sockets))
		for i, s := range sockets {
			pfds[i] = unix.PollFd{Fd: int32(s.fd), Events: unix.POLLIN}
		}

		n, err := unix.Poll(pfds, pollTimeoutMillis)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("pump: poll: %w", err)
		}
		if n > 0 {
			for i, pfd := range pfds {
				if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
					continue
				}
				if err := p.onReadable(sockets[i]); err != nil {
					if errors.Is(err, errPeerClosed) {
						p.Log.Info("peer closed connection", "direction", sockets[i].dir.String())
						return nil
					}
					return err
				}
			}
		}

		if err := p.flushPendingWrites(); err != nil {
			return err
		}

		if p.Session.EncryptionPending {
			if err := p.Session.ActivateEncryption(); err != nil {
				return fmt.Errorf("pump: activate encryption: %w", err)
			}
			p.Log.Info("encryption activated")
		}
	}
}

// onReadable reads whatever is available on s, decrypts it in place
// exactly once (the CFB8 cursor only ever sees each wire byte a single
// time, in arrival order), appends the plaintext to the socket's receive
// buffer, and extracts every complete frame now available.
func (p *Pump) onReadable(s socketDesc) error {
	buf := make([]byte, 64*1024)
	n, err := s.conn.Read(buf)
	if n == 0 && err != nil {
		return errPeerClosed
	}
	chunk := buf[:n]
	if p.Session.EncryptionActive {
		p.readStream(s.dir).Decrypt(chunk, chunk)
	}

	rx := p.rxBuffer(s.dir)
	rx.Append(chunk)

	for {
		unread := rx.Unread()
		if len(unread) == 0 {
			break
		}
		if unread[0]&0x80 != 0 && len(unread) < minVarintLookahead {
			break
		}
		payload, consumed, err := frame.Extract(unread)
		if err == frame.ErrIncomplete {
			break
		}
		if err != nil {
			return fmt.Errorf("pump: frame extraction: %w", err)
		}
		rx.Advance(consumed)

		body, err := p.Session.Compression.Unwrap(payload)
		if err != nil {
			return fmt.Errorf("pump: envelope: %w", err)
		}
		if err := p.dispatch(s.dir, body); err != nil {
			return err
		}
	}
	rx.Compact()
	return nil
}

// readStream returns the cipher context that decrypts bytes arriving in
// direction dir: the client's own stream for client->server traffic, the
// server's own stream for server->client traffic.
func (p *Pump) readStream(dir proto.Direction) streamCipher {
	if dir == proto.ClientToServer {
		return p.Session.ClientCrypto.Streams
	}
	return p.Session.ServerCrypto.Streams
}

// writeStream returns the cipher context that encrypts bytes about to be
// sent in direction dir.
func (p *Pump) writeStream(dir proto.Direction) streamCipher {
	if dir == proto.ClientToServer {
		return p.Session.ServerCrypto.Streams
	}
	return p.Session.ClientCrypto.Streams
}

// streamCipher is the narrow interface *cryptoengine.StreamPair satisfies.
type streamCipher interface {
	Encrypt(dst, src []byte)
	Decrypt(dst, src []byte)
}

func (p *Pump) rxBuffer(dir proto.Direction) *iobuf.Buffer {
	if dir == proto.ClientToServer {
		return &p.Session.ClientRX
	}
	return &p.Session.ServerRX
}

func (p *Pump) txBuffer(dir proto.Direction) *iobuf.Buffer {
	if dir == proto.ClientToServer {
		return &p.Session.ServerTX
	}
	return &p.Session.ClientTX
}

func (p *Pump) dispatch(dir proto.Direction, payload []byte) error {
	now := time.Now()
	if p.Capture != nil {
		if err := p.Capture.WriteFrame(dir, now, payload); err != nil {
			p.Log.Warn("capture write failed, disabling capture for remainder of session", "err", err)
			p.Capture = nil
		}
	}
	if p.Tail != nil {
		p.Tail.Publish(dir, now, payload)
	}
	if p.Metrics != nil {
		p.Metrics.FrameRelayed(dir, len(payload))
	}

	typ, n, err := wire.ReadVarint(payload)
	if err != nil {
		return fmt.Errorf("pump: packet type: %w", err)
	}
	body := payload[n:]

	phaseBefore := p.Session.Phase
	compressionBefore := p.Session.Compression

	var outcome handshake.Outcome
	switch dir {
	case proto.ClientToServer:
		outcome, err = p.Handshake.HandleClientToServer(p.Session, typ, body)
	default:
		outcome, err = p.Handshake.HandleServerToClient(p.Session, typ, body)
	}
	if err != nil {
		if p.Metrics != nil {
			p.Metrics.HandshakeFailed()
		}
		return fmt.Errorf("pump: handshake: %w", err)
	}
	if p.Metrics != nil && phaseBefore != session.Phase(proto.PhasePlay) && p.Session.Phase == session.Phase(proto.PhasePlay) {
		p.Metrics.HandshakeSucceeded()
	}

	if len(outcome.ToClient) != 0 || len(outcome.ToServer) != 0 {
		for _, b := range outcome.ToClient {
			p.enqueue(proto.ServerToClient, b)
		}
		for _, b := range outcome.ToServer {
			p.enqueue(proto.ClientToServer, b)
		}
		return nil
	}

	if p.Session.Phase == session.Phase(proto.PhasePlay) {
		rf := router.Frame{Direction: dir, Type: typ, Payload: body, Raw: payload}
		fwdBytes, replyBytes, err := p.Router.Dispatch(rf)
		if err != nil {
			return fmt.Errorf("pump: router: %w", err)
		}
		for _, b := range fwdBytes {
			p.enqueue(dir.Opposite(), b)
		}
		for _, b := range replyBytes {
			p.enqueue(dir, b)
		}
		return nil
	}

	// Handshake-irrelevant LOGIN/STATUS frame: pass through unmodified. A
	// SetCompression frame is itself sent under the threshold in force when
	// it arrived; the new threshold applies from the next frame on.
	compressionAfter := p.Session.Compression
	p.Session.Compression = compressionBefore
	p.enqueue(dir.Opposite(), payload)
	p.Session.Compression = compressionAfter
	return nil
}

// enqueue wraps payload in the compression envelope, frames it, encrypts
// it in place if encryption is active at the moment of enqueueing (not at
// flush time, since the CFB8 cursor must see each wire byte exactly once),
// and appends the result to the transmit buffer for the socket data
// travels to in direction dir.
func (p *Pump) enqueue(dir proto.Direction, payload []byte) {
	wrapped, err := p.Session.Compression.Wrap(payload)
	if err != nil {
		p.Log.Error("compression wrap failed", "err", err)
		return
	}
	if p.Metrics != nil {
		p.Metrics.CompressionSaved(len(payload) - len(wrapped))
	}
	framed := frame.Append(nil, wrapped)
	if p.Session.EncryptionActive {
		p.writeStream(dir).Encrypt(framed, framed)
	}
	p.txBuffer(dir).Append(framed)
}

// flushPendingWrites drains both transmit buffers, writing what the kernel
// will accept without blocking and retaining any unwritten remainder for
// the next cycle.
func (p *Pump) flushPendingWrites() error {
	if err := p.flushOne(p.Session.Client, p.txBuffer(proto.ServerToClient)); err != nil {
		return err
	}
	if err := p.flushOne(p.Session.Server, p.txBuffer(proto.ClientToServer)); err != nil {
		return err
	}
	return nil
}

func (p *Pump) flushOne(conn net.Conn, tx *iobuf.Buffer) error {
	unread := tx.Unread()
	if len(unread) == 0 {
		return nil
	}
	n, err := nonblockingWrite(conn, unread)
	if n > 0 {
		tx.Advance(n)
		tx.Compact()
	}
	if err != nil && !errors.Is(err, syscall.EAGAIN) {
		return fmt.Errorf("pump: write: %w", err)
	}
	return nil
}

// rawFD extracts the OS file descriptor backing conn so it can be handed to
// unix.Poll directly, the same indirection the original implementation
// avoids by working with raw descriptors throughout.
func rawFD(conn net.Conn) (int, error) {
	sc, ok := conn.(interface {
		SyscallConn() (syscall.RawConn, error)
	})
	if !ok {
		return -1, fmt.Errorf("pump: connection type %T has no raw descriptor", conn)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	if ctrlErr := rc.Control(func(f uintptr) { fd = int(f) }); ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}

// nonblockingWrite performs a single non-blocking write attempt of buf to
// conn's raw descriptor, returning the number of bytes actually accepted by
// the kernel (which may be less than len(buf)).
func nonblockingWrite(conn net.Conn, buf []byte) (int, error) {
	sc, ok := conn.(interface {
		SyscallConn() (syscall.RawConn, error)
	})
	if !ok {
		return conn.Write(buf)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var written int
	var writeErr error
	err = rc.Write(func(fd uintptr) bool {
		written, writeErr = syscall.Write(int(fd), buf)
		if writeErr == syscall.EAGAIN {
			return false
		}
		return true
	})
	if err != nil {
		return written, err
	}
	return written, writeErr
}
