// Package session defines the single mutable aggregate the proxy maintains
// per connection pair (SPEC_FULL.md §3), replacing the original
// implementation's process-wide `mitm` global with one value threaded
// explicitly through the pump, handshake and router (design note in
// SPEC_FULL.md §9, "Global mutable state").
package session

import (
	"crypto/rsa"
	"net"
	"time"

	"github.com/lacrosse-labs/mcproxy/internal/cryptoengine"
	"github.com/lacrosse-labs/mcproxy/internal/frame"
	"github.com/lacrosse-labs/mcproxy/internal/iobuf"
	"github.com/lacrosse-labs/mcproxy/internal/proto"
)

// ClientCrypto holds the key material the proxy uses to impersonate the
// real server to the real client.
type ClientCrypto struct {
	Keypair       *rsa.PrivateKey
	PublicKeyDER  []byte
	VerifyToken   []byte // generated by the proxy, sent to the client
	SharedKey     []byte // decrypted from the client's EncryptionResponse
	Streams       *cryptoengine.StreamPair
}

// ServerCrypto holds the key material the proxy uses to impersonate the
// real client to the real server.
type ServerCrypto struct {
	PublicKey    *rsa.PublicKey
	PublicKeyDER []byte
	VerifyToken  []byte // received verbatim from the real server
	SharedKey    []byte // generated by the proxy, sent to the server
	Streams      *cryptoengine.StreamPair
	ServerID     string
}

// Identity is the session data scraped from the intercepted HTTP join
// request (SPEC_FULL.md §3).
type Identity struct {
	AccessToken     string
	SelectedProfile string
	ServerID        string
}

// Session is the per-connection-pair mutable aggregate. It is created on
// client-accept and discarded (with all crypto material zeroed) on
// teardown; exactly one Session is ever live at a time (SPEC_FULL.md §1
// Non-goals: no multi-client concurrency).
type Session struct {
	Client net.Conn
	Server net.Conn

	UpstreamHost string // host:port of the real server, for the host-key cache

	Phase Phase

	Compression frame.Envelope // Threshold<0 disabled; monotonic once set (invariant 3)

	ClientCrypto ClientCrypto
	ServerCrypto ServerCrypto

	EncryptionPending bool // armed after EncryptionResponse is answered
	EncryptionActive  bool // monotonic false->true (invariant 1)

	Identity Identity

	ClientRX, ClientTX, ServerRX, ServerTX iobuf.Buffer

	StartedAt time.Time
}

// Phase is a thin alias kept local to session so callers need not import
// proto just to read a session's phase; it is proto.Phase under the hood.
type Phase = proto.Phase

// New creates a fresh Session for a newly accepted client connection already
// paired with a dialed upstream connection.
func New(client, server net.Conn, upstreamHost string) *Session {
	return &Session{
		Client:       client,
		Server:       server,
		UpstreamHost: upstreamHost,
		Phase:        proto.PhaseIdle,
		Compression:  frame.Envelope{Threshold: -1},
		StartedAt:    time.Now(),
	}
}

// ActivateEncryption initializes both AES-CFB8 stream pairs at the IV
// activation point (SPEC_FULL.md §4.4 "Activation rule") and flips
// EncryptionActive. It is a programming error to call this twice; callers
// must only do so from the pump's end-of-iteration check on
// EncryptionPending.
func (s *Session) ActivateEncryption() error {
	cs, err := cryptoengine.NewStreamPair(s.ClientCrypto.SharedKey)
	if err != nil {
		return err
	}
	ss, err := cryptoengine.NewStreamPair(s.ServerCrypto.SharedKey)
	if err != nil {
		return err
	}
	s.ClientCrypto.Streams = cs
	s.ServerCrypto.Streams = ss
	s.EncryptionActive = true
	s.EncryptionPending = false
	return nil
}

// Teardown releases all crypto material, closes both sockets, clears
// buffers and resets phase to IDLE (SPEC_FULL.md §3 "Lifecycles").
func (s *Session) Teardown() {
	if s.Client != nil {
		s.Client.Close()
	}
	if s.Server != nil {
		s.Server.Close()
	}
	zero(s.ClientCrypto.SharedKey)
	zero(s.ServerCrypto.SharedKey)
	zero(s.ClientCrypto.VerifyToken)
	zero(s.ServerCrypto.VerifyToken)
	s.ClientCrypto = ClientCrypto{}
	s.ServerCrypto = ServerCrypto{}
	s.ClientRX.Reset()
	s.ClientTX.Reset()
	s.ServerRX.Reset()
	s.ServerTX.Reset()
	s.Phase = proto.PhaseIdle
	s.EncryptionActive = false
	s.EncryptionPending = false
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
