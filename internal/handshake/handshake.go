// Package handshake implements the C4 state machine: the IDLE/STATUS/LOGIN
// transitions and the dual encryption-request/response interception that
// lets the proxy sit in the middle of both RSA handshakes at once.
package handshake

import (
	"bytes"
	"fmt"

	"github.com/lacrosse-labs/mcproxy/internal/cryptoengine"
	"github.com/lacrosse-labs/mcproxy/internal/proto"
	"github.com/lacrosse-labs/mcproxy/internal/rlog"
	"github.com/lacrosse-labs/mcproxy/internal/session"
)

// HostKeyCache is the narrow capability C13 exposes to the handshake: recall
// and record the last-seen DER public key for an upstream host. A nil
// HostKeyCache is valid and simply disables the advisory check.
type HostKeyCache interface {
	Lookup(host string) ([]byte, bool)
	Record(host string, der []byte) error
}

// SessionJoiner is the narrow capability C5 exposes to the handshake: having
// decrypted the client's AES key and computed the sessionId hash, ask the
// real session server to authorize the join. A nil SessionJoiner skips the
// POST (useful for tests and for --no-auth-bridge style offline testing).
type SessionJoiner interface {
	Join(accessToken, selectedProfile, sessionID string) error
}

// ErrTokenMismatch is returned when the client's EncryptionResponse carries a
// verify token that does not match the one the proxy generated; the caller
// must treat this as fatal and tear the session down (spec invariant: no
// retry).
var ErrTokenMismatch = fmt.Errorf("handshake: verify token mismatch")

// Machine drives the handshake transitions for a single session, given its
// optional collaborators.
type Machine struct {
	HostKeys HostKeyCache
	Joiner   SessionJoiner
	Log      rlog.Logger
}

// New builds a Machine. A nil logger falls back to a discard logger so
// callers never need a nil check.
func New(hostKeys HostKeyCache, joiner SessionJoiner, logger rlog.Logger) *Machine {
	if logger == nil {
		logger = rlog.Discard()
	}
	return &Machine{HostKeys: hostKeys, Joiner: joiner, Log: logger}
}

// Outcome carries the frames the caller (the connection pump) must enqueue
// as a result of handling one handshake-relevant frame, plus a fatal error
// if the session must be torn down.
type Outcome struct {
	ToClient [][]byte // raw bytes (type prefix included) to append to the client TX buffer
	ToServer [][]byte // raw bytes to append to the server TX buffer
}

// HandleClientToServer processes one decoded C->S frame during IDLE or LOGIN
// phase. typ is the packet type id; payload is the packet body after the
// type varint.
func (m *Machine) HandleClientToServer(s *session.Session, typ int32, payload []byte) (Outcome, error) {
	switch s.Phase {
	case session.Phase(proto.PhaseIdle):
		if typ != proto.TypeHandshake {
			return Outcome{}, fmt.Errorf("handshake: unexpected packet type %#x in IDLE", typ)
		}
		hs, err := proto.DecodeHandshake(payload)
		if err != nil {
			return Outcome{}, err
		}
		switch hs.NextState {
		case proto.NextStateStatus:
			s.Phase = session.Phase(proto.PhaseStatus)
		case proto.NextStateLogin:
			s.Phase = session.Phase(proto.PhaseLogin)
		default:
			return Outcome{}, fmt.Errorf("handshake: unknown next_state %d", hs.NextState)
		}
		return Outcome{}, nil

	case session.Phase(proto.PhaseLogin):
		if typ != proto.TypeEncryptionResponse {
			return Outcome{}, nil
		}
		return m.handleEncryptionResponse(s, payload)

	default:
		return Outcome{}, nil
	}
}

// HandleServerToClient processes one decoded S->C frame during LOGIN phase.
func (m *Machine) HandleServerToClient(s *session.Session, typ int32, payload []byte) (Outcome, error) {
	if s.Phase != session.Phase(proto.PhaseLogin) {
		return Outcome{}, nil
	}
	switch typ {
	case proto.TypeEncryptionRequest:
		return m.handleEncryptionRequest(s, payload)
	case proto.TypeSetCompression:
		threshold, err := proto.DecodeSetCompression(payload)
		if err != nil {
			return Outcome{}, err
		}
		s.Compression.Threshold = int(threshold)
		return Outcome{}, nil
	case proto.TypeLoginSuccess:
		s.Phase = session.Phase(proto.PhasePlay)
		return Outcome{}, nil
	default:
		return Outcome{}, nil
	}
}

func (m *Machine) handleEncryptionRequest(s *session.Session, payload []byte) (Outcome, error) {
	req, err := proto.DecodeEncryptionRequest(payload)
	if err != nil {
		return Outcome{}, err
	}
	pub, err := cryptoengine.DecodePublicKeyDER(req.PublicKey)
	if err != nil {
		return Outcome{}, fmt.Errorf("handshake: invalid server public key: %w", err)
	}

	if m.HostKeys != nil {
		if prev, ok := m.HostKeys.Lookup(s.UpstreamHost); ok && !bytes.Equal(prev, req.PublicKey) {
			m.Log.Warn("upstream host key changed since last session", "host", s.UpstreamHost)
		}
	}

	s.ServerCrypto.ServerID = req.ServerID
	s.ServerCrypto.PublicKey = pub
	s.ServerCrypto.PublicKeyDER = req.PublicKey
	s.ServerCrypto.VerifyToken = req.VerifyToken

	serverKey, err := cryptoengine.RandomBytes(16)
	if err != nil {
		return Outcome{}, err
	}
	s.ServerCrypto.SharedKey = serverKey

	clientKeypair, err := cryptoengine.GenerateKeypair()
	if err != nil {
		return Outcome{}, err
	}
	clientDER, err := cryptoengine.EncodePublicKeyDER(&clientKeypair.PublicKey)
	if err != nil {
		return Outcome{}, err
	}
	clientToken, err := cryptoengine.RandomBytes(4)
	if err != nil {
		return Outcome{}, err
	}
	s.ClientCrypto.Keypair = clientKeypair
	s.ClientCrypto.PublicKeyDER = clientDER
	s.ClientCrypto.VerifyToken = clientToken

	synth := proto.EncodeEncryptionRequest(proto.EncryptionRequest{
		ServerID:    req.ServerID,
		PublicKey:   clientDER,
		VerifyToken: clientToken,
	})

	if m.HostKeys != nil {
		if err := m.HostKeys.Record(s.UpstreamHost, req.PublicKey); err != nil {
			m.Log.Warn("failed to record host key", "host", s.UpstreamHost, "err", err)
		}
	}

	return Outcome{ToClient: [][]byte{synth}}, nil
}

func (m *Machine) handleEncryptionResponse(s *session.Session, payload []byte) (Outcome, error) {
	resp, err := proto.DecodeEncryptionResponse(payload)
	if err != nil {
		return Outcome{}, err
	}
	sharedKey, err := cryptoengine.Decrypt(s.ClientCrypto.Keypair, resp.EncryptedSharedSecret)
	if err != nil {
		return Outcome{}, fmt.Errorf("handshake: decrypt client shared key: %w", err)
	}
	verifyToken, err := cryptoengine.Decrypt(s.ClientCrypto.Keypair, resp.EncryptedVerifyToken)
	if err != nil {
		return Outcome{}, fmt.Errorf("handshake: decrypt client verify token: %w", err)
	}
	if !bytes.Equal(verifyToken, s.ClientCrypto.VerifyToken) {
		return Outcome{}, ErrTokenMismatch
	}
	s.ClientCrypto.SharedKey = sharedKey

	sessionID := cryptoengine.SessionHash(s.ServerCrypto.ServerID, s.ServerCrypto.SharedKey, s.ServerCrypto.PublicKeyDER)

	if m.Joiner != nil {
		if err := m.Joiner.Join(s.Identity.AccessToken, s.Identity.SelectedProfile, sessionID); err != nil {
			m.Log.Warn("session server join failed", "err", err)
		}
	}

	encSharedKey, err := cryptoengine.Encrypt(s.ServerCrypto.PublicKey, s.ServerCrypto.SharedKey)
	if err != nil {
		return Outcome{}, err
	}
	encToken, err := cryptoengine.Encrypt(s.ServerCrypto.PublicKey, s.ServerCrypto.VerifyToken)
	if err != nil {
		return Outcome{}, err
	}
	toServer := proto.EncodeEncryptionResponse(proto.EncryptionResponse{
		EncryptedSharedSecret: encSharedKey,
		EncryptedVerifyToken:  encToken,
	})

	s.EncryptionPending = true

	return Outcome{ToServer: [][]byte{toServer}}, nil
}
