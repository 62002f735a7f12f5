package handshake

import (
	"bytes"
	"net"
	"testing"

	"github.com/lacrosse-labs/mcproxy/internal/cryptoengine"
	"github.com/lacrosse-labs/mcproxy/internal/proto"
	"github.com/lacrosse-labs/mcproxy/internal/session"
	"github.com/lacrosse-labs/mcproxy/internal/wire"
)

func newTestSession() *session.Session {
	c1, c2 := net.Pipe()
	return session.New(c1, c2, "play.example.com:25565")
}

func TestHandshakeIdleToLogin(t *testing.T) {
	m := New(nil, nil, nil)
	s := newTestSession()

	payload := wire.WriteVarint(nil, 47)
	payload = wire.WriteString(payload, "play.example.com")
	payload = wire.WriteUint16(payload, 25565)
	payload = wire.WriteVarint(payload, proto.NextStateLogin)

	out, err := m.HandleClientToServer(s, proto.TypeHandshake, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.ToClient) != 0 || len(out.ToServer) != 0 {
		t.Fatalf("expected no synthesized frames from handshake packet")
	}
	if s.Phase != session.Phase(proto.PhaseLogin) {
		t.Fatalf("phase = %v, want LOGIN", s.Phase)
	}
}

// fakeHostKeys records calls without persisting anything real.
type fakeHostKeys struct {
	stored map[string][]byte
}

func (f *fakeHostKeys) Lookup(host string) ([]byte, bool) {
	v, ok := f.stored[host]
	return v, ok
}

func (f *fakeHostKeys) Record(host string, der []byte) error {
	if f.stored == nil {
		f.stored = make(map[string][]byte)
	}
	f.stored[host] = der
	return nil
}

type fakeJoiner struct {
	called          bool
	accessToken     string
	selectedProfile string
	sessionID       string
}

func (f *fakeJoiner) Join(accessToken, selectedProfile, sessionID string) error {
	f.called = true
	f.accessToken = accessToken
	f.selectedProfile = selectedProfile
	f.sessionID = sessionID
	return nil
}

func TestFullEncryptionHandshake(t *testing.T) {
	hk := &fakeHostKeys{}
	joiner := &fakeJoiner{}
	m := New(hk, joiner, nil)
	s := newTestSession()
	s.Phase = session.Phase(proto.PhaseLogin)
	s.Identity.AccessToken = "token-abc"
	s.Identity.SelectedProfile = "profile-xyz"

	serverKeypair, err := cryptoengine.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate server keypair: %v", err)
	}
	serverDER, err := cryptoengine.EncodePublicKeyDER(&serverKeypair.PublicKey)
	if err != nil {
		t.Fatalf("encode server DER: %v", err)
	}
	serverToken := []byte{1, 2, 3, 4}

	reqPayload := proto.EncodeEncryptionRequest(proto.EncryptionRequest{
		ServerID:    "",
		PublicKey:   serverDER,
		VerifyToken: serverToken,
	})[1:] // strip the type varint EncodeEncryptionRequest adds for wire use

	out, err := m.HandleServerToClient(s, proto.TypeEncryptionRequest, reqPayload)
	if err != nil {
		t.Fatalf("handle encryption request: %v", err)
	}
	if len(out.ToClient) != 1 {
		t.Fatalf("expected one synthesized EncryptionRequest to client, got %d", len(out.ToClient))
	}
	if hk.stored["play.example.com:25565"] == nil {
		t.Fatalf("expected host key to be recorded")
	}
	if s.ClientCrypto.Keypair == nil {
		t.Fatalf("expected client keypair to be generated")
	}
	if s.ServerCrypto.SharedKey == nil || len(s.ServerCrypto.SharedKey) != 16 {
		t.Fatalf("expected 16-byte server shared key")
	}

	// Client "receives" the synthesized request and responds using the
	// proxy's own public key (decoded back out of what we just sent it).
	synthType, n, err := wire.ReadVarint(out.ToClient[0])
	if err != nil || synthType != proto.TypeEncryptionRequest {
		t.Fatalf("unexpected synthesized type: %v %v", synthType, err)
	}
	synthReq, err := proto.DecodeEncryptionRequest(out.ToClient[0][n:])
	if err != nil {
		t.Fatalf("decode synthesized request: %v", err)
	}
	clientPub, err := cryptoengine.DecodePublicKeyDER(synthReq.PublicKey)
	if err != nil {
		t.Fatalf("decode proxy pubkey: %v", err)
	}

	clientSharedKey := bytes.Repeat([]byte{0x42}, 16)
	encSharedKey, err := cryptoengine.Encrypt(clientPub, clientSharedKey)
	if err != nil {
		t.Fatalf("encrypt shared key: %v", err)
	}
	encToken, err := cryptoengine.Encrypt(clientPub, synthReq.VerifyToken)
	if err != nil {
		t.Fatalf("encrypt token: %v", err)
	}
	respPayload := proto.EncodeEncryptionResponse(proto.EncryptionResponse{
		EncryptedSharedSecret: encSharedKey,
		EncryptedVerifyToken:  encToken,
	})[1:]

	out2, err := m.HandleClientToServer(s, proto.TypeEncryptionResponse, respPayload)
	if err != nil {
		t.Fatalf("handle encryption response: %v", err)
	}
	if len(out2.ToServer) != 1 {
		t.Fatalf("expected one EncryptionResponse to server, got %d", len(out2.ToServer))
	}
	if !bytes.Equal(s.ClientCrypto.SharedKey, clientSharedKey) {
		t.Fatalf("decrypted client shared key mismatch")
	}
	if !s.EncryptionPending {
		t.Fatalf("expected encryption_pending to be set")
	}
	if !joiner.called {
		t.Fatalf("expected session joiner to be invoked")
	}
	if joiner.accessToken != "token-abc" || joiner.selectedProfile != "profile-xyz" {
		t.Fatalf("joiner received wrong identity: %+v", joiner)
	}

	// Server decrypts what the proxy sent it, using its own private key.
	respType, n2, err := wire.ReadVarint(out2.ToServer[0])
	if err != nil || respType != proto.TypeEncryptionResponse {
		t.Fatalf("unexpected response type: %v %v", respType, err)
	}
	decodedResp, err := proto.DecodeEncryptionResponse(out2.ToServer[0][n2:])
	if err != nil {
		t.Fatalf("decode response to server: %v", err)
	}
	gotServerKey, err := cryptoengine.Decrypt(serverKeypair, decodedResp.EncryptedSharedSecret)
	if err != nil {
		t.Fatalf("server decrypt shared key: %v", err)
	}
	if !bytes.Equal(gotServerKey, s.ServerCrypto.SharedKey) {
		t.Fatalf("server-side shared key mismatch")
	}
	gotServerToken, err := cryptoengine.Decrypt(serverKeypair, decodedResp.EncryptedVerifyToken)
	if err != nil {
		t.Fatalf("server decrypt token: %v", err)
	}
	if !bytes.Equal(gotServerToken, serverToken) {
		t.Fatalf("server verify token mismatch")
	}
}

func TestEncryptionResponseTokenMismatch(t *testing.T) {
	m := New(nil, nil, nil)
	s := newTestSession()
	s.Phase = session.Phase(proto.PhaseLogin)

	serverKeypair, _ := cryptoengine.GenerateKeypair()
	serverDER, _ := cryptoengine.EncodePublicKeyDER(&serverKeypair.PublicKey)
	reqPayload := proto.EncodeEncryptionRequest(proto.EncryptionRequest{
		ServerID:    "",
		PublicKey:   serverDER,
		VerifyToken: []byte{9, 9, 9, 9},
	})[1:]
	if _, err := m.HandleServerToClient(s, proto.TypeEncryptionRequest, reqPayload); err != nil {
		t.Fatalf("handle encryption request: %v", err)
	}

	clientPub := &s.ClientCrypto.Keypair.PublicKey
	wrongToken := []byte{0, 0, 0, 0}
	encSharedKey, _ := cryptoengine.Encrypt(clientPub, bytes.Repeat([]byte{0x01}, 16))
	encToken, _ := cryptoengine.Encrypt(clientPub, wrongToken)
	respPayload := proto.EncodeEncryptionResponse(proto.EncryptionResponse{
		EncryptedSharedSecret: encSharedKey,
		EncryptedVerifyToken:  encToken,
	})[1:]

	_, err := m.HandleClientToServer(s, proto.TypeEncryptionResponse, respPayload)
	if err != ErrTokenMismatch {
		t.Fatalf("err = %v, want ErrTokenMismatch", err)
	}
}
