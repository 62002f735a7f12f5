package proto

import (
	"fmt"

	"github.com/lacrosse-labs/mcproxy/internal/wire"
)

// Handshake is the IDLE-phase C->S packet that selects STATUS or LOGIN.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

// DecodeHandshake parses the payload of a Handshake packet (after the type
// varint has already been consumed).
func DecodeHandshake(p []byte) (Handshake, error) {
	var h Handshake
	pv, n, err := wire.ReadVarint(p)
	if err != nil {
		return h, fmt.Errorf("proto: handshake protocol version: %w", err)
	}
	p = p[n:]
	addr, n, err := wire.ReadString(p)
	if err != nil {
		return h, fmt.Errorf("proto: handshake server address: %w", err)
	}
	p = p[n:]
	port, n, err := wire.ReadUint16(p)
	if err != nil {
		return h, fmt.Errorf("proto: handshake server port: %w", err)
	}
	p = p[n:]
	next, _, err := wire.ReadVarint(p)
	if err != nil {
		return h, fmt.Errorf("proto: handshake next state: %w", err)
	}
	h.ProtocolVersion = pv
	h.ServerAddress = addr
	h.ServerPort = port
	h.NextState = next
	return h, nil
}

// EncryptionRequest is the LOGIN-phase S->C packet starting the handshake.
type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
}

// DecodeEncryptionRequest parses the payload of an EncryptionRequest packet.
func DecodeEncryptionRequest(p []byte) (EncryptionRequest, error) {
	var r EncryptionRequest
	serverID, n, err := wire.ReadString(p)
	if err != nil {
		return r, fmt.Errorf("proto: encryption request server id: %w", err)
	}
	p = p[n:]
	klen, n, err := wire.ReadVarint(p)
	if err != nil {
		return r, fmt.Errorf("proto: encryption request key length: %w", err)
	}
	p = p[n:]
	if int(klen) > len(p) {
		return r, wire.ErrShortBuffer
	}
	pubkey := p[:klen]
	p = p[klen:]
	tlen, n, err := wire.ReadVarint(p)
	if err != nil {
		return r, fmt.Errorf("proto: encryption request token length: %w", err)
	}
	p = p[n:]
	if int(tlen) > len(p) {
		return r, wire.ErrShortBuffer
	}
	token := p[:tlen]
	r.ServerID = serverID
	r.PublicKey = append([]byte(nil), pubkey...)
	r.VerifyToken = append([]byte(nil), token...)
	return r, nil
}

// EncodeEncryptionRequest produces the payload (including its type prefix)
// for an EncryptionRequest packet.
func EncodeEncryptionRequest(r EncryptionRequest) []byte {
	buf := wire.WriteVarint(nil, TypeEncryptionRequest)
	buf = wire.WriteString(buf, r.ServerID)
	buf = wire.WriteVarint(buf, int32(len(r.PublicKey)))
	buf = append(buf, r.PublicKey...)
	buf = wire.WriteVarint(buf, int32(len(r.VerifyToken)))
	buf = append(buf, r.VerifyToken...)
	return buf
}

// EncryptionResponse is the LOGIN-phase C->S reply carrying the RSA-encrypted
// shared key and verification token.
type EncryptionResponse struct {
	EncryptedSharedSecret []byte
	EncryptedVerifyToken  []byte
}

// DecodeEncryptionResponse parses the payload of an EncryptionResponse
// packet.
func DecodeEncryptionResponse(p []byte) (EncryptionResponse, error) {
	var r EncryptionResponse
	sklen, n, err := wire.ReadVarint(p)
	if err != nil {
		return r, fmt.Errorf("proto: encryption response key length: %w", err)
	}
	p = p[n:]
	if int(sklen) > len(p) {
		return r, wire.ErrShortBuffer
	}
	skey := p[:sklen]
	p = p[sklen:]
	tklen, n, err := wire.ReadVarint(p)
	if err != nil {
		return r, fmt.Errorf("proto: encryption response token length: %w", err)
	}
	p = p[n:]
	if int(tklen) > len(p) {
		return r, wire.ErrShortBuffer
	}
	token := p[:tklen]
	r.EncryptedSharedSecret = append([]byte(nil), skey...)
	r.EncryptedVerifyToken = append([]byte(nil), token...)
	return r, nil
}

// EncodeEncryptionResponse produces the payload (including its type prefix)
// for an EncryptionResponse packet, as sent by the proxy to the real server.
func EncodeEncryptionResponse(r EncryptionResponse) []byte {
	buf := wire.WriteVarint(nil, TypeEncryptionResponse)
	buf = wire.WriteVarint(buf, int32(len(r.EncryptedSharedSecret)))
	buf = append(buf, r.EncryptedSharedSecret...)
	buf = wire.WriteVarint(buf, int32(len(r.EncryptedVerifyToken)))
	buf = append(buf, r.EncryptedVerifyToken...)
	return buf
}

// DecodeSetCompression parses the payload of a SetCompression packet,
// returning the new threshold.
func DecodeSetCompression(p []byte) (int32, error) {
	threshold, _, err := wire.ReadVarint(p)
	if err != nil {
		return 0, fmt.Errorf("proto: set compression threshold: %w", err)
	}
	return threshold, nil
}
