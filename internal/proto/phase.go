// Package proto defines the handshake-relevant packet shapes and the
// (direction, phase, type) selector the dispatch loop switches on. Gameplay
// packet tables are explicitly out of scope (SPEC_FULL.md §1); unknown
// payloads are carried as opaque bytes.
package proto

// Phase is the high-level state of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStatus
	PhaseLogin
	PhasePlay
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseStatus:
		return "STATUS"
	case PhaseLogin:
		return "LOGIN"
	case PhasePlay:
		return "PLAY"
	default:
		return "UNKNOWN"
	}
}

// Direction is the travel sense of a frame on a leg.
type Direction int

const (
	// ServerToClient: a frame arriving from the real server, destined
	// (after processing) for the real client.
	ServerToClient Direction = iota
	// ClientToServer: a frame arriving from the real client, destined
	// (after processing) for the real server.
	ClientToServer
)

func (d Direction) String() string {
	if d == ClientToServer {
		return "C->S"
	}
	return "S->C"
}

// Opposite returns the peer direction frames are forwarded to.
func (d Direction) Opposite() Direction {
	if d == ClientToServer {
		return ServerToClient
	}
	return ClientToServer
}

// Packet type ids relevant to the handshake subset this proxy intercepts.
// Values are the state-scoped LOGIN-phase ids of the 1.7+ protocol
// (SetCompression exists from 1.8 on), so the same number can name
// different packets in the two directions.
const (
	TypeHandshake          int32 = 0x00
	TypeEncryptionResponse int32 = 0x01 // C->S, LOGIN
	TypeLoginSuccess       int32 = 0x02 // S->C, LOGIN
	TypeSetCompression     int32 = 0x03 // S->C, LOGIN
	TypeEncryptionRequest  int32 = 0x01 // S->C, LOGIN
)

// NextState values carried in the Handshake packet.
const (
	NextStateStatus int32 = 1
	NextStateLogin  int32 = 2
)
