package cryptoengine

import (
	"crypto/sha1"
	"encoding/hex"
)

// SessionHash computes the sessionId the proxy reports to the real session
// server (spec invariant 5): SHA-1 over serverID ‖ sharedKey ‖ serverPubkeyDER,
// formatted with the signed two's-complement hex convention the Minecraft
// protocol uses (the digest is treated as a big-endian signed integer).
func SessionHash(serverID string, sharedKey, serverPubkeyDER []byte) string {
	h := sha1.New()
	h.Write([]byte(serverID))
	h.Write(sharedKey)
	h.Write(serverPubkeyDER)
	digest := h.Sum(nil)
	return signedHex(digest)
}

// signedHex implements the sign-extended hex formatting: if the digest's
// most significant bit is set, it is negated as a two's-complement big
// integer (carry-propagating byte-wise subtraction) and the result is
// printed with a leading '-'; either way, leading zero hex digits are
// stripped from the magnitude.
func signedHex(digest []byte) string {
	negative := digest[0]&0x80 != 0
	magnitude := make([]byte, len(digest))
	copy(magnitude, digest)
	if negative {
		negateTwosComplement(magnitude)
	}
	hexStr := hex.EncodeToString(magnitude)
	i := 0
	for i < len(hexStr)-1 && hexStr[i] == '0' {
		i++
	}
	hexStr = hexStr[i:]
	if negative {
		return "-" + hexStr
	}
	return hexStr
}

// negateTwosComplement negates b in place, treating b as a big-endian
// two's-complement integer: flip every byte, then add one (propagating the
// carry from the least-significant byte).
func negateTwosComplement(b []byte) {
	for i := range b {
		b[i] = ^b[i]
	}
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			break
		}
	}
}
