package cryptoengine

import "testing"

// TestSessionHashEmptyVector checks the sign-extended hex formatting against
// SHA-1(""). The digest's top bit is set (0xda...), so the expected value is
// the negative two's-complement magnitude of the digest, computed
// independently here as 2^160 - digest to cross-check the byte-wise
// negation in signedHex.
func TestSessionHashEmptyVector(t *testing.T) {
	got := SessionHash("", nil, nil)
	want := "-25c65c11a194b4f2cdaa40106a9fe76f5027f8f7"
	if got != want {
		t.Fatalf("SessionHash empty vector = %s, want %s", got, want)
	}
}

func TestSessionHashPositive(t *testing.T) {
	// "Notch" is the well-known wiki.vg vector for a positive digest.
	got := SessionHash("Notch", nil, nil)
	want := "4ed1f46bbe04bc756bcb17c0c7ce3e4632f06a48"
	if got != want {
		t.Fatalf("SessionHash(Notch) = %s, want %s", got, want)
	}
}

func TestSessionHashNegativeKnownVector(t *testing.T) {
	got := SessionHash("jeb_", nil, nil)
	want := "-7c9d5b0044c130109a5d7b5fb5c317c02b4e28c1"
	if got != want {
		t.Fatalf("SessionHash(jeb_) = %s, want %s", got, want)
	}
}

func TestNegateTwosComplementDoubleNegateIsIdentity(t *testing.T) {
	b := []byte{0x01, 0x00, 0x00}
	negateTwosComplement(b)
	negateTwosComplement(b)
	if b[0] != 0x01 || b[1] != 0x00 || b[2] != 0x00 {
		t.Fatalf("double negate did not return to original: % x", b)
	}
}
