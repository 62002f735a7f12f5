package cryptoengine

import (
	"bytes"
	"testing"
)

func TestRSAEncryptDecryptRoundtrip(t *testing.T) {
	priv, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	msg, err := RandomBytes(16)
	if err != nil {
		t.Fatal(err)
	}
	ct, err := Encrypt(&priv.PublicKey, msg)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Decrypt(priv, ct)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pt, msg) {
		t.Fatalf("RSA roundtrip mismatch: got % x, want % x", pt, msg)
	}
}

func TestDERKeyRoundtrip(t *testing.T) {
	priv, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	der, err := EncodePublicKeyDER(&priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := DecodePublicKeyDER(der)
	if err != nil {
		t.Fatal(err)
	}
	if pub.N.Cmp(priv.PublicKey.N) != 0 || pub.E != priv.PublicKey.E {
		t.Fatalf("decoded public key does not match original")
	}
}

func TestDecodePublicKeyDERRejectsGarbage(t *testing.T) {
	if _, err := DecodePublicKeyDER([]byte("not a der key")); err == nil {
		t.Fatal("expected an error decoding garbage DER")
	}
}
