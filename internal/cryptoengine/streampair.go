package cryptoengine

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// StreamPair holds the two independent, long-lived AES-128-CFB8 cipher
// contexts for one leg of the proxy (spec invariant 2: encrypt and decrypt
// reuse the same key but maintain independent IV cursors). Both cursors are
// seeded from the shared key itself at activation, per SPEC_FULL.md §4.4's
// activation rule, and are never reset for the lifetime of the session.
type StreamPair struct {
	enc cipher.Stream
	dec cipher.Stream
}

// NewStreamPair constructs the encrypt and decrypt CFB8 streams for one
// direction's shared 16-byte AES-128 key, with the initial IV for both
// streams equal to the key bytes.
func NewStreamPair(key []byte) (*StreamPair, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: AES key setup: %w", err)
	}
	return &StreamPair{
		enc: newCFB8Encrypter(block, key),
		dec: newCFB8Decrypter(block, key),
	}, nil
}

// Encrypt XORs src into dst in place using the leg's long-lived encrypt
// cursor. dst and src may be the same slice.
func (p *StreamPair) Encrypt(dst, src []byte) {
	p.enc.XORKeyStream(dst, src)
}

// Decrypt XORs src into dst in place using the leg's long-lived decrypt
// cursor. dst and src may be the same slice.
func (p *StreamPair) Decrypt(dst, src []byte) {
	p.dec.XORKeyStream(dst, src)
}
