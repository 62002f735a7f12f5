package cryptoengine

import "crypto/cipher"

// cfb8Stream implements cipher.Stream for AES-128 in CFB8 mode (1-byte
// feedback), which the protocol requires and the standard library's
// cipher.NewCFBEncrypter/Decrypter do not provide (they are fixed at the
// cipher's full block size, CFB128). Each call advances the IV cursor by
// folding in the produced ciphertext byte, matching SPEC_FULL.md §4.3: the
// cursor is long-lived and distinct per direction.
type cfb8Stream struct {
	block   cipher.Block
	iv      []byte
	encrypt bool
}

// newCFB8Encrypter returns a cipher.Stream that encrypts with AES-128-CFB8
// using iv as the initial feedback register. iv is copied.
func newCFB8Encrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, true)
}

// newCFB8Decrypter returns a cipher.Stream that decrypts with AES-128-CFB8
// using iv as the initial feedback register. iv is copied.
func newCFB8Decrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, false)
}

func newCFB8(block cipher.Block, iv []byte, encrypt bool) cipher.Stream {
	if len(iv) != block.BlockSize() {
		panic("cryptoengine: iv length must equal block size")
	}
	cp := make([]byte, len(iv))
	copy(cp, iv)
	return &cfb8Stream{block: block, iv: cp, encrypt: encrypt}
}

func (s *cfb8Stream) XORKeyStream(dst, src []byte) {
	bs := s.block.BlockSize()
	scratch := make([]byte, bs)
	for i := range src {
		s.block.Encrypt(scratch, s.iv)
		var out byte
		if s.encrypt {
			out = src[i] ^ scratch[0]
			s.shift(out)
		} else {
			out = src[i] ^ scratch[0]
			s.shift(src[i])
		}
		dst[i] = out
	}
}

// shift folds feedbackByte into the IV register: iv = iv[1:] || feedbackByte.
func (s *cfb8Stream) shift(feedbackByte byte) {
	copy(s.iv, s.iv[1:])
	s.iv[len(s.iv)-1] = feedbackByte
}
