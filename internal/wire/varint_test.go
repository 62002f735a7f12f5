package wire

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestVarintVectors(t *testing.T) {
	tests := []struct {
		v    int32
		want []byte
	}{
		{300, []byte{0xAC, 0x02}},
		{0, []byte{0x00}},
		{2147483647, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x07}},
	}
	for _, tt := range tests {
		got := WriteVarint(nil, tt.v)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("WriteVarint(%d) = % x, want % x", tt.v, got, tt.want)
		}
		v, n, err := ReadVarint(got)
		if err != nil || v != tt.v || n != len(tt.want) {
			t.Errorf("ReadVarint(% x) = %d,%d,%v, want %d,%d,nil", got, v, n, err, tt.v, len(tt.want))
		}
	}
}

func TestVarintRoundtrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		n := int32(rnd.Uint32())
		buf := WriteVarint(nil, n)
		if len(buf) > 5 || len(buf) < 1 {
			t.Fatalf("encode(%d) produced %d bytes", n, len(buf))
		}
		got, consumed, err := ReadVarint(buf)
		if err != nil {
			t.Fatalf("decode(% x): %v", buf, err)
		}
		if consumed != len(buf) {
			t.Fatalf("decode(% x) consumed %d, want %d", buf, consumed, len(buf))
		}
		if got != n {
			t.Fatalf("roundtrip(%d) = %d", n, got)
		}
	}
}

func TestVarintShortBuffer(t *testing.T) {
	buf := []byte{0x80, 0x80, 0x80, 0x80}
	if _, _, err := ReadVarint(buf); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestStringRoundtrip(t *testing.T) {
	buf := WriteString(nil, "hello, minecraft")
	s, n, err := ReadString(buf)
	if err != nil || s != "hello, minecraft" || n != len(buf) {
		t.Fatalf("ReadString(% x) = %q,%d,%v", buf, s, n, err)
	}
}
