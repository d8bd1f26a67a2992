package pattern

import (
	"bytes"
	"testing"
)

func TestFill_Deterministic(t *testing.T) {
	a := make([]byte, 4096)
	b := make([]byte, 4096)
	Fill(a, 42)
	Fill(b, 42)
	if !bytes.Equal(a, b) {
		t.Fatal("same seed produced different patterns")
	}
}

func TestFill_SeedChangesPattern(t *testing.T) {
	a := make([]byte, 4096)
	b := make([]byte, 4096)
	Fill(a, 1)
	Fill(b, 2)
	if bytes.Equal(a, b) {
		t.Fatal("different seeds produced identical patterns")
	}
}

func TestFill_PrefixIndependentOfLength(t *testing.T) {
	long := make([]byte, 64*1024)
	short := make([]byte, 4096)
	Fill(long, 7)
	Fill(short, 7)
	if !bytes.Equal(long[:len(short)], short) {
		t.Fatal("prefix depends on buffer length")
	}
}

func TestFill_ShortTail(t *testing.T) {
	// Not a multiple of the 16-byte chunk.
	buf := make([]byte, 21)
	Fill(buf, 9)

	full := make([]byte, 32)
	Fill(full, 9)
	if !bytes.Equal(buf, full[:21]) {
		t.Fatal("tail bytes differ from the full-chunk fill")
	}
}

func TestVerify(t *testing.T) {
	buf := make([]byte, 4096)
	Fill(buf, 42)
	if !Verify(buf, 42) {
		t.Fatal("Verify rejected a freshly filled buffer")
	}
	if Verify(buf, 43) {
		t.Fatal("Verify accepted the wrong seed")
	}

	buf[100] ^= 0x01
	if Verify(buf, 42) {
		t.Fatal("Verify accepted a corrupted buffer")
	}
}

func TestFill_NotAllZero(t *testing.T) {
	buf := make([]byte, 4096)
	Fill(buf, 0)
	for _, b := range buf {
		if b != 0 {
			return
		}
	}
	t.Fatal("pattern is all zeroes")
}
