// Package pattern generates deterministic block contents. The fill is a
// function of the run seed alone, so a later verification pass can
// recompute the expected bytes without storing them.
package pattern

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// chunkSize is how many bytes each hash invocation produces.
const chunkSize = 16

// Fill writes the deterministic pattern for seed into buf. Successive
// 16-byte chunks are murmur3_128(seed, chunk index), so any prefix of the
// buffer is independent of the total buffer length.
func Fill(buf []byte, seed uint64) {
	var key [16]byte
	binary.LittleEndian.PutUint64(key[:8], seed)

	for chunk := 0; chunk*chunkSize < len(buf); chunk++ {
		binary.LittleEndian.PutUint64(key[8:], uint64(chunk))
		h1, h2 := murmur3.Sum128(key[:])

		off := chunk * chunkSize
		rest := buf[off:]
		if len(rest) >= chunkSize {
			binary.LittleEndian.PutUint64(rest[:8], h1)
			binary.LittleEndian.PutUint64(rest[8:16], h2)
			continue
		}

		// Tail shorter than one chunk.
		var tmp [chunkSize]byte
		binary.LittleEndian.PutUint64(tmp[:8], h1)
		binary.LittleEndian.PutUint64(tmp[8:], h2)
		copy(rest, tmp[:])
	}
}

// Verify reports whether buf holds exactly the pattern for seed.
func Verify(buf []byte, seed uint64) bool {
	expected := make([]byte, len(buf))
	Fill(expected, seed)
	for i := range buf {
		if buf[i] != expected[i] {
			return false
		}
	}
	return true
}
