package crypto

import (
	"crypto/sha256"
	"encoding/binary"
)

// X963KDF implements the ANSI X9.63 key derivation function with SHA-256.
// Output blocks are SHA256(input || counter || sharedInfo) with a big-endian
// 32-bit counter starting at 1, concatenated and truncated to outLen.
func X963KDF(input, sharedInfo []byte, outLen int) []byte {
	out := make([]byte, 0, outLen)
	var counter [4]byte
	for i := uint32(1); len(out) < outLen; i++ {
		binary.BigEndian.PutUint32(counter[:], i)
		h := sha256.New()
		h.Write(input)
		h.Write(counter[:])
		h.Write(sharedInfo)
		out = h.Sum(out)
	}
	return out[:outLen]
}
