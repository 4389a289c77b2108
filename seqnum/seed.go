package seqnum

import (
	"crypto/rand"
	"encoding/binary"
)

// seedFromEntropy draws a non-zero xorshift32 seed from the OS entropy
// source. A zero seed would make Prand32 a fixed point, so a zero draw is
// nudged to 1.
func seedFromEntropy() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0x2545F491 // arbitrary odd fallback if the OS CSPRNG is unavailable.
	}
	seed := binary.BigEndian.Uint32(b[:])
	if seed == 0 {
		seed = 1
	}
	return seed
}
