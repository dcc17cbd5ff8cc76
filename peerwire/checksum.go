package peerwire

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Checksum returns the first ChecksumSize bytes of SHA256(SHA256(payload)).
func Checksum(payload []byte) [ChecksumSize]byte {
	var sum [ChecksumSize]byte
	copy(sum[:], chainhash.DoubleHashB(payload))

	return sum
}
