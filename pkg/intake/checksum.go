package intake

import (
	"encoding/hex"
	"hash"

	"github.com/zeebo/blake3"
)

const checksumPrefix = "blake3:"

// newChecksum returns a hasher to tee upload bytes through
func newChecksum() hash.Hash {
	return blake3.New()
}

func formatChecksum(h hash.Hash) string {
	return checksumPrefix + hex.EncodeToString(h.Sum(nil))
}
