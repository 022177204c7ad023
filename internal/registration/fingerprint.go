package registration

import (
	"encoding/binary"
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/sha3"
)

// Fingerprint derives the deterministic submission identity used for
// duplicate detection: SHA3-256 over owner, display name, and the content
// bytes. Each field is length-prefixed so ("ab","c") and ("a","bc") cannot
// collide.
func Fingerprint(owner, displayName string, content []byte) string {
	h := sha3.New256()
	writeField(h, []byte(owner))
	writeField(h, []byte(displayName))
	writeField(h, content)
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, field []byte) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(field)))
	h.Write(prefix[:])
	h.Write(field)
}
