package objcache

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/conduit-lang/respack/internal/value"
)

// contentHasher computes the digests that decide whether an entry changed
type contentHasher struct{}

// hashContent computes a SHA-256 hash of the given content
func (contentHasher) hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// hashBlob hashes the loaded bytes of a blob
func (h contentHasher) hashBlob(b *value.Blob) (string, error) {
	data, err := b.Bytes()
	if err != nil {
		return "", err
	}
	return h.hashContent(data), nil
}
