package httpcache

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashHex hashes key+body, the way spec.md §4.9 derives the stored
// weak ETag ("hashing body+key").
func hashHex(key string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
