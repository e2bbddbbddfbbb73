package wecom

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// Signature computes the WeCom callback signature: the SHA-1 of the shared
// token, timestamp, nonce and ciphertext sorted lexicographically and
// concatenated, hex-encoded.
func Signature(token, timestamp, nonce, ciphertext string) string {
	parts := []string{token, timestamp, nonce, ciphertext}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// VerifySignature recomputes the signature and compares it against the
// candidate in constant time. Any mismatch, including empty or missing
// components, returns false.
func VerifySignature(candidate, token, timestamp, nonce, ciphertext string) bool {
	expected := Signature(token, timestamp, nonce, ciphertext)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1
}
