// Package crypto holds small cryptographic helpers shared across the
// runtime: path hashing for the ArtifactStore and AES-256-CBC secret
// encryption for the SecretVault.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashHex returns the lowercase-hex SHA-256 digest of s, fixed at 64
// characters. Tenant and component hashes used for on-disk secret/key
// paths are computed this way so the plaintext names never appear in
// stored filenames (§4.2).
func HashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
