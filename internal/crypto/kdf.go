package crypto

import (
	"crypto/sha1"
	"encoding/base64"
)

// Iteration counts for the two uses of the iterated SHA-1 construction.
const (
	// ArchiveKeyIterations is used when deriving an archive key from a
	// passphrase (KDF-v2).
	ArchiveKeyIterations = 50000

	// EnvelopeHashIterations is used when hashing the password stored
	// alongside a secure-data-key envelope.
	EnvelopeHashIterations = 4242
)

// ArchiveKeyV2Length is the length of a derived archive key in bytes.
const ArchiveKeyV2Length = 56

// HashPassphrase produces the client's salted passphrase hash:
//
//	base64(SHA-1 applied to salt||passphrase, then re-applied to its own
//	digest `iterations` more times) + ":" + base64(salt)
func HashPassphrase(passphrase, salt string, iterations int) string {
	digest := sha1.Sum([]byte(salt + passphrase))
	for i := 0; i < iterations; i++ {
		digest = sha1.Sum(digest[:])
	}
	return base64.StdEncoding.EncodeToString(digest[:]) + ":" +
		base64.StdEncoding.EncodeToString([]byte(salt))
}

// deriveKeyV2 is the shared KDF-v2 construction: hash the secret and its
// byte-wise reverse against the salt, concatenate, then normalize to exactly
// ArchiveKeyV2Length bytes (zero-pad on the right, or keep the trailing 56).
func deriveKeyV2(secret, salt string) []byte {
	result := HashPassphrase(secret, salt, ArchiveKeyIterations) +
		HashPassphrase(reverseString(secret), salt, ArchiveKeyIterations)

	key := []byte(result)
	for len(key) < ArchiveKeyV2Length {
		key = append(key, 0)
	}
	if len(key) > ArchiveKeyV2Length {
		key = key[len(key)-ArchiveKeyV2Length:]
	}
	return key
}

// DeriveCustomArchiveKeyV2 derives a 56-byte archive key from a decimal
// user-id string and a passphrase.
func DeriveCustomArchiveKeyV2(userID, passphrase string) []byte {
	return deriveKeyV2(passphrase, userID)
}

// GenerateSmallBusinessKeyV2 derives the key-store obfuscation key used by
// Small Business clients from a machine identity: the full identity string
// is the secret, its first 32 characters are the salt.
func GenerateSmallBusinessKeyV2(secret, salt string) []byte {
	return deriveKeyV2(secret, salt)
}

func reverseString(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
