package crypto

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"plango/internal/binio"
	"plango/internal/errors"
)

// SecureDataKey is the decoded "secure data key" envelope: an archive key
// encrypted with the user's account password, plus an iterated-SHA-1 hash of
// that password for verification before decryption is attempted.
//
// On disk the envelope (after base64 decoding) is laid out as:
//
//	[4 bytes big-endian keyLen] [keyLen bytes encrypted key] [b64(hash) ":" b64(salt)]
type SecureDataKey struct {
	EncryptedKey []byte
	PasswordHash string // "b64(hash):b64(salt)" exactly as stored
}

// ParseSecureDataKey decodes an envelope that has already been base64-decoded.
func ParseSecureDataKey(envelope []byte) (*SecureDataKey, error) {
	c := binio.NewCursor(envelope)

	keyLen, err := c.Int32()
	if err != nil {
		return nil, errors.Wrap(errors.ErrMalformed, "secure data key: truncated length field")
	}
	if keyLen < 0 || int(keyLen) > c.Remaining() {
		return nil, errors.Wrap(errors.ErrMalformed, "secure data key: implausible key length")
	}

	encrypted, err := c.Bytes(int(keyLen))
	if err != nil {
		return nil, errors.Wrap(errors.ErrMalformed, "secure data key: truncated key")
	}

	hash := string(envelope[c.Offset():])
	if !strings.Contains(hash, ":") {
		return nil, errors.Wrap(errors.ErrMalformed, "secure data key: password hash has no salt separator")
	}

	return &SecureDataKey{EncryptedKey: encrypted, PasswordHash: hash}, nil
}

// PasswordUnlocks reports whether password matches the envelope's stored
// hash. The comparison is constant-time.
func (k *SecureDataKey) PasswordUnlocks(password string) bool {
	sep := strings.LastIndex(k.PasswordHash, ":")
	salt, err := base64.StdEncoding.DecodeString(k.PasswordHash[sep+1:])
	if err != nil {
		return false
	}

	computed := HashPassphrase(password, string(salt), EnvelopeHashIterations)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(k.PasswordHash)) == 1
}

// Decrypt returns the archive key wrapped in the envelope. The password is
// verified against the stored hash first; a mismatch is ErrBadPassword.
func (k *SecureDataKey) Decrypt(password string) ([]byte, error) {
	if !k.PasswordUnlocks(password) {
		return nil, errors.ErrBadPassword
	}
	key, err := DecryptBlowfish448(k.EncryptedKey, []byte(password))
	if err != nil {
		return nil, errors.Wrap(err, "secure data key")
	}
	return key, nil
}

// DecryptSecureDataKey parses an envelope and unwraps the archive key in one
// step. The envelope must already be base64-decoded.
func DecryptSecureDataKey(envelope []byte, password string) ([]byte, error) {
	k, err := ParseSecureDataKey(envelope)
	if err != nil {
		return nil, err
	}
	key, err := k.Decrypt(password)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimRight(key, "\x00")) == 0 {
		return nil, errors.Wrap(errors.ErrMalformed, "secure data key: decrypted key is empty")
	}
	return key, nil
}
