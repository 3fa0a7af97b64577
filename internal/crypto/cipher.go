// Package crypto implements the Code42 cipher suite, key-derivation
// functions, and the secure-data-key envelope used by CrashPlan archives.
//
// Decryption only: this tool reads archives, it never writes them.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	"golang.org/x/crypto/blowfish"

	"plango/internal/errors"
)

// Cipher codes as stored in block headers and encrypted-path headers.
const (
	CipherNone           = 0
	CipherBlowfish128    = 1
	CipherBlowfish448    = 2
	CipherAES128         = 3
	CipherAES256         = 4
	CipherAES256RandomIV = 5

	cipherCodeMax = CipherAES256RandomIV
)

// Every CBC cipher in the suite uses a fixed IV baked into the client,
// except AES-256-random-IV which carries the IV as its first block.
var (
	BlowfishIV  = []byte{12, 34, 56, 78, 90, 87, 65, 43}
	AESStaticIV = []byte{121, 92, 86, 51, 153, 89, 163, 254, 47, 51, 47, 174, 253, 149, 129, 140}
)

// Blowfish accepts at most 56 key bytes (448 bits).
const blowfishMaxKeyLen = 56

// DecryptFunc decrypts ciphertext with key. A returned error satisfying
// errors.Is(err, errors.ErrBadPadding) is recoverable: the caller may try
// another cipher code or another candidate key. All other errors are fatal.
type DecryptFunc func(ciphertext, key []byte) ([]byte, error)

// Ciphers is the cipher table, indexed by cipher code.
var Ciphers = [cipherCodeMax + 1]DecryptFunc{
	CipherNone:           decryptNone,
	CipherBlowfish128:    DecryptBlowfish128,
	CipherBlowfish448:    DecryptBlowfish448,
	CipherAES128:         decryptAES128,
	CipherAES256:         decryptAES256,
	CipherAES256RandomIV: DecryptAES256RandomIV,
}

// IsValidCipherCode reports whether code indexes the cipher table.
func IsValidCipherCode(code int) bool {
	return code >= 0 && code <= cipherCodeMax
}

// Decrypt dispatches to the cipher for code.
func Decrypt(code int, ciphertext, key []byte) ([]byte, error) {
	if !IsValidCipherCode(code) {
		return nil, errors.ErrUnsupportedCipher
	}
	return Ciphers[code](ciphertext, key)
}

func decryptNone(ciphertext, key []byte) ([]byte, error) {
	return ciphertext, nil
}

// DecryptBlowfish448 decrypts Blowfish-CBC with the client's fixed IV.
// Keys longer than 56 bytes are truncated.
func DecryptBlowfish448(ciphertext, key []byte) ([]byte, error) {
	if len(key) > blowfishMaxKeyLen {
		key = key[:blowfishMaxKeyLen]
	}
	block, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "blowfish key setup")
	}
	return decryptCBC(block, BlowfishIV, ciphertext)
}

// DecryptBlowfish128 is Blowfish-CBC with the key first truncated to 16
// bytes. The on-disk formats do not record which of the two key lengths was
// used; callers negotiate by trying 448 and retrying as 128 on bad padding.
func DecryptBlowfish128(ciphertext, key []byte) ([]byte, error) {
	if len(key) > 16 {
		key = key[:16]
	}
	return DecryptBlowfish448(ciphertext, key)
}

func decryptAESStaticIV(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "aes key setup")
	}
	return decryptCBC(block, AESStaticIV, ciphertext)
}

func decryptAES128(ciphertext, key []byte) ([]byte, error) {
	if len(key) > 16 {
		key = key[:16]
	}
	return decryptAESStaticIV(ciphertext, key)
}

func decryptAES256(ciphertext, key []byte) ([]byte, error) {
	if len(key) > 32 {
		key = key[:32]
	}
	return decryptAESStaticIV(ciphertext, key)
}

// DecryptAES256RandomIV decrypts AES-256-CBC where the first block of the
// ciphertext is the message IV. This is the variant the key store uses to
// obfuscate its values.
func DecryptAES256RandomIV(ciphertext, key []byte) ([]byte, error) {
	if len(key) > 32 {
		key = key[:32]
	}
	// One block of IV plus at least one block of body.
	if len(ciphertext) < 2*aes.BlockSize {
		return nil, errors.ErrBadPadding
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "aes key setup")
	}
	return decryptCBC(block, ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:])
}

func decryptCBC(block cipher.Block, iv, ciphertext []byte) ([]byte, error) {
	bs := block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, errors.ErrBadPadding
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return stripPadding(plaintext, bs)
}

// stripPadding validates PKCS-style padding and returns the unpadded
// plaintext. Every padding byte is inspected, not only the last, so random
// plaintext from a wrong key or cipher survives with only ~1/256 probability.
func stripPadding(plaintext []byte, blockSize int) ([]byte, error) {
	padLen := int(plaintext[len(plaintext)-1])
	if padLen < 1 || padLen > blockSize {
		return nil, errors.ErrBadPadding
	}
	for i := 1; i < padLen; i++ {
		if plaintext[len(plaintext)-1-i] != byte(padLen) {
			return nil, errors.ErrBadPadding
		}
	}
	return plaintext[:len(plaintext)-padLen], nil
}
