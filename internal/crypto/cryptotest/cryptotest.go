// Package cryptotest builds encrypted fixtures for tests. The production
// code only ever decrypts, so the forward direction of each cipher variant
// lives here, next to the tests that need it.
package cryptotest

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"

	"golang.org/x/crypto/blowfish"

	pcrypto "plango/internal/crypto"
)

// Pad applies PKCS-style padding up to blockSize.
func Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func encryptCBC(block cipher.Block, iv, plaintext []byte) []byte {
	padded := Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

// EncryptBlowfish448 encrypts with Blowfish-CBC and the client's fixed IV.
// Keys longer than 56 bytes are truncated, mirroring the decrypt side.
func EncryptBlowfish448(plaintext, key []byte) []byte {
	if len(key) > 56 {
		key = key[:56]
	}
	block, err := blowfish.NewCipher(key)
	if err != nil {
		panic(err)
	}
	return encryptCBC(block, pcrypto.BlowfishIV, plaintext)
}

// EncryptBlowfish128 truncates the key to 16 bytes first.
func EncryptBlowfish128(plaintext, key []byte) []byte {
	if len(key) > 16 {
		key = key[:16]
	}
	return EncryptBlowfish448(plaintext, key)
}

// EncryptAES128 encrypts AES-CBC with the fixed IV and a 16-byte key.
func EncryptAES128(plaintext, key []byte) []byte {
	return encryptAESStatic(plaintext, key, 16)
}

// EncryptAES256 encrypts AES-CBC with the fixed IV and a 32-byte key.
func EncryptAES256(plaintext, key []byte) []byte {
	return encryptAESStatic(plaintext, key, 32)
}

func encryptAESStatic(plaintext, key []byte, keyLen int) []byte {
	if len(key) > keyLen {
		key = key[:keyLen]
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	return encryptCBC(block, pcrypto.AESStaticIV, plaintext)
}

// EncryptAES256RandomIV encrypts AES-256-CBC with the given IV prepended as
// the first block. The IV is a parameter so fixtures stay deterministic.
func EncryptAES256RandomIV(plaintext, key, iv []byte) []byte {
	if len(key) > 32 {
		key = key[:32]
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	body := encryptCBC(block, iv, plaintext)
	return append(append([]byte(nil), iv...), body...)
}
