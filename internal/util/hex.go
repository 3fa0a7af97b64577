// Package util provides small shared helpers for Plan G: hex and base64
// conversions for key material, archive timestamp conversion, and reusable
// byte buffers for the restore loop.
package util

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// HexToBytes decodes a hex string (upper or lower case) into raw bytes.
func HexToBytes(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return b, nil
}

// BytesToHex encodes raw bytes as an uppercase hex string, the form the
// original client used when displaying archive keys.
func BytesToHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// Base64Decode decodes standard base64, tolerating surrounding whitespace.
func Base64Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 string: %w", err)
	}
	return b, nil
}

// Base64Encode encodes raw bytes as standard base64.
func Base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// IsPrintable reports whether every byte of s is a printable ASCII character.
// Used to decide whether a recovered key-store value is shown as text or hex.
func IsPrintable(s []byte) bool {
	for _, c := range s {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}
