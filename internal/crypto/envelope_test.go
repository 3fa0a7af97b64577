package crypto_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"plango/internal/crypto"
	"plango/internal/crypto/cryptotest"
	"plango/internal/errors"
)

// buildEnvelope assembles a secure-data-key envelope the way the client
// stores it (before the outer base64 layer).
func buildEnvelope(key []byte, password, salt string) []byte {
	encrypted := cryptotest.EncryptBlowfish448(key, []byte(password))
	hash := crypto.HashPassphrase(password, salt, crypto.EnvelopeHashIterations)

	var out []byte
	out = binary.BigEndian.AppendUint32(out, uint32(len(encrypted)))
	out = append(out, encrypted...)
	out = append(out, hash...)
	return out
}

func TestSecureDataKeyRoundTrip(t *testing.T) {
	archiveKey := bytes.Repeat([]byte{0xC4, 0x3B}, 28)
	envelope := buildEnvelope(archiveKey, "account-password", "584226")

	k, err := crypto.ParseSecureDataKey(envelope)
	if err != nil {
		t.Fatalf("ParseSecureDataKey: %v", err)
	}

	if !k.PasswordUnlocks("account-password") {
		t.Fatal("correct password did not unlock the envelope")
	}
	if k.PasswordUnlocks("wrong-password") {
		t.Fatal("wrong password unlocked the envelope")
	}

	got, err := crypto.DecryptSecureDataKey(envelope, "account-password")
	if err != nil {
		t.Fatalf("DecryptSecureDataKey: %v", err)
	}
	if !bytes.Equal(got, archiveKey) {
		t.Errorf("unwrapped key = %x; want %x", got, archiveKey)
	}
}

func TestSecureDataKeyBadPassword(t *testing.T) {
	envelope := buildEnvelope([]byte("some key material"), "right", "1000")
	_, err := crypto.DecryptSecureDataKey(envelope, "wrong")
	if !errors.Is(err, errors.ErrBadPassword) {
		t.Errorf("DecryptSecureDataKey with wrong password = %v; want ErrBadPassword", err)
	}
}

func TestSecureDataKeyMalformed(t *testing.T) {
	good := buildEnvelope([]byte("some key material"), "pw", "42")

	tests := []struct {
		name     string
		envelope []byte
	}{
		{"empty", nil},
		{"truncated length field", good[:3]},
		{"length exceeds envelope", append(binary.BigEndian.AppendUint32(nil, 1<<30), 0x00)},
		{"negative length", append(binary.BigEndian.AppendUint32(nil, 0xFFFFFFFF), good[4:]...)},
		{"no salt separator", func() []byte {
			enc := cryptotest.EncryptBlowfish448([]byte("k"), []byte("pw"))
			env := binary.BigEndian.AppendUint32(nil, uint32(len(enc)))
			env = append(env, enc...)
			return append(env, "digestwithoutsalt"...)
		}()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := crypto.ParseSecureDataKey(tc.envelope); !errors.Is(err, errors.ErrMalformed) {
				t.Errorf("ParseSecureDataKey = %v; want ErrMalformed", err)
			}
		})
	}
}
