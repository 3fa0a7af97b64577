package crypto

import "crypto/subtle"

// SecureZero overwrites a byte slice with zeros so passphrases and unwrapped
// archive keys do not linger in memory longer than needed. Go's garbage
// collector means this cannot be a guarantee, but it shrinks the window.
//
// subtle.ConstantTimeCopy keeps the compiler from optimizing the wipe away.
func SecureZero(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// SecureZeroMultiple zeros multiple byte slices in a single call.
func SecureZeroMultiple(slices ...[]byte) {
	for _, s := range slices {
		SecureZero(s)
	}
}
