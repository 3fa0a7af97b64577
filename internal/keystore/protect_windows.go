//go:build windows

package keystore

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// dpapiProtector unwraps values protected with CryptProtectData under the
// account the client service ran as.
type dpapiProtector struct{}

func defaultProtector() Protector {
	return dpapiProtector{}
}

func (dpapiProtector) Unprotect(value []byte) ([]byte, bool) {
	if len(value) == 0 {
		return nil, false
	}

	in := windows.DataBlob{
		Size: uint32(len(value)),
		Data: &value[0],
	}
	var out windows.DataBlob

	err := windows.CryptUnprotectData(&in, nil, nil, 0, nil, 0, &out)
	if err != nil {
		// Not DPAPI-protected (or protected under another account); let the
		// platform-key trial have it.
		return nil, false
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))

	plain := make([]byte, out.Size)
	copy(plain, unsafe.Slice(out.Data, out.Size))
	return plain, true
}
