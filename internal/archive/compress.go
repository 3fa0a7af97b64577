package archive

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"

	"plango/internal/errors"
)

func isGzipFrame(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1F && b[1] == 0x8B
}

func isZlibFrame(b []byte) bool {
	// RFC 1950: low nibble of CMF is 8 (deflate), window size <= 32K, and the
	// two header bytes form a multiple of 31.
	return len(b) >= 2 && b[0]&0x0F == 8 && b[0]>>4 <= 7 &&
		(uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

// MaybeDecompress inflates buf if it starts with a gzip or zlib frame and
// returns it untouched otherwise. Histories and block payloads may or may
// not be compressed; the frame magic is the only record of which.
//
// A buffer that looks framed but fails to inflate is an error; the restore
// engine decides whether that means corruption or a payload that was never
// compressed in the first place.
func MaybeDecompress(buf []byte) ([]byte, error) {
	switch {
	case isGzipFrame(buf):
		r, err := gzip.NewReader(bytes.NewReader(buf))
		if err != nil {
			return nil, errors.Wrap(err, "gzip frame")
		}
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, "gzip frame")
		}
		if err := r.Close(); err != nil {
			return nil, errors.Wrap(err, "gzip frame")
		}
		return out, nil

	case isZlibFrame(buf):
		r, err := zlib.NewReader(bytes.NewReader(buf))
		if err != nil {
			return nil, errors.Wrap(err, "zlib frame")
		}
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, "zlib frame")
		}
		return out, nil

	default:
		return buf, nil
	}
}
