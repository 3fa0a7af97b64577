package archive

import (
	"io"
	"math"
	"os"
	"strings"

	"plango/internal/binio"
	"plango/internal/crypto"
	"plango/internal/errors"
	"plango/internal/log"
)

// File types recorded per manifest entry and per revision.
const (
	FileTypeFile        = 0
	FileTypeDirectory   = 1
	FileTypeResourceWin = 2
	FileTypeResourceMac = 3
	FileTypeSymlink     = 4
	FileTypeFIFO        = 5
	FileTypeBlockDevice = 6
	FileTypeCharDevice  = 7
	FileTypeSocket      = 8
)

// SourceVersion describes one observation of a source file: when it was
// captured, its mtime, length, whole-file MD5, and type. Timestamps are
// milliseconds since the epoch.
type SourceVersion struct {
	Timestamp          int64
	SourceLastModified int64
	SourceLength       int64
	SourceChecksum     [16]byte
	FileType           byte
}

// sourceVersionSize is the encoded size of a SourceVersion: three int64s,
// an MD5, and the type byte.
const sourceVersionSize = 8 + 8 + 8 + 16 + 1

func (v *SourceVersion) parseFrom(c *binio.Cursor) error {
	var err error
	if v.Timestamp, err = c.Int64(); err != nil {
		return err
	}
	if v.SourceLastModified, err = c.Int64(); err != nil {
		return err
	}
	if v.SourceLength, err = c.Int64(); err != nil {
		return err
	}
	sum, err := c.Bytes(len(v.SourceChecksum))
	if err != nil {
		return err
	}
	copy(v.SourceChecksum[:], sum)
	v.FileType, err = c.Uint8()
	return err
}

// IsDeleted reports whether this revision records the file's deletion: the
// source checksum is all 0xFF.
func (v *SourceVersion) IsDeleted() bool {
	for _, b := range v.SourceChecksum {
		if b != 0xFF {
			return false
		}
	}
	return true
}

func (v *SourceVersion) IsRegularFile() bool { return v.FileType == FileTypeFile }
func (v *SourceVersion) IsDirectory() bool   { return v.FileType == FileTypeDirectory }
func (v *SourceVersion) IsSymlink() bool     { return v.FileType == FileTypeSymlink }

func (v *SourceVersion) IsResourceFork() bool {
	return v.FileType == FileTypeResourceWin || v.FileType == FileTypeResourceMac
}

func (v *SourceVersion) IsDeviceFile() bool {
	return v.FileType >= FileTypeFIFO && v.FileType <= FileTypeSocket
}

// ManifestEntry is one record of the file manifest: identity, a summary of
// the newest revision, a pointer into the history file, and the decrypted
// path.
type ManifestEntry struct {
	FileID        [16]byte
	ParentFileID  [16]byte
	FileType      byte
	Version       SourceVersion
	HistoryOffset int64
	HistoryLength int32
	Path          string
}

// HasHistory reports whether the entry's history pointer is usable.
func (e *ManifestEntry) HasHistory() bool {
	return e.HistoryOffset >= 0 && e.HistoryLength > 0 && e.HistoryLength < math.MaxInt32
}

// MatchMode selects how a search string is applied to decrypted paths.
type MatchMode int

const (
	MatchAll MatchMode = iota
	MatchPrefix
	MatchEquals
)

func (m MatchMode) matches(path, search string) bool {
	switch m {
	case MatchPrefix:
		return strings.HasPrefix(path, search)
	case MatchEquals:
		return path == search
	default:
		return true
	}
}

// Encrypted-path framing: a four-byte magic, a format version, and the
// cipher code, followed by ciphertext. Older archives store bare
// Blowfish-128 ciphertext with no framing at all.
const (
	pathMagic     = -420042000 // 0xE6FFBAF0 as a big-endian int32
	pathHeaderLen = 6
)

// decryptPath recovers a manifest path with the archive key.
func decryptPath(enc, key []byte) (string, error) {
	if len(enc) > pathHeaderLen {
		c := binio.NewCursor(enc)
		magic, _ := c.Int32()
		version, _ := c.Uint8()
		cipherCode, _ := c.Uint8()

		if magic == pathMagic && version == 1 {
			if !crypto.IsValidCipherCode(int(cipherCode)) {
				return "", errors.Wrap(errors.ErrUnsupportedCipher, "encrypted path")
			}
			plain, err := crypto.Decrypt(int(cipherCode), enc[pathHeaderLen:], key)
			if err != nil {
				return "", errors.Wrap(err, "encrypted path")
			}
			return string(plain), nil
		}
	}

	// No magic: legacy archives encrypt paths with headerless Blowfish-128.
	plain, err := crypto.DecryptBlowfish128(enc, key)
	if err != nil {
		return "", errors.Wrap(err, "encrypted path (legacy form)")
	}
	return string(plain), nil
}

// fixedPrefixSize is the size of a manifest record before its
// variable-length path.
const fixedPrefixSize = 16 + 16 + 1 + sourceVersionSize + 8 + 4 + 2

// FileIterator streams matching entries from the file manifest. Each
// iterator owns an independent handle on the manifest file, so clones
// advance without disturbing one another.
type FileIterator struct {
	path   string
	f      *os.File
	key    []byte
	mode   MatchMode
	search string

	entry *ManifestEntry
	done  bool
	err   error
}

func newFileIterator(path string, key []byte, mode MatchMode, search string) (*FileIterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewFileError("open", path, err)
	}
	return &FileIterator{path: path, f: f, key: key, mode: mode, search: search}, nil
}

// Next advances to the next matching entry. It returns false when the
// manifest is exhausted or a fatal error occurred; check Err afterwards.
func (it *FileIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	for {
		entry, ok, err := it.readEntry()
		if err != nil {
			it.err = err
			return false
		}
		if !ok {
			it.done = true
			it.entry = nil
			return false
		}
		if entry == nil {
			// Record skipped (undecryptable path); keep going.
			continue
		}
		if it.mode.matches(entry.Path, it.search) {
			it.entry = entry
			return true
		}
	}
}

// readEntry reads one raw record. It returns (nil, false, nil) at a clean
// end of the manifest, and (nil, true, nil) for a record that should be
// skipped.
func (it *FileIterator) readEntry() (*ManifestEntry, bool, error) {
	prefix, err := binio.ReadBytes(it.f, fixedPrefixSize)
	if err == io.EOF {
		return nil, false, nil
	}
	if errors.Is(err, errors.ErrShortRead) {
		// The manifest ends inside a record's fixed prefix. The declared
		// path length would be garbage, so iteration stops here.
		log.Warn("file manifest ends mid-record", log.String("manifest", it.path))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewFileError("read", it.path, err)
	}

	c := binio.NewCursor(prefix)
	entry := &ManifestEntry{}

	id, _ := c.Bytes(16)
	copy(entry.FileID[:], id)
	parent, _ := c.Bytes(16)
	copy(entry.ParentFileID[:], parent)
	entry.FileType, _ = c.Uint8()

	if err := entry.Version.parseFrom(c); err != nil {
		return nil, false, err
	}

	entry.HistoryOffset, _ = c.Int64()
	entry.HistoryLength, _ = c.Int32()
	encPathLen, _ := c.Int16()

	encPath, err := binio.ReadBytes(it.f, int(uint16(encPathLen)))
	if err != nil {
		log.Warn("file manifest ends mid-path", log.String("manifest", it.path))
		return nil, false, nil
	}

	path, err := decryptPath(encPath, it.key)
	if err != nil {
		log.Warn("skipping manifest entry with undecryptable path",
			log.Hex("fileId", entry.FileID[:]), log.Err(err))
		return nil, true, nil
	}
	entry.Path = path

	return entry, true, nil
}

// Entry returns the entry found by the last successful Next.
func (it *FileIterator) Entry() *ManifestEntry {
	return it.entry
}

// Err returns the first fatal error hit during iteration.
func (it *FileIterator) Err() error {
	return it.err
}

// Close releases the iterator's manifest handle.
func (it *FileIterator) Close() error {
	return it.f.Close()
}

// Clone returns an independent iterator positioned exactly where this one
// is. The clone holds its own file handle; advancing either iterator leaves
// the other untouched.
func (it *FileIterator) Clone() (*FileIterator, error) {
	offset, err := it.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.NewFileError("seek", it.path, err)
	}

	f, err := os.Open(it.path)
	if err != nil {
		return nil, errors.NewFileError("open", it.path, err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, errors.NewFileError("seek", it.path, err)
	}

	clone := *it
	clone.f = f
	return &clone, nil
}

// Equal reports whether two iterators are at the same position. Position is
// the pair (file offset, finished); the current entry does not participate.
func (it *FileIterator) Equal(other *FileIterator) bool {
	if it.done != other.done {
		return false
	}
	if it.done {
		return true
	}
	a, errA := it.f.Seek(0, io.SeekCurrent)
	b, errB := other.f.Seek(0, io.SeekCurrent)
	return errA == nil && errB == nil && a == b
}
