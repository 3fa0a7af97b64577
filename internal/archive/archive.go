// Package archive decodes on-disk Code42 backup archives: the file
// manifest, the per-file revision history stream, and the content-addressed
// block store.
//
// An archive root holds three things: cpfmf (the file manifest, a flat
// concatenation of variable-size records), cphdf (the history stream,
// random-accessed via offsets carried by manifest records), and one or more
// cpbf directories of block data. Everything sensitive — path names, block
// payloads — is encrypted under a single archive key that lives for the
// duration of a session.
package archive

import (
	"os"
	"path/filepath"

	"plango/internal/errors"
	"plango/internal/log"
)

// Archive file names under the root directory.
const (
	fileManifestName = "cpfmf"
	fileHistoryName  = "cphdf"
)

// Archive is an open backup archive.
type Archive struct {
	root         string
	key          []byte
	manifestPath string
	history      *os.File
	Blocks       *BlockDirectories
}

// Open opens the archive rooted at root, decrypting with key. The block
// directory index is enumerated but not read; call CacheBlockIndex before
// restoring.
func Open(root string, key []byte) (*Archive, error) {
	manifestPath := filepath.Join(root, fileManifestName)
	if !isRegularFile(manifestPath) {
		return nil, errors.NewFileError("open", manifestPath, os.ErrNotExist)
	}

	historyPath := filepath.Join(root, fileHistoryName)
	history, err := os.Open(historyPath)
	if err != nil {
		return nil, errors.NewFileError("open", historyPath, err)
	}

	blocks, err := OpenBlockDirectories(root)
	if err != nil {
		history.Close()
		return nil, err
	}

	log.Info("opened backup archive", log.String("root", root))
	return &Archive{
		root:         root,
		key:          key,
		manifestPath: manifestPath,
		history:      history,
		Blocks:       blocks,
	}, nil
}

// Key returns the archive key.
func (a *Archive) Key() []byte {
	return a.key
}

// Close releases the archive's file handles.
func (a *Archive) Close() error {
	err := a.history.Close()
	if blockErr := a.Blocks.Close(); err == nil {
		err = blockErr
	}
	return err
}

// CacheBlockIndex loads every block directory's manifest into memory, a
// prerequisite for bulk restore.
func (a *Archive) CacheBlockIndex() error {
	return a.Blocks.CacheIndex()
}

// Files returns an iterator over manifest entries whose decrypted path
// satisfies the match. The iterator owns an independent cursor; multiple
// live iterators do not disturb each other.
func (a *Archive) Files(mode MatchMode, search string) (*FileIterator, error) {
	return newFileIterator(a.manifestPath, a.key, mode, search)
}

// FileHistory fetches and decodes the revision list of one manifest entry.
// The stored history may be gzip- or zlib-framed; that is transparent here.
func (a *Archive) FileHistory(entry *ManifestEntry) (*FileHistory, error) {
	if !entry.HasHistory() {
		return nil, errors.Wrap(errors.ErrMalformed, "manifest entry has no history pointer")
	}

	raw := make([]byte, entry.HistoryLength)
	if n, err := a.history.ReadAt(raw, entry.HistoryOffset); n < len(raw) {
		return nil, errors.NewFileError("read", a.history.Name(), err)
	}

	buf, err := MaybeDecompress(raw)
	if err != nil {
		return nil, errors.Wrap(err, "file history")
	}

	return parseFileHistory(buf, entry.FileID)
}
