package archive

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"plango/internal/binio"
	"plango/internal/crypto"
	"plango/internal/errors"
	"plango/internal/log"
)

// Block directory layout. Each directory is named "cpbf" plus the 19-digit
// decimal number of its first block, and holds a manifest (cpbmf) mapping
// local block numbers to offsets in the data file (cpbdf).
const (
	blockFolderPrefix = "cpbf"
	blockFolderDigits = 19

	blockManifestHeaderSize = 256
	blockManifestRecordSize = 9

	blockDataFileHeaderSize = 256
	blockHeaderSize         = 53
)

// Block manifest entry states.
const (
	BlockStateNormal  = 0
	BlockStateDeleted = -2
)

// DataBlock type field: -1 means the writing client recorded nothing and the
// block is treated as Blowfish-128 encrypted and compressed. Otherwise the
// low four bits carry the cipher code and two flag bits mark the
// compression framing.
const (
	BlockTypeUnknown    = -1
	blockTypeCipherMask = 0x0F
	blockTypeGzipFlag   = 0x10
	blockTypeZlibFlag   = 0x20
)

// DataBlock is the 53-byte header preceding each block payload in a cpbdf
// file. SourceChecksum is a narrow legacy checksum, distinct from the MD5s.
type DataBlock struct {
	BlockNum       int64
	SourceLen      int32
	SourceChecksum int32
	SourceMD5      [16]byte
	Type           int8
	BackupLen      int32
	BackupMD5      [16]byte
}

// Cipher returns the block's cipher code.
func (b *DataBlock) Cipher() int {
	if b.Type == BlockTypeUnknown {
		return crypto.CipherBlowfish128
	}
	return int(b.Type) & blockTypeCipherMask
}

// IsEncrypted reports whether the payload needs decryption.
func (b *DataBlock) IsEncrypted() bool {
	return b.Cipher() != crypto.CipherNone
}

// IsCompressed reports whether the payload carries a compression frame.
func (b *DataBlock) IsCompressed() bool {
	if b.Type == BlockTypeUnknown {
		return true
	}
	return int(b.Type)&(blockTypeGzipFlag|blockTypeZlibFlag) != 0
}

func parseDataBlock(buf []byte) (*DataBlock, error) {
	c := binio.NewCursor(buf)
	b := &DataBlock{}
	var err error

	if b.BlockNum, err = c.Int64(); err != nil {
		return nil, err
	}
	if b.SourceLen, err = c.Int32(); err != nil {
		return nil, err
	}
	if b.SourceChecksum, err = c.Int32(); err != nil {
		return nil, err
	}
	md5sum, err := c.Bytes(len(b.SourceMD5))
	if err != nil {
		return nil, err
	}
	copy(b.SourceMD5[:], md5sum)
	if b.Type, err = c.Int8(); err != nil {
		return nil, err
	}
	if b.BackupLen, err = c.Int32(); err != nil {
		return nil, err
	}
	md5sum, err = c.Bytes(len(b.BackupMD5))
	if err != nil {
		return nil, err
	}
	copy(b.BackupMD5[:], md5sum)

	return b, nil
}

// blockManifestEntry locates one block in a directory's data file.
type blockManifestEntry struct {
	offset int64
	state  int8
}

func (e blockManifestEntry) valid() bool {
	return e.offset >= 0 && e.state >= 0
}

// blockDir is one cpbf directory: its manifest entries, once cached, and an
// open handle on its data file.
type blockDir struct {
	path          string
	firstBlockNum int64
	entries       []blockManifestEntry
	data          *os.File
}

// load reads the directory's manifest into memory and opens the data file
// for random access.
func (d *blockDir) load() error {
	manifestPath := filepath.Join(d.path, "cpbmf")

	f, err := os.Open(manifestPath)
	if err != nil {
		return errors.NewFileError("open", manifestPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.NewFileError("stat", manifestPath, err)
	}
	if info.Size() < blockManifestHeaderSize {
		return errors.Wrap(errors.ErrMalformed, "block manifest shorter than its header")
	}
	if _, err := f.Seek(blockManifestHeaderSize, io.SeekStart); err != nil {
		return errors.NewFileError("seek", manifestPath, err)
	}

	count := (info.Size() - blockManifestHeaderSize) / blockManifestRecordSize
	raw, err := binio.ReadBytes(f, int(count)*blockManifestRecordSize)
	if err != nil {
		return errors.NewFileError("read", manifestPath, err)
	}

	c := binio.NewCursor(raw)
	d.entries = make([]blockManifestEntry, count)
	for i := range d.entries {
		d.entries[i].offset, _ = c.Int64()
		d.entries[i].state, _ = c.Int8()
	}

	dataPath := filepath.Join(d.path, "cpbdf")
	if d.data, err = os.Open(dataPath); err != nil {
		return errors.NewFileError("open", dataPath, err)
	}
	return nil
}

// entryFor maps an absolute block number to this directory's manifest
// entry, or reports ErrBlockMissing.
func (d *blockDir) entryFor(blockNum int64) (blockManifestEntry, error) {
	local := blockNum - d.firstBlockNum
	if local < 0 || local >= int64(len(d.entries)) {
		return blockManifestEntry{}, errors.ErrBlockMissing
	}
	e := d.entries[local]
	if !e.valid() {
		return blockManifestEntry{}, errors.ErrBlockMissing
	}
	if e.offset < blockDataFileHeaderSize {
		// An offset inside the data file's own header is impossible.
		return blockManifestEntry{}, errors.ErrBlockMissing
	}
	return e, nil
}

// BlockDirectories is the set of a backup archive's block directories,
// sorted by first block number. Block N is served by the directory with the
// greatest firstBlockNum <= N.
type BlockDirectories struct {
	root   string
	dirs   []*blockDir
	cached bool
}

// OpenBlockDirectories enumerates the archive root for valid block
// directories. Manifests are not read until CacheIndex.
func OpenBlockDirectories(root string) (*BlockDirectories, error) {
	listing, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.NewFileError("open", root, err)
	}

	bd := &BlockDirectories{root: root}
	for _, entry := range listing {
		name := entry.Name()
		if !entry.IsDir() || !isBlockDirName(name) {
			continue
		}
		dirPath := filepath.Join(root, name)
		if !isRegularFile(filepath.Join(dirPath, "cpbmf")) || !isRegularFile(filepath.Join(dirPath, "cpbdf")) {
			continue
		}

		first, err := strconv.ParseUint(name[len(blockFolderPrefix):], 10, 64)
		if err != nil {
			continue
		}
		bd.dirs = append(bd.dirs, &blockDir{path: dirPath, firstBlockNum: int64(first)})
	}

	sort.Slice(bd.dirs, func(i, j int) bool {
		return bd.dirs[i].firstBlockNum < bd.dirs[j].firstBlockNum
	})

	log.Debug("found block directories", log.Int("count", len(bd.dirs)), log.String("root", root))
	return bd, nil
}

func isBlockDirName(name string) bool {
	if len(name) != len(blockFolderPrefix)+blockFolderDigits ||
		name[:len(blockFolderPrefix)] != blockFolderPrefix {
		return false
	}
	for _, c := range name[len(blockFolderPrefix):] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// CacheIndex loads every directory's manifest into memory and opens its
// data file. Must be called once before block reads.
func (bd *BlockDirectories) CacheIndex() error {
	for _, d := range bd.dirs {
		if err := d.load(); err != nil {
			return err
		}
	}
	bd.cached = true
	return nil
}

// Close releases the data file handles held since CacheIndex.
func (bd *BlockDirectories) Close() error {
	var firstErr error
	for _, d := range bd.dirs {
		if d.data != nil {
			if err := d.data.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			d.data = nil
		}
	}
	return firstErr
}

// dirFor picks the directory owning blockNum: the one with the greatest
// firstBlockNum <= blockNum, falling back to the first directory (whose
// range check then rejects the block).
func (bd *BlockDirectories) dirFor(blockNum int64) (*blockDir, error) {
	if !bd.cached {
		return nil, errors.New("block index not cached; call CacheIndex before reading blocks")
	}
	if len(bd.dirs) == 0 {
		return nil, errors.ErrBlockMissing
	}
	i := sort.Search(len(bd.dirs), func(i int) bool {
		return bd.dirs[i].firstBlockNum > blockNum
	})
	if i == 0 {
		return bd.dirs[0], nil
	}
	return bd.dirs[i-1], nil
}

// ReadBlockHeader locates blockNum and parses its 53-byte header. The
// header's own block number must agree with the one requested; a mismatch
// means the manifest's offset was stale or corrupt.
func (bd *BlockDirectories) ReadBlockHeader(blockNum int64) (*DataBlock, error) {
	d, err := bd.dirFor(blockNum)
	if err != nil {
		return nil, err
	}
	e, err := d.entryFor(blockNum)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, blockHeaderSize)
	if n, err := d.data.ReadAt(buf, e.offset); n < len(buf) {
		return nil, errors.Wrap(errors.ErrBlockTruncated, err.Error())
	}

	block, err := parseDataBlock(buf)
	if err != nil {
		return nil, err
	}
	if block.BlockNum != blockNum {
		return nil, errors.ErrBlockIndexCorrupt
	}
	return block, nil
}

// ReadBlockData returns length bytes of blockNum's payload, which begins
// immediately after the block header.
func (bd *BlockDirectories) ReadBlockData(blockNum int64, length int) ([]byte, error) {
	d, err := bd.dirFor(blockNum)
	if err != nil {
		return nil, err
	}
	e, err := d.entryFor(blockNum)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	if n, _ := d.data.ReadAt(buf, e.offset+blockHeaderSize); n < length {
		return nil, errors.ErrBlockTruncated
	}
	return buf, nil
}
