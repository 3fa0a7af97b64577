package archive

import (
	"bytes"

	"plango/internal/binio"
	"plango/internal/errors"
)

// Storage strategies recorded per revision (handlerId). They select the
// post-assembly transform applied after the block stream is reassembled.
const (
	// HandlerDefault128 stores the file's bytes directly.
	HandlerDefault128 = 0

	// HandlerCompressFirst128 gzips the whole file before chunking it into
	// blocks, so the reassembled stream needs one more decompression pass.
	HandlerCompressFirst128 = 1

	// HandlerUncompressed128 doubles as the symlink handler on old-format
	// archives.
	HandlerUncompressed128 = 2

	// HandlerCompressed and HandlerUncompressed are what modern clients
	// write; compression state is per block, so both restore identically.
	HandlerCompressed   = 4
	HandlerUncompressed = 5

	// HandlerSymlink stores the link target as the file's content.
	HandlerSymlink = 6
)

// historyMagic introduces a versioned history stream. Version-0 streams have
// no magic at all, which leaves a 1-in-65536 chance of a fileId that happens
// to start 0x10 0x92 being taken for a marker. The client shipped with that
// ambiguity and archives were written against it, so it is preserved here
// verbatim.
const historyMagic = 4242

// FileVersion is one archived revision of a file.
type FileVersion struct {
	SourceVersion

	// HandlerID selects the restore strategy; see the Handler constants.
	HandlerID int16

	// MetadataBlockNumber is -1 on dataVersion-0 archives.
	MetadataBlockNumber int64

	// SourceBlocksChecksum is present only for dataVersion >= 2.
	SourceBlocksChecksum []byte

	// BlockInfo is the revision's block token list: non-negative tokens are
	// absolute block numbers, a negative token opens a two-token
	// back-reference run into the previous revision's resolved list.
	BlockInfo []int64
}

func (v *FileVersion) parseFrom(c *binio.Cursor, dataVersion int16) error {
	if err := v.SourceVersion.parseFrom(c); err != nil {
		return err
	}

	var err error
	if v.HandlerID, err = c.Int16(); err != nil {
		return err
	}

	if dataVersion >= 1 {
		if v.MetadataBlockNumber, err = c.Int64(); err != nil {
			return err
		}
	} else {
		v.MetadataBlockNumber = -1
	}

	if dataVersion >= 2 {
		if v.SourceBlocksChecksum, err = c.Bytes(16); err != nil {
			return err
		}
	}

	blockCount, err := c.Int32()
	if err != nil {
		return err
	}
	if blockCount < 0 || int(blockCount)*8 > c.Remaining() {
		return errors.Wrap(errors.ErrMalformed, "revision block count is implausible")
	}

	v.BlockInfo = make([]int64, blockCount)
	for i := range v.BlockInfo {
		if v.BlockInfo[i], err = c.Int64(); err != nil {
			return err
		}
	}
	return nil
}

// FileHistory is the ordered revision list of one file. The order is the
// file order of the history stream, which is chronological; back-reference
// resolution depends on it and the list must never be re-sorted.
type FileHistory struct {
	FileID           [16]byte
	ManifestChecksum []byte
	Versions         []*FileVersion
}

// parseFileHistory decodes an uncompressed history buffer and verifies it
// belongs to wantFileID.
func parseFileHistory(buf []byte, wantFileID [16]byte) (*FileHistory, error) {
	c := binio.NewCursor(buf)

	magic, err := c.Int16()
	if err != nil {
		return nil, errors.Wrap(errors.ErrMalformed, "history too short")
	}

	var dataVersion int16
	if magic == historyMagic {
		if dataVersion, err = c.Int16(); err != nil {
			return nil, errors.Wrap(errors.ErrMalformed, "history too short")
		}
	} else {
		// No marker: a version-0 stream whose first two bytes belong to the
		// fileId.
		c.Unread(2)
	}

	h := &FileHistory{}
	id, err := c.Bytes(16)
	if err != nil {
		return nil, errors.Wrap(errors.ErrMalformed, "history too short")
	}
	copy(h.FileID[:], id)

	if dataVersion >= 2 {
		if h.ManifestChecksum, err = c.Bytes(16); err != nil {
			return nil, errors.Wrap(errors.ErrMalformed, "history too short")
		}
	}

	if !bytes.Equal(h.FileID[:], wantFileID[:]) {
		return nil, errors.ErrHistoryPointerMismatch
	}

	for c.Remaining() > 0 {
		v := &FileVersion{}
		if err := v.parseFrom(c, dataVersion); err != nil {
			return nil, errors.Wrap(err, "revision record")
		}
		h.Versions = append(h.Versions, v)
	}

	return h, nil
}
