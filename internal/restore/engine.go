// Package restore reassembles file revisions from archive blocks, verifying
// integrity at every layer: the at-rest MD5 of each block's payload, the
// in-the-clear MD5 of each block after decrypt and decompress, and the MD5
// of the whole restored file against the revision's recorded checksum.
package restore

import (
	"crypto/md5"
	"io"

	"plango/internal/archive"
	"plango/internal/crypto"
	"plango/internal/errors"
	"plango/internal/log"
	"plango/internal/util"
)

// WriteVersionData streams one revision's reassembled bytes to w, walking
// the resolved block list in order.
//
// A block whose at-rest MD5 does not match its payload is never decrypted
// or decompressed; its position in the output is filled with sourceLen zero
// bytes instead, preserving the offsets of everything after it for partial
// recovery. A block whose restored bytes hash wrong is still emitted. In
// both cases the walk continues, and ErrRestoreIntegrity is returned after
// the last block.
func WriteVersionData(blocks *archive.BlockDirectories, key []byte, blockList []int64, w io.Writer) error {
	hasCorruptBlocks := false

	for _, blockNum := range blockList {
		block, err := blocks.ReadBlockHeader(blockNum)
		if err != nil {
			return &errors.BlockError{BlockNum: blockNum, Err: err}
		}
		data, err := blocks.ReadBlockData(blockNum, int(block.BackupLen))
		if err != nil {
			return &errors.BlockError{BlockNum: blockNum, Err: err}
		}

		if block.IsEncrypted() || block.IsCompressed() {
			// Check the archived payload before doing anything interesting
			// like decryption or decompression with it.
			if md5.Sum(data) != block.BackupMD5 {
				log.Warn("block payload corrupt at rest, zero-filling",
					log.Int64("block", blockNum), log.Int("sourceLen", int(block.SourceLen)))
				if err := writeZeros(w, int64(block.SourceLen)); err != nil {
					return err
				}
				hasCorruptBlocks = true
				continue
			}
		}

		if block.IsEncrypted() {
			if data, err = decryptBlock(block, data, key); err != nil {
				return &errors.BlockError{BlockNum: blockNum, Err: err}
			}
		}

		if block.IsCompressed() {
			if data, err = decompressBlock(block, data); err != nil {
				return &errors.BlockError{BlockNum: blockNum, Err: err}
			}
		}

		// The restored block must hash to what the source file's bytes did
		// when they were first backed up.
		if md5.Sum(data) != block.SourceMD5 {
			log.Warn("restored block does not match its source MD5",
				log.Int64("block", blockNum))
			hasCorruptBlocks = true
		}

		if _, err := w.Write(data); err != nil {
			return err
		}
	}

	if hasCorruptBlocks {
		return errors.ErrRestoreIntegrity
	}
	return nil
}

// decryptBlock decrypts one payload. The block header does not record
// whether a Blowfish key was 448 or 128 bits, so a Blowfish-448 padding
// failure is retried once as Blowfish-128; any other padding failure is
// fatal for the file.
func decryptBlock(block *archive.DataBlock, data, key []byte) ([]byte, error) {
	cipherCode := block.Cipher()
	if !crypto.IsValidCipherCode(cipherCode) {
		return nil, errors.ErrUnsupportedCipher
	}

	candidates := []int{cipherCode}
	if cipherCode == crypto.CipherBlowfish448 {
		candidates = append(candidates, crypto.CipherBlowfish128)
	}

	var err error
	for _, code := range candidates {
		var plain []byte
		plain, err = crypto.Decrypt(code, data, key)
		if err == nil {
			return plain, nil
		}
		if !errors.IsBadPadding(err) {
			return nil, err
		}
	}
	return nil, err
}

// decompressBlock inflates one payload. Blocks of unknown type are assumed
// compressed, but old clients sometimes wrote them raw; if inflation fails
// and the payload already hashes to the block's source MD5, it was never
// compressed and passes through as-is.
func decompressBlock(block *archive.DataBlock, data []byte) ([]byte, error) {
	out, err := archive.MaybeDecompress(data)
	if err == nil {
		return out, nil
	}

	if block.Type != archive.BlockTypeUnknown {
		return nil, err
	}
	if md5.Sum(data) == block.SourceMD5 {
		return data, nil
	}
	return nil, err
}

func writeZeros(w io.Writer, n int64) error {
	buf := util.ZeroPool.Get()
	defer util.ZeroPool.Put(buf)

	for n > 0 {
		chunk := int64(len(buf))
		if n < chunk {
			chunk = n
		}
		if _, err := w.Write(buf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
