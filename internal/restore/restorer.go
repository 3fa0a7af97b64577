package restore

import (
	"bytes"
	"compress/gzip"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"plango/internal/archive"
	"plango/internal/errors"
	"plango/internal/log"
	"plango/internal/util"
)

// tempSuffix marks partially written files. A restored file only takes its
// real name after every integrity check has passed.
const tempSuffix = "._plango_temp"

// Restorer writes selected file revisions beneath a destination directory.
type Restorer struct {
	Archive *archive.Archive

	// Dest is the destination directory. Ignored in dry-run mode.
	Dest string

	// DryRun decodes, decrypts, and verifies without writing anything,
	// which makes it a full integrity check of the selected revisions.
	DryRun bool

	// IncludeDeleted restores the latest non-deleted revision of files
	// whose newest revision is a deletion.
	IncludeDeleted bool

	// At restricts selection to revisions no newer than this Unix time in
	// seconds. Zero means the newest revision.
	At int64
}

// SelectSnapshot picks which revision of a history to restore, mirroring
// the time filter first, then the deletion rules: with IncludeDeleted the
// newest non-deleted revision wins; without it the newest revision is
// restored only if it is not a deletion.
func (r *Restorer) SelectSnapshot(snapshots []archive.Snapshot) (archive.Snapshot, bool) {
	var last, lastNotDeleted archive.Snapshot
	var hasLast, hasLastNotDeleted bool

	for _, snap := range snapshots {
		if r.At > 0 && util.ArchiveTimeToUnix(snap.Version.Timestamp) > r.At {
			break
		}
		last, hasLast = snap, true
		if !snap.Version.IsDeleted() {
			lastNotDeleted, hasLastNotDeleted = snap, true
		}
	}

	if r.IncludeDeleted && hasLastNotDeleted {
		return lastNotDeleted, true
	}
	if hasLast && !last.Version.IsDeleted() {
		return last, true
	}
	return archive.Snapshot{}, false
}

// RestoreEntry restores one manifest entry: it fetches and replays the
// file's history, selects a revision, and writes it out. It reports whether
// a revision was actually restored.
func (r *Restorer) RestoreEntry(entry *archive.ManifestEntry) (bool, error) {
	history, err := r.Archive.FileHistory(entry)
	if err != nil {
		return false, err
	}
	snapshots, err := history.Snapshots()
	if err != nil {
		return false, err
	}

	snap, ok := r.SelectSnapshot(snapshots)
	if !ok {
		return false, nil
	}
	if err := r.RestoreVersion(entry, snap); err != nil {
		return false, err
	}
	return true, nil
}

// RestoreVersion writes one selected revision of entry.
func (r *Restorer) RestoreVersion(entry *archive.ManifestEntry, snap archive.Snapshot) error {
	version := snap.Version

	if strings.Contains(entry.Path, "..") {
		return fmt.Errorf("refusing to restore path %q outside the destination", entry.Path)
	}
	destPath := filepath.Join(r.Dest, filepath.FromSlash(entry.Path))

	switch {
	case version.IsRegularFile():
		if err := r.restoreRegularFile(entry, snap, destPath); err != nil {
			return err
		}

	case version.IsSymlink():
		if err := r.restoreSymlink(entry, snap, destPath); err != nil {
			return err
		}

	case version.IsDirectory():
		if !r.DryRun {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return errors.NewFileError("create", destPath, err)
			}
		}

	default:
		return fmt.Errorf("%w: type %d for %q (device file or resource fork?)",
			errors.ErrUnsupportedFileType, version.FileType, entry.Path)
	}

	if !r.DryRun {
		mtime := time.Unix(util.ArchiveTimeToUnix(version.SourceLastModified), 0)
		if err := os.Chtimes(destPath, mtime, mtime); err != nil {
			// Timestamp trouble should not fail an otherwise good restore.
			log.Warn("failed to update timestamp", log.String("path", destPath), log.Err(err))
		}
	}

	return nil
}

func (r *Restorer) restoreRegularFile(entry *archive.ManifestEntry, snap archive.Snapshot, destPath string) error {
	version := snap.Version

	if version.HandlerID == archive.HandlerCompressFirst128 && r.DryRun {
		// The assembled stream is itself a gzip frame; verifying it needs
		// the spooled temp file that dry-run mode never writes.
		return errors.New("dry run is not supported for compress-first revisions")
	}

	hasher := md5.New()
	sink := io.Writer(hasher)

	var tempPath string
	var tempFile *os.File
	if !r.DryRun {
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return errors.NewFileError("create", filepath.Dir(destPath), err)
		}
		tempPath = destPath + tempSuffix
		var err error
		if tempFile, err = os.Create(tempPath); err != nil {
			return errors.NewFileError("create", tempPath, err)
		}
		sink = io.MultiWriter(hasher, tempFile)
	}

	err := WriteVersionData(r.Archive.Blocks, r.Archive.Key(), snap.BlockList, sink)
	if tempFile != nil {
		if closeErr := tempFile.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}
	if err != nil {
		if tempPath != "" {
			os.Remove(tempPath)
		}
		return err
	}

	if version.HandlerID == archive.HandlerCompressFirst128 {
		return r.finishCompressFirst(tempPath, destPath, version)
	}

	if !bytes.Equal(hasher.Sum(nil), version.SourceChecksum[:]) {
		if tempPath != "" {
			os.Remove(tempPath)
		}
		return errors.Wrap(errors.ErrRestoreIntegrity, "MD5 of restored file is incorrect")
	}

	if !r.DryRun {
		if err := os.Rename(tempPath, destPath); err != nil {
			os.Remove(tempPath)
			return errors.NewFileError("create", destPath, err)
		}
	}
	return nil
}

// finishCompressFirst handles revisions whose reassembled stream is one
// whole-file gzip frame: inflate the spooled temp file into place and
// verify the final MD5 against the inflated bytes.
func (r *Restorer) finishCompressFirst(tempPath, destPath string, version *archive.FileVersion) error {
	defer os.Remove(tempPath)

	in, err := os.Open(tempPath)
	if err != nil {
		return errors.NewFileError("open", tempPath, err)
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return errors.Wrap(errors.ErrRestoreIntegrity, "compress-first stream is not gzip")
	}

	out, err := os.Create(destPath)
	if err != nil {
		return errors.NewFileError("create", destPath, err)
	}

	hasher := md5.New()
	_, err = io.Copy(io.MultiWriter(out, hasher), gz)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath)
		return errors.Wrap(errors.ErrRestoreIntegrity, "inflating compress-first stream")
	}

	if !bytes.Equal(hasher.Sum(nil), version.SourceChecksum[:]) {
		os.Remove(destPath)
		return errors.Wrap(errors.ErrRestoreIntegrity, "MD5 of restored file is incorrect")
	}
	return nil
}

func (r *Restorer) restoreSymlink(entry *archive.ManifestEntry, snap archive.Snapshot, destPath string) error {
	var target bytes.Buffer
	if err := WriteVersionData(r.Archive.Blocks, r.Archive.Key(), snap.BlockList, &target); err != nil {
		return err
	}

	if r.DryRun {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errors.NewFileError("create", filepath.Dir(destPath), err)
	}
	if err := os.Symlink(target.String(), destPath); err != nil {
		return fmt.Errorf("failed to create symlink to %q at %q: %w", target.String(), destPath, err)
	}
	return nil
}
