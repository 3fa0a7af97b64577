package archive_test

import (
	"path/filepath"
	"testing"

	"plango/internal/archive"
	"plango/internal/archive/archivetest"
	"plango/internal/crypto"
	"plango/internal/errors"
)

func historyFixture(t *testing.T, f archivetest.File) (*archive.Archive, *archive.ManifestEntry) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "archive")

	b := archivetest.NewBuilder(root, testArchiveKey)
	b.AddFile(f)
	b.Write()

	a, err := archive.Open(root, testArchiveKey)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	it, err := a.Files(archive.MatchAll, "")
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	if !it.Next() {
		t.Fatalf("no manifest entry: %v", it.Err())
	}
	return a, it.Entry()
}

func twoVersions() []archivetest.Version {
	return []archivetest.Version{
		{
			Timestamp:    1577836800000, // 2020-01-01
			LastModified: 1577836800000,
			Length:       8,
			Checksum:     archivetest.MD5([]byte("version1")),
			FileType:     archive.FileTypeFile,
			HandlerID:    archive.HandlerCompressed,
			Tokens:       []int64{10, 11, 12},
		},
		{
			Timestamp:    1590969600000, // 2020-06-01
			LastModified: 1590969600000,
			Length:       8,
			Checksum:     archivetest.MD5([]byte("version2")),
			FileType:     archive.FileTypeFile,
			HandlerID:    archive.HandlerCompressed,
			Tokens:       []int64{-1, 2, 20}, // first two blocks of v1, then block 20
		},
	}
}

func TestFileHistoryDataVersions(t *testing.T) {
	for _, dv := range []int16{0, 1, 2} {
		t.Run(map[int16]string{0: "v0", 1: "v1", 2: "v2"}[dv], func(t *testing.T) {
			a, entry := historyFixture(t, archivetest.File{
				Path:        "data/file.bin",
				PathCipher:  crypto.CipherAES256,
				FileType:    archive.FileTypeFile,
				DataVersion: dv,
				Versions:    twoVersions(),
			})

			h, err := a.FileHistory(entry)
			if err != nil {
				t.Fatalf("FileHistory: %v", err)
			}

			if h.FileID != entry.FileID {
				t.Errorf("history fileId %x != manifest fileId %x", h.FileID, entry.FileID)
			}
			if len(h.Versions) != 2 {
				t.Fatalf("got %d versions; want 2", len(h.Versions))
			}
			if dv >= 2 && h.ManifestChecksum == nil {
				t.Error("dataVersion 2 history should carry a manifest checksum")
			}
			if dv < 2 && h.ManifestChecksum != nil {
				t.Error("old history should not carry a manifest checksum")
			}

			v := h.Versions[0]
			if v.HandlerID != archive.HandlerCompressed {
				t.Errorf("HandlerID = %d", v.HandlerID)
			}
			if dv == 0 && v.MetadataBlockNumber != -1 {
				t.Errorf("dataVersion 0 MetadataBlockNumber = %d; want -1", v.MetadataBlockNumber)
			}
			if len(v.BlockInfo) != 3 {
				t.Errorf("BlockInfo = %v", v.BlockInfo)
			}

			// File order is preserved, not re-sorted.
			if h.Versions[0].Timestamp >= h.Versions[1].Timestamp {
				t.Error("versions out of file order")
			}
		})
	}
}

func TestFileHistoryCompressed(t *testing.T) {
	a, entry := historyFixture(t, archivetest.File{
		Path:        "data/file.bin",
		PathCipher:  crypto.CipherAES256,
		FileType:    archive.FileTypeFile,
		DataVersion: 2,
		GzipHistory: true,
		Versions:    twoVersions(),
	})

	h, err := a.FileHistory(entry)
	if err != nil {
		t.Fatalf("FileHistory on gzip-framed history: %v", err)
	}
	if len(h.Versions) != 2 {
		t.Errorf("got %d versions; want 2", len(h.Versions))
	}
}

func TestFileHistoryPointerMismatch(t *testing.T) {
	a, entry := historyFixture(t, archivetest.File{
		Path:        "data/file.bin",
		PathCipher:  crypto.CipherAES256,
		FileType:    archive.FileTypeFile,
		DataVersion: 2,
		Versions:    twoVersions(),
	})

	// Point the entry at the same offset but claim a different identity.
	entry.FileID[0] ^= 0xFF
	if _, err := a.FileHistory(entry); !errors.Is(err, errors.ErrHistoryPointerMismatch) {
		t.Errorf("FileHistory = %v; want ErrHistoryPointerMismatch", err)
	}
}

func TestFileHistoryNoPointer(t *testing.T) {
	a, entry := historyFixture(t, archivetest.File{
		Path:        "data/file.bin",
		PathCipher:  crypto.CipherAES256,
		FileType:    archive.FileTypeFile,
		DataVersion: 2,
		Versions:    twoVersions(),
	})

	entry.HistoryOffset = -1
	if entry.HasHistory() {
		t.Error("HasHistory with negative offset should be false")
	}
	if _, err := a.FileHistory(entry); err == nil {
		t.Error("FileHistory without a pointer should fail")
	}
}
