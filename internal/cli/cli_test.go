package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"plango/internal/archive"
	"plango/internal/archive/archivetest"
	"plango/internal/crypto"
	"plango/internal/crypto/cryptotest"
	"plango/internal/util"
)

func mustAESGzip(content, key, iv []byte) []byte {
	return cryptotest.EncryptAES256RandomIV(archivetest.GzipBytes(content), key, iv)
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// run executes a fresh command tree and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand("test")

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestDeriveKeyCommand(t *testing.T) {
	out, err := run(t, "derive-key", "--user-id", "1234", "--password", "hello")
	if err != nil {
		t.Fatalf("derive-key: %v", err)
	}

	line := strings.TrimSpace(out)
	if len(line) != 112 {
		t.Fatalf("derive-key printed %d hex characters; want 112", len(line))
	}
	want := "783630546C5438426B3D3A4D54497A4E413D3D5246355A45456D4679447A672F546477576643366C6A6D663056513D3A4D54497A4E413D3D"
	if line != want {
		t.Errorf("derive-key = %s\nwant         %s", line, want)
	}
}

func TestDeriveKeyRequiresUserID(t *testing.T) {
	if _, err := run(t, "derive-key", "--password", "hello"); err == nil {
		t.Error("derive-key without --user-id should fail")
	}
}

// listFixture builds a three-file archive and returns its root and key.
func listFixture(t *testing.T) (string, []byte) {
	t.Helper()
	key := bytes.Repeat([]byte{0x09, 0xF3, 0x5C, 0x77}, 14)
	root := filepath.Join(t.TempDir(), "archive")

	content := []byte("hello")
	b := archivetest.NewBuilder(root, key)
	for _, path := range []string{"home/a", "home/b", "other"} {
		b.AddFile(archivetest.File{
			Path:        path,
			PathCipher:  crypto.CipherAES256,
			FileType:    archive.FileTypeFile,
			DataVersion: 2,
			Versions: []archivetest.Version{
				{
					Timestamp:    1577836800000, // 2020-01-01 00:00:00
					LastModified: 1577836800000,
					Length:       int64(len(content)),
					Checksum:     archivetest.MD5(content),
					FileType:     archive.FileTypeFile,
					HandlerID:    archive.HandlerCompressed,
					Tokens:       []int64{0},
				},
				{
					Timestamp:    1590969600000, // 2020-06-01 00:00:00
					LastModified: 1590969600000,
					Length:       int64(len(content)),
					Checksum:     archivetest.MD5(content),
					FileType:     archive.FileTypeFile,
					HandlerID:    archive.HandlerCompressed,
					Tokens:       []int64{-1, 1},
				},
			},
		})
	}
	b.Write()
	return root, key
}

func TestListPrefix(t *testing.T) {
	root, key := listFixture(t)

	out, err := run(t, "list",
		"--archive", root,
		"--key", util.BytesToHex(key),
		"--prefix", "home/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if out != "home/a\nhome/b\n" {
		t.Errorf("list output = %q; want the two home/ paths in manifest order", out)
	}
}

func TestListDetailedLatest(t *testing.T) {
	root, key := listFixture(t)

	out, err := run(t, "list-detailed",
		"--archive", root,
		"--key", util.BytesToHex(key),
		"--filename", "home/a")
	if err != nil {
		t.Fatalf("list-detailed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("list-detailed printed %d lines; want 1 (the newest revision)", len(lines))
	}
	if !strings.Contains(lines[0], "2020-06-01 00:00:00") {
		t.Errorf("line %q does not show the newest revision time", lines[0])
	}
}

func TestListDetailedAt(t *testing.T) {
	root, key := listFixture(t)

	out, err := run(t, "list-detailed",
		"--archive", root,
		"--key", util.BytesToHex(key),
		"--filename", "home/a",
		"--at", "2020-03-01 00:00:00")
	if err != nil {
		t.Fatalf("list-detailed --at: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines; want 1", len(lines))
	}
	if !strings.Contains(lines[0], "2020-01-01 00:00:00") {
		t.Errorf("line %q should show the January revision (newest <= --at)", lines[0])
	}
}

func TestListAll(t *testing.T) {
	root, key := listFixture(t)

	out, err := run(t, "list-all",
		"--archive", root,
		"--key", util.BytesToHex(key),
		"--filename", "home/b")
	if err != nil {
		t.Fatalf("list-all: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Errorf("list-all printed %d lines; want both revisions", len(lines))
	}
}

func TestListRejectsConflictingFilters(t *testing.T) {
	root, key := listFixture(t)
	_, err := run(t, "list",
		"--archive", root,
		"--key", util.BytesToHex(key),
		"--prefix", "a", "--filename", "b")
	if err == nil {
		t.Error("--prefix plus --filename should be rejected")
	}
}

func TestListRequiresArchive(t *testing.T) {
	if _, err := run(t, "list", "--key", "00"); err == nil {
		t.Error("list without --archive should fail")
	}
}

func TestRestoreCommand(t *testing.T) {
	key := bytes.Repeat([]byte{0x2D, 0x91}, 28)
	root := filepath.Join(t.TempDir(), "archive")
	content := []byte("restored through the command surface")

	iv := bytes.Repeat([]byte{0x66}, 16)
	b := archivetest.NewBuilder(root, key)
	b.AddBlock(archivetest.Block{
		Num:       17,
		Payload:   mustAESGzip(content, key, iv),
		SourceLen: int32(len(content)),
		SourceMD5: archivetest.MD5(content),
		Type:      crypto.CipherAES256RandomIV | 0x10,
	})
	b.AddFile(archivetest.File{
		Path:        "x.bin",
		PathCipher:  crypto.CipherAES256RandomIV,
		FileType:    archive.FileTypeFile,
		DataVersion: 2,
		Versions: []archivetest.Version{{
			Timestamp:    1590969600000,
			LastModified: 1590969600000,
			Length:       int64(len(content)),
			Checksum:     archivetest.MD5(content),
			FileType:     archive.FileTypeFile,
			HandlerID:    archive.HandlerCompressed,
			Tokens:       []int64{17},
		}},
	})
	b.Write()

	dest := t.TempDir()
	out, err := run(t, "restore",
		"--archive", root,
		"--key", util.BytesToHex(key),
		"--filename", "x.bin",
		"--dest", dest)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if strings.TrimSpace(out) != "x.bin" {
		t.Errorf("restore stdout = %q; want the restored filename", out)
	}

	got, err := readFile(filepath.Join(dest, "x.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Error("restored file content differs")
	}
}

func TestRestoreRequiresDest(t *testing.T) {
	root, key := listFixture(t)
	if _, err := run(t, "restore", "--archive", root, "--key", util.BytesToHex(key)); err == nil {
		t.Error("restore without --dest should fail")
	}
}
