package props

import (
	"os"
	"path/filepath"
	"testing"

	"plango/internal/errors"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "my.service.xml.properties")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `#Fri Jun 05 21:14:52 CDT 2020
secureDataKey=AAAAOJypcFRoZSBrZXkgbWF0ZXJpYWw\=
dataKeyChecksum=0a1b2c3d4e5f60718293a4b5c6d7e8f9
unrelated=ignored
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// The java escape on '=' must be undone by the parser.
	if cfg.SecureDataKey != "AAAAOJypcFRoZSBrZXkgbWF0ZXJpYWw=" {
		t.Errorf("SecureDataKey = %q", cfg.SecureDataKey)
	}
	if cfg.DataKeyChecksum != "0a1b2c3d4e5f60718293a4b5c6d7e8f9" {
		t.Errorf("DataKeyChecksum = %q", cfg.DataKeyChecksum)
	}
}

func TestLoadMissingKey(t *testing.T) {
	path := writeFile(t, "dataKeyChecksum=feed\n")
	if _, err := Load(path); !errors.Is(err, errors.ErrMalformed) {
		t.Errorf("Load without secureDataKey = %v; want ErrMalformed", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.properties")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}
