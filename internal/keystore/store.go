// Package keystore reads the client's local key database: an ordered
// key-value store holding the archive data key and related account secrets.
//
// Every value in the store is obfuscated. The outer layer is AES-256-CBC
// with a random IV prepended, keyed by one of an ordered list of platform
// keys: a constant baked into the client, optionally followed by a key
// derived from the machine's serial number. On Windows the values are
// instead protected by the host credential API, modeled here as the
// Protector interface.
package keystore

import (
	"bytes"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"plango/internal/crypto"
	"plango/internal/errors"
	"plango/internal/log"
	"plango/internal/util"
)

// ObfuscationKey is the primary platform key, shared by every consumer
// edition of the client.
const ObfuscationKey = "HWANToDk3L6hcXryaU95X6fasmufN8Ok"

// Well-known row names. The leading 0x01 byte is part of the stored key.
const (
	ArchiveDataKeyName       = "\x01ArchiveDataKey"
	ArchiveSecureDataKeyName = "\x01ArchiveSecureDataKey"
)

// comparerName must match the comparator the client created the database
// with, or the store refuses to open.
const comparerName = "code42.archive.v2.virtual.table"

// code42Comparer orders keys byte-lexicographically, exactly as the client
// does. Separator and Successor perform no key shortening, matching the
// client's no-op implementations; point lookups and iteration stay
// consistent with each other as a result.
type code42Comparer struct{}

func (code42Comparer) Compare(a, b []byte) int           { return bytes.Compare(a, b) }
func (code42Comparer) Name() string                      { return comparerName }
func (code42Comparer) Separator(dst, a, b []byte) []byte { return nil }
func (code42Comparer) Successor(dst, b []byte) []byte    { return nil }

// Protector is the host credential API contract (DPAPI on Windows): it
// reverses OS-level protection of a value. Unprotect reports ok=false when
// the value was not protected by this mechanism, in which case the
// platform-key trial proceeds.
type Protector interface {
	Unprotect(value []byte) (plain []byte, ok bool)
}

// Config carries optional overrides for opening a store.
type Config struct {
	// MacSerial and LinuxSerial override platform identity discovery when
	// reading a store copied from another machine.
	MacSerial   string
	LinuxSerial string

	// Protector overrides the host credential API. Nil selects the
	// platform default (DPAPI on Windows, none elsewhere).
	Protector Protector
}

// Store is an open key database.
type Store struct {
	db        *leveldb.DB
	keys      [][]byte
	protector Protector
}

// Entry is one row of the store as returned by ReadAllKeys.
type Entry struct {
	Key   string
	Value []byte
	// Decrypted is false when no candidate key could unwrap the value;
	// Value then holds the raw obfuscated bytes.
	Decrypted bool
}

// Open opens the key database at path read-only.
func Open(path string, cfg Config) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		ErrorIfMissing: true,
		ReadOnly:       true,
		Compression:    opt.NoCompression,
		Comparer:       code42Comparer{},
	})
	if err != nil {
		return nil, errors.NewFileError("open", path, err)
	}

	protector := cfg.Protector
	if protector == nil {
		protector = defaultProtector()
	}

	return &Store{
		db:        db,
		keys:      platformKeys(cfg.MacSerial, cfg.LinuxSerial),
		protector: protector,
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// deobfuscate strips the outer protection from a stored value: the host
// credential API first if present, then each platform key in order until one
// decrypts with valid padding.
func (s *Store) deobfuscate(value []byte) ([]byte, error) {
	if s.protector != nil {
		if plain, ok := s.protector.Unprotect(value); ok {
			return plain, nil
		}
	}

	for _, key := range s.keys {
		plain, err := crypto.DecryptAES256RandomIV(value, key)
		if err == nil {
			return plain, nil
		}
		if !errors.IsBadPadding(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("no platform key deobfuscates this value (bad serial number?)")
}

// KeyExists reports whether the row is present, without deobfuscating it.
func (s *Store) KeyExists(name string) bool {
	_, err := s.db.Get([]byte(name), nil)
	return err == nil
}

// ReadKey fetches and deobfuscates one row. Failure to deobfuscate surfaces
// as an error.
func (s *Store) ReadKey(name string) ([]byte, error) {
	value, err := s.db.Get([]byte(name), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", name, err)
	}
	return s.deobfuscate(value)
}

// ReadSecureKey fetches a row holding a base64 secure-data-key envelope and
// unwraps it with the account password.
func (s *Store) ReadSecureKey(name, password string) ([]byte, error) {
	value, err := s.ReadKey(name)
	if err != nil {
		return nil, err
	}
	envelope, err := util.Base64Decode(string(value))
	if err != nil {
		return nil, errors.Wrap(errors.ErrMalformed, "secure key row is not base64")
	}
	return crypto.DecryptSecureDataKey(envelope, password)
}

// ReadAllKeys walks every row of the store in key order, deobfuscating each.
// Rows that resist every candidate key are returned raw with Decrypted set
// to false; iteration always proceeds to the end. This is the diagnostic
// path, and deliberately bypasses point lookups: if the comparator were
// wrong, iteration would surface rows that Get cannot see.
func (s *Store) ReadAllKeys() ([]Entry, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var entries []Entry
	for iter.Next() {
		key := string(iter.Key())
		plain, err := s.deobfuscate(iter.Value())
		if err != nil {
			log.Warn("value resists all platform keys", log.String("key", key), log.Err(err))
			entries = append(entries, Entry{Key: key, Value: append([]byte(nil), iter.Value()...)})
			continue
		}
		entries = append(entries, Entry{Key: key, Value: plain, Decrypted: true})
	}
	if err := iter.Error(); err != nil {
		return entries, fmt.Errorf("key store iteration: %w", err)
	}
	return entries, nil
}
