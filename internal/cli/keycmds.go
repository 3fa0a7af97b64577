package cli

import (
	"crypto/md5"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"plango/internal/crypto"
	"plango/internal/errors"
	"plango/internal/keystore"
	"plango/internal/log"
	"plango/internal/props"
	"plango/internal/util"
)

// Default key-store locations checked when none of --key, --key64,
// --cpproperties or --adb is given. Reading them usually needs root, and the client service must not
// be running (it holds a lock on the store).
var defaultADBPaths = []string{
	"/Library/Application Support/CrashPlan/conf/adb",
	"/usr/local/crashplan/conf/adb",
}

func findADBPath(opts *globalOptions) string {
	if opts.adbPath != "" {
		return opts.adbPath
	}
	for _, path := range defaultADBPaths {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path
		}
	}
	return ""
}

func openKeyStore(opts *globalOptions, path string) (*keystore.Store, error) {
	store, err := keystore.Open(path, keystore.Config{
		MacSerial:   opts.macSerial,
		LinuxSerial: opts.linuxSerial,
	})
	if err != nil {
		return nil, fmt.Errorf("opening key store %q (is the client service still running, holding its lock?): %w", path, err)
	}
	return store, nil
}

// keyFromStore recovers the archive key from an open key store: the plain
// ArchiveDataKey row when present, otherwise the password-wrapped
// ArchiveSecureDataKey row.
func keyFromStore(opts *globalOptions, store *keystore.Store) ([]byte, error) {
	key, err := store.ReadKey(keystore.ArchiveDataKeyName)
	if err == nil && len(key) > 0 {
		return key, nil
	}

	if !store.KeyExists(keystore.ArchiveSecureDataKeyName) {
		if err == nil {
			err = errors.New("stored key was empty")
		}
		return nil, fmt.Errorf("reading ArchiveDataKey: %w", err)
	}

	log.Info("archive key is password-protected, unwrapping ArchiveSecureDataKey")
	password, err := passwordFor(opts,
		"The stored key is encrypted with your account or archive password.\nPassword: ")
	if err != nil {
		return nil, err
	}
	return store.ReadSecureKey(keystore.ArchiveSecureDataKeyName, password)
}

// keyFromProperties unwraps the secureDataKey envelope carried by a service
// .properties file.
func keyFromProperties(opts *globalOptions) ([]byte, error) {
	cfg, err := props.Load(opts.propsPath)
	if err != nil {
		return nil, err
	}
	envelope, err := util.Base64Decode(cfg.SecureDataKey)
	if err != nil {
		return nil, fmt.Errorf("secureDataKey is not base64: %w", err)
	}

	password, err := passwordFor(opts,
		"The secureDataKey is encrypted with your account or archive password.\nPassword: ")
	if err != nil {
		return nil, err
	}

	key, err := crypto.DecryptSecureDataKey(envelope, password)
	if err != nil {
		return nil, err
	}

	if cfg.DataKeyChecksum != "" {
		recorded := strings.ToLower(cfg.DataKeyChecksum)
		actual := fmt.Sprintf("%x", md5.Sum(key))
		if recorded != actual {
			log.Warn("unwrapped key does not match dataKeyChecksum",
				log.String("recorded", recorded), log.String("actual", actual))
		}
	}
	return key, nil
}

// resolveArchiveKey obtains the archive key from, in order of preference:
// --key, --key64, --cpproperties, --adb (including the default store
// locations).
func resolveArchiveKey(opts *globalOptions) ([]byte, error) {
	if opts.keyHex != "" {
		return util.HexToBytes(opts.keyHex)
	}
	if opts.keyBase64 != "" {
		return util.Base64Decode(opts.keyBase64)
	}
	if opts.propsPath != "" {
		return keyFromProperties(opts)
	}

	if path := findADBPath(opts); path != "" {
		store, err := openKeyStore(opts, path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return keyFromStore(opts, store)
	}

	return nil, errors.New("couldn't find your decryption key automatically; supply one of --key, --key64, --adb, or --cpproperties")
}

func newRecoverKeyCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recover-key",
		Short: "Recover the archive decryption key from a key store or properties file",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := resolveArchiveKey(opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Here's your recovered decryption key (for use with --key):")
			fmt.Fprintln(cmd.OutOrStdout(), util.BytesToHex(key))
			return nil
		},
	}
}

func newRecoverKeysCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recover-keys",
		Short: "Dump every deobfuscated row of the key store, then recover the archive key",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := findADBPath(opts)
			if path == "" {
				return errors.New("recover-keys needs --adb (or a client install in the default location)")
			}
			store, err := openKeyStore(opts, path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.ReadAllKeys()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.ErrOrStderr(), "All unobfuscated values from the key store:")
			for _, e := range entries {
				name := strings.TrimPrefix(e.Key, "\x01")
				switch {
				case !e.Decrypted:
					fmt.Fprintf(cmd.OutOrStdout(), "%s (undecryptable, hex) = %s\n", name, util.BytesToHex(e.Value))
				case util.IsPrintable(e.Value):
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", name, e.Value)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%s (hex) = %s\n", name, util.BytesToHex(e.Value))
				}
			}

			key, err := keyFromStore(opts, store)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "\nHere's your recovered decryption key (for use with --key):")
			fmt.Fprintln(cmd.OutOrStdout(), util.BytesToHex(key))
			return nil
		},
	}
}

func newDeriveKeyCommand(opts *globalOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "derive-key",
		Short: "Derive an archive key from your user id and passphrase",
		Long: `Derive an archive key from your numeric account user id and archive
passphrase, for accounts configured with a custom archive key. The
result is printed in hex for use with --key.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("derive-key needs --user-id")
			}
			passphrase, err := passwordFor(opts, "Archive passphrase: ")
			if err != nil {
				return err
			}

			key := crypto.DeriveCustomArchiveKeyV2(userID, passphrase)
			defer crypto.SecureZero(key)

			fmt.Fprintln(cmd.OutOrStdout(), util.BytesToHex(key))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "numeric account user id the key was derived under")
	return cmd
}
