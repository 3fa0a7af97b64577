// Package cli wires the plango commands: key recovery and derivation,
// archive listing, and restore.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"plango/internal/log"
)

// Version is set by main.
var Version = "dev"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	adbPath     string
	propsPath   string
	keyHex      string
	keyBase64   string
	archivePath string
	password    string
	macSerial   string
	linuxSerial string
	verbose     bool
}

// NewRootCommand assembles the full command tree. Each invocation builds a
// fresh tree with its own flag state, which keeps tests independent.
func NewRootCommand(version string) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "plango",
		Short: "Recover files from CrashPlan backup archives",
		Long: `plango reads, verifies, and restores files from the on-disk backup
archives written by the discontinued CrashPlan/Code42 desktop clients.

Every operation needs the archive's decryption key. Supply it directly
with --key or --key64, recover it from the client's local key store
(--adb) or service configuration (--cpproperties), or derive it from
your account credentials with derive-key.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				log.EnableDebugLogging()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.adbPath, "adb", "", "path to the client's 'adb' key store directory to recover a decryption key from")
	pf.StringVar(&opts.propsPath, "cpproperties", "", "path to the client's service .properties file holding a secureDataKey")
	pf.StringVar(&opts.keyHex, "key", "", "backup decryption key (hexadecimal, not your password)")
	pf.StringVar(&opts.keyBase64, "key64", "", "backup decryption key (base64)")
	pf.StringVar(&opts.archivePath, "archive", "", "root directory of the backup archive")
	pf.StringVar(&opts.password, "password", "", "account or archive password (prompted interactively when needed and not given)")
	pf.StringVar(&opts.macSerial, "mac-serial", "", "macOS hardware serial the key store was written under (for stores copied between machines)")
	pf.StringVar(&opts.linuxSerial, "linux-serial", "", "Linux machine id the key store was written under")
	pf.BoolVar(&opts.verbose, "verbose", false, "log progress detail to stderr")

	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newRecoverKeyCommand(opts),
		newRecoverKeysCommand(opts),
		newDeriveKeyCommand(opts),
		newListCommand(opts, listBasic),
		newListCommand(opts, listDetailed),
		newListCommand(opts, listAll),
		newRestoreCommand(opts),
	)

	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(version string) int {
	Version = version
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
