package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"plango/internal/errors"
	"plango/internal/restore"
)

func newRestoreCommand(opts *globalOptions) *cobra.Command {
	filter := &filterOptions{}
	var dest string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore files from the backup archive",
		Long: `Restore the selected files into --dest, verifying every layer of
checksums on the way.

With --dry-run everything is decoded, decrypted, and verified but
nothing is written, which makes it an integrity check of the archive.
Restored filenames are printed to stdout and errors to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, search, err := filter.matchMode()
			if err != nil {
				return err
			}
			at, err := filter.atTime()
			if err != nil {
				return err
			}

			if !dryRun {
				if dest == "" {
					return errors.New("you must supply --dest to say where restored files should be saved")
				}
				info, err := os.Stat(dest)
				if err != nil || !info.IsDir() {
					return fmt.Errorf("destination %q is not a directory", dest)
				}
			}

			a, err := openArchive(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.ErrOrStderr(), "Caching block indexes in memory...")
			if err := a.CacheBlockIndex(); err != nil {
				return err
			}

			if dryRun {
				fmt.Fprintln(cmd.ErrOrStderr(), "Verifying archive integrity without restoring (dry-run)...")
			} else {
				fmt.Fprintln(cmd.ErrOrStderr(), "Restoring files...")
			}

			r := &restore.Restorer{
				Archive:        a,
				Dest:           dest,
				DryRun:         dryRun,
				IncludeDeleted: filter.includeDeleted,
				At:             at,
			}

			it, err := a.Files(mode, search)
			if err != nil {
				return err
			}
			defer it.Close()

			success := true
			for it.Next() {
				entry := it.Entry()

				if !entry.HasHistory() {
					success = false
					fmt.Fprintf(cmd.ErrOrStderr(), "Error: No revision history found for '%s'\n", entry.Path)
					continue
				}

				restored, err := r.RestoreEntry(entry)
				if err != nil {
					// Per-file failures never abort the rest of the restore.
					success = false
					fmt.Fprintf(cmd.ErrOrStderr(), "Error: Failures occurred while restoring '%s': %v\n", entry.Path, err)
					continue
				}
				if restored {
					fmt.Fprintln(cmd.OutOrStdout(), entry.Path)
				}
			}
			if err := it.Err(); err != nil {
				return err
			}

			if !success {
				return errors.New("errors were encountered during this restore")
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Done!")
			return nil
		},
	}

	filter.register(cmd)
	cmd.Flags().StringVar(&dest, "dest", "", "destination directory for restored files")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "verify integrity of the selected files without writing them to disk")
	return cmd
}
