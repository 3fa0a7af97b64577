package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"plango/internal/archive"
	"plango/internal/errors"
	"plango/internal/log"
	"plango/internal/util"
)

// listKind selects how much detail a list command prints.
type listKind int

const (
	listBasic    listKind = iota // every manifest path, one per line
	listDetailed                 // one selected revision per file
	listAll                      // every revision of every file
)

// filterOptions are the flags shared by the list and restore commands.
type filterOptions struct {
	prefix         string
	filename       string
	includeDeleted bool
	at             string
}

func (f *filterOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "only operate on archived paths with this prefix")
	cmd.Flags().StringVar(&f.filename, "filename", "", "only operate on this exact archived path")
	cmd.Flags().BoolVar(&f.includeDeleted, "include-deleted", false, "include deleted files")
	cmd.Flags().StringVar(&f.at, "at", "", "operate on files as of this time (\"yyyy-mm-dd hh:mm:ss\"); defaults to the newest version")
}

func (f *filterOptions) matchMode() (archive.MatchMode, string, error) {
	if f.prefix != "" && f.filename != "" {
		return archive.MatchAll, "", errors.New("you can't combine the --prefix and --filename flags")
	}
	if f.prefix != "" {
		return archive.MatchPrefix, f.prefix, nil
	}
	if f.filename != "" {
		return archive.MatchEquals, f.filename, nil
	}
	return archive.MatchAll, "", nil
}

func (f *filterOptions) atTime() (int64, error) {
	if f.at == "" {
		return 0, nil
	}
	return util.ParseTime(f.at)
}

// openArchive resolves the key and opens the archive named by --archive.
func openArchive(opts *globalOptions) (*archive.Archive, error) {
	if opts.archivePath == "" {
		return nil, errors.New("you must supply the --archive option")
	}
	key, err := resolveArchiveKey(opts)
	if err != nil {
		return nil, err
	}
	return archive.Open(opts.archivePath, key)
}

func newListCommand(opts *globalOptions, kind listKind) *cobra.Command {
	filter := &filterOptions{}

	use, short := "list", "List every filename that was ever in the backup (including deleted)"
	switch kind {
	case listDetailed:
		use, short = "list-detailed", "List the newest revision of each file (add --at for other times)"
	case listAll:
		use, short = "list-all", "List every revision of each file"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, search, err := filter.matchMode()
			if err != nil {
				return err
			}
			at, err := filter.atTime()
			if err != nil {
				return err
			}

			a, err := openArchive(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			return listFiles(a, cmd.OutOrStdout(), cmd.ErrOrStderr(), kind, mode, search, filter.includeDeleted, at)
		},
	}

	filter.register(cmd)
	return cmd
}

func listFiles(a *archive.Archive, out, errOut io.Writer, kind listKind,
	mode archive.MatchMode, search string, includeDeleted bool, at int64) error {

	it, err := a.Files(mode, search)
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Next() {
		entry := it.Entry()

		if kind == listBasic {
			// Just the filename; no need to fetch history to learn whether
			// the file was deleted.
			fmt.Fprintln(out, entry.Path)
			continue
		}

		if !entry.HasHistory() {
			fmt.Fprintf(errOut, "Error: No revision history found for '%s'\n", entry.Path)
			continue
		}

		history, err := a.FileHistory(entry)
		if err != nil {
			fmt.Fprintf(errOut, "Error: Failed to fetch revisions of '%s': %v\n", entry.Path, err)
			continue
		}
		if len(history.Versions) == 0 {
			continue
		}

		switch {
		case kind == listAll:
			for _, v := range history.Versions {
				printRevision(out, entry, v)
			}

		case at > 0:
			// The newest revision no newer than the requested instant.
			var selected *archive.FileVersion
			for _, v := range history.Versions {
				if util.ArchiveTimeToUnix(v.Timestamp) > at {
					break
				}
				selected = v
			}
			if selected != nil && (includeDeleted || !selected.IsDeleted()) {
				printRevision(out, entry, selected)
			}

		default:
			newest := history.Versions[len(history.Versions)-1]
			if includeDeleted || !newest.IsDeleted() {
				printRevision(out, entry, newest)
			}
		}
	}

	if err := it.Err(); err != nil {
		return err
	}
	log.Debug("listing complete")
	return nil
}

// printRevision writes one revision line: path, length, revision time,
// source mtime, and checksum ("X" for deletions, "-" for directories).
func printRevision(out io.Writer, entry *archive.ManifestEntry, v *archive.FileVersion) {
	var checksum string
	switch {
	case v.IsDeleted():
		checksum = "X"
	case v.IsDirectory():
		checksum = "-"
	default:
		checksum = util.BytesToHex(v.SourceChecksum[:])
	}

	fmt.Fprintf(out, "%s %d %s %s %s\n",
		entry.Path,
		v.SourceLength,
		util.FormatArchiveTime(v.Timestamp),
		util.FormatArchiveTime(v.SourceLastModified),
		checksum,
	)
}
