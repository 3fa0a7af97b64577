package archive

import (
	"plango/internal/errors"
)

// ResolveBlockList expands a revision's block tokens into absolute block
// numbers. Tokens are walked left to right: a non-negative token is an
// absolute block number; a negative token t opens a run copied from the
// previous revision's resolved list, starting at index -(t+1) with the next
// token as the run length. Any access outside the previous list is
// ErrHistoryCorrupt.
func ResolveBlockList(tokens, previous []int64) ([]int64, error) {
	resolved := make([]int64, 0, len(tokens))

	for i := 0; i < len(tokens); {
		t := tokens[i]
		i++

		if t >= 0 {
			resolved = append(resolved, t)
			continue
		}

		if i >= len(tokens) {
			return nil, errors.Wrap(errors.ErrHistoryCorrupt, "back-reference missing run length")
		}
		start := -(t + 1)
		length := tokens[i]
		i++

		if length < 0 || start < 0 || start+length > int64(len(previous)) {
			return nil, errors.Wrap(errors.ErrHistoryCorrupt, "back-reference run out of bounds")
		}
		resolved = append(resolved, previous[start:start+length]...)
	}

	return resolved, nil
}

// Snapshot pairs a revision with its fully resolved block list.
type Snapshot struct {
	Version   *FileVersion
	BlockList []int64
}

// Snapshots replays the history in order, resolving each revision's
// back-references against the previous revision's resolved list. The first
// revision resolves against its own token list, which is well-defined
// because a healthy first revision contains no back-references; if one is
// present the bounds check rejects it.
func (h *FileHistory) Snapshots() ([]Snapshot, error) {
	snapshots := make([]Snapshot, 0, len(h.Versions))

	var previous []int64
	for i, v := range h.Versions {
		ref := previous
		if i == 0 {
			ref = v.BlockInfo
		}
		resolved, err := ResolveBlockList(v.BlockInfo, ref)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, Snapshot{Version: v, BlockList: resolved})
		previous = resolved
	}

	return snapshots, nil
}
