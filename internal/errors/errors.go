// Package errors provides typed errors for Plan G archive operations.
// This enables callers to use errors.Is() and errors.As() for specific error handling.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
// Use errors.Is(err, errors.ErrBadPadding) to check for specific errors.
var (
	// Crypto errors
	ErrBadPadding        = errors.New("bad padding")
	ErrBadPassword       = errors.New("password does not unlock the stored key")
	ErrUnsupportedCipher = errors.New("unsupported cipher code")

	// Decode errors
	ErrShortRead = errors.New("unexpected end of data")
	ErrMalformed = errors.New("malformed record")

	// Block store errors
	ErrBlockMissing      = errors.New("block is not present in any block directory")
	ErrBlockTruncated    = errors.New("block data file ended before the block's payload")
	ErrBlockIndexCorrupt = errors.New("block in datafile's ID differs from the ID requested")

	// History errors
	ErrHistoryPointerMismatch = errors.New("bad revision history pointer for file")
	ErrHistoryCorrupt         = errors.New("revision back-reference points outside the previous block list")

	// Restore errors
	ErrRestoreIntegrity    = errors.New("some blocks in this file did not restore correctly (bad MD5)")
	ErrUnsupportedFileType = errors.New("unsupported file type for restore")
)

// CipherError wraps a decryption failure with the cipher code that produced it.
// A wrapped ErrBadPadding is recoverable; the caller may retry with another
// cipher or another candidate key.
type CipherError struct {
	Code int   // Cipher code 0-5 that was attempted
	Err  error // Underlying error
}

func (e *CipherError) Error() string {
	return fmt.Sprintf("cipher %d: %v", e.Code, e.Err)
}

func (e *CipherError) Unwrap() error {
	return e.Err
}

// BlockError identifies which block of a restore failed and why.
type BlockError struct {
	BlockNum int64
	Err      error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %d: %v", e.BlockNum, e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// FileError represents an error during file operations.
type FileError struct {
	Op   string // Operation: "open", "read", "seek", "stat", "create"
	Path string // File path
	Err  error  // Underlying error
}

func (e *FileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s failed", e.Op, e.Path)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// NewFileError creates a new FileError.
func NewFileError(op, path string, err error) *FileError {
	return &FileError{Op: op, Path: path, Err: err}
}

// Is checks if target matches any of our sentinel errors.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns a new error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsBadPadding reports whether the error is a recoverable padding failure.
func IsBadPadding(err error) bool {
	return errors.Is(err, ErrBadPadding)
}
