// Package vfs defines the error taxonomy and generic transport-facing
// operation surface shared by every filesystem backend in this module
// (btrfs, ext2): the downward contract a backend must satisfy and the
// upward vtables (FileOps/NodeOps) a caller drives it through.
package vfs

import "fmt"

// Error is the closed set of sentinel failures a backend may report across
// the facade boundary. Anything else (I/O failures, malformed on-disk
// structures) is wrapped with fmt.Errorf and recovered with errors.Is
// against these sentinels, or against ErrIO / ErrMalformedFilesystem for
// the catch-all cases.
type Error int

const (
	_ Error = iota
	ErrFileNotFound
	ErrNotDirectory
	ErrIllegalOperationTarget
	ErrUnsupported
	ErrIO
	ErrMalformedFilesystem
)

func (e Error) Error() string {
	switch e {
	case ErrFileNotFound:
		return "file not found"
	case ErrNotDirectory:
		return "not a directory"
	case ErrIllegalOperationTarget:
		return "illegal operation target"
	case ErrUnsupported:
		return "unsupported operation"
	case ErrIO:
		return "I/O error"
	case ErrMalformedFilesystem:
		return "malformed filesystem"
	default:
		return fmt.Sprintf("vfs.Error(%d)", int(e))
	}
}

// Wrap annotates err with msg while preserving errors.Is(err, sentinel).
func Wrap(sentinel Error, msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, sentinel)
	}
	return fmt.Errorf("%s: %w: %w", msg, sentinel, err)
}
