// Package wfserr defines the POSIX error taxonomy shared by every layer of
// the filesystem, from the bitmap allocator up through the FUSE operation
// surface.
package wfserr

import (
	"fmt"
	"syscall"
)

// Error wraps a syscall.Errno with the operation and path that triggered it,
// the way a single flat errno code never can on its own.
type Error struct {
	Errno syscall.Errno
	Op    string
	Path  string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Errno.Error())
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Errno.Error())
	}
	return e.Errno.Error()
}

// Unwrap lets callers use errors.Is/As against the underlying syscall.Errno.
func (e *Error) Unwrap() error {
	return e.Errno
}

// New creates an Error for op acting on path.
func New(errno syscall.Errno, op, path string) *Error {
	return &Error{Errno: errno, Op: op, Path: path}
}

// Convenience constructors for the taxonomy in the design document's error
// table. Each pins the errno so callers only supply the op and path.
func NotFound(op, path string) *Error     { return New(syscall.ENOENT, op, path) }
func NotDir(op, path string) *Error       { return New(syscall.ENOTDIR, op, path) }
func IsDir(op, path string) *Error        { return New(syscall.EISDIR, op, path) }
func Exists(op, path string) *Error       { return New(syscall.EEXIST, op, path) }
func NotEmpty(op, path string) *Error     { return New(syscall.ENOTEMPTY, op, path) }
func NoSpace(op, path string) *Error      { return New(syscall.ENOSPC, op, path) }
func IOError(op, path string) *Error      { return New(syscall.EIO, op, path) }
func InvalidArg(op, path string) *Error   { return New(syscall.EINVAL, op, path) }
func AlreadyFree(op, path string) *Error  { return New(syscall.EALREADY, op, path) }

// Errno extracts the underlying syscall.Errno from err, or EIO if err isn't
// one of ours. Used at the opsurface boundary where go-fuse wants a bare
// syscall.Errno, never a Go error value.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	if e, ok := err.(*Error); ok {
		return e.Errno
	}
	return syscall.EIO
}
