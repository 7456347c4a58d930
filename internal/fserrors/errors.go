// Package fserrors defines the sentinel errors returned across the storage
// stack, grounded on the teacher's internal/fs/gcsfuse_errors package of
// named, wrappable error values.
package fserrors

import "errors"

var (
	// ErrNotFound is returned when a path component, directory entry, or
	// open handle cannot be located.
	ErrNotFound = errors.New("blockfs: not found")

	// ErrInvalidArgument is returned for a malformed but non-programmer
	// argument: an empty name or path, a name containing '/', a byte-count
	// out of range. Over-length names get ErrNameTooLong instead.
	ErrInvalidArgument = errors.New("blockfs: invalid argument")

	// ErrNoSpace is returned when the free-map has no clear bit left.
	ErrNoSpace = errors.New("blockfs: no space left on device")

	// ErrNameTooLong is returned when a path component exceeds NAME_MAX.
	ErrNameTooLong = errors.New("blockfs: name too long")

	// ErrExists is returned by create/mkdir when the leaf name is already
	// present in the parent directory.
	ErrExists = errors.New("blockfs: already exists")

	// ErrNotEmpty is returned by remove when the target is a non-empty
	// directory.
	ErrNotEmpty = errors.New("blockfs: directory not empty")

	// ErrDirBusy is returned by remove when the target directory is open
	// through a handle other than the remover's own.
	ErrDirBusy = errors.New("blockfs: directory in use")

	// ErrWritesDenied names the deny-write conflict. WriteAt does not return
	// it: while the inode's deny-write count is non-zero, WriteAt reports
	// zero bytes written with a nil error.
	ErrWritesDenied = errors.New("blockfs: writes denied")

	// ErrNotDirectory is returned when a path component that should be a
	// directory is a regular file, or an operation requiring a directory
	// handle is given a file handle.
	ErrNotDirectory = errors.New("blockfs: not a directory")

	// ErrIsDirectory is returned when an operation requiring a regular
	// file handle is given a directory handle.
	ErrIsDirectory = errors.New("blockfs: is a directory")
)
