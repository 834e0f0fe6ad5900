package sectorfs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// FSError is the error type returned by every fallible operation in this
// module. All errors can be matched against the sentinel values below with
// [errors.Is], no matter how many times they've been rewrapped.
type FSError interface {
	error
	WithMessage(message string) FSError
	Wrap(err error) FSError
}

type baseFSError string

const rootError = baseFSError("")

var ErrArgumentOutOfRange = rootError.WithMessage("Numerical argument out of domain")
var ErrDirectoryFull = rootError.WithMessage("No free slot in directory")
var ErrExists = rootError.WithMessage("File exists")
var ErrFileTooLarge = rootError.WithMessage("File too large")
var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrInvalidFileDescriptor = rootError.WithMessage("Bad file descriptor")
var ErrIOFailed = rootError.WithMessage("Input/output error")
var ErrIsADirectory = rootError.WithMessage("Is a directory")
var ErrNoSpaceOnDevice = rootError.WithMessage("No space left on device")
var ErrNotADirectory = rootError.WithMessage("Not a directory")
var ErrNotFound = rootError.WithMessage("No such file or directory")

func (e baseFSError) Error() string {
	return string(e)
}

func (e baseFSError) WithMessage(message string) FSError {
	return customFSError{
		message:       message,
		originalError: e,
	}
}

func (e baseFSError) Wrap(err error) FSError {
	return customFSError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customFSError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a
// string describing the error.
func (e customFSError) Error() string {
	return e.message
}

func (e customFSError) WithMessage(message string) FSError {
	return customFSError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customFSError) Wrap(err error) FSError {
	return customFSError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customFSError) Unwrap() error {
	return e.originalError
}
