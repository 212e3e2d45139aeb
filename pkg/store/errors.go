package store

import (
	"errors"
	"fmt"
	"io/fs"
)

// StoreError represents a domain error from filesystem or store operations.
//
// These are the stable error kinds surfaced to callers. Backend failures that
// do not map to a kind are wrapped with ErrBackend and keep their cause.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the filesystem path (or entry id) related to the error
	Path string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches another *StoreError by code, or the io/fs sentinel that
// corresponds to the code.
func (e *StoreError) Is(target error) bool {
	if t, ok := target.(*StoreError); ok {
		return t.Code == e.Code
	}
	switch target {
	case fs.ErrNotExist:
		return e.Code == ErrNotFound
	case fs.ErrExist:
		return e.Code == ErrAlreadyExists || e.Code == ErrDuplicateKey
	case fs.ErrInvalid:
		return e.Code == ErrInvalidArgument
	}
	return false
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates a path or entry does not exist
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates the (parent, name) slot is taken
	ErrAlreadyExists

	// ErrNotADirectory indicates a path component expected to be a directory is an object
	ErrNotADirectory

	// ErrIsADirectory indicates an operation that needs an object was given a directory
	ErrIsADirectory

	// ErrDirectoryNotEmpty indicates a non-recursive remove of a populated directory
	ErrDirectoryNotEmpty

	// ErrInvalidArgument indicates an empty or malformed path or argument
	ErrInvalidArgument

	// ErrBackend indicates an unmapped failure in the backing store
	ErrBackend

	// ErrDuplicateKey is raised by backends when the unique sibling index
	// rejects a write. The filesystem layer translates it to ErrAlreadyExists.
	ErrDuplicateKey
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "no such file or directory"
	case ErrAlreadyExists:
		return "file exists"
	case ErrNotADirectory:
		return "not a directory"
	case ErrIsADirectory:
		return "is a directory"
	case ErrDirectoryNotEmpty:
		return "directory not empty"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrBackend:
		return "backend error"
	case ErrDuplicateKey:
		return "duplicate key"
	default:
		return "unknown error"
	}
}

// NewError builds a StoreError whose message is the code's description.
func NewError(code ErrorCode, path string) *StoreError {
	return &StoreError{Code: code, Message: code.String(), Path: path}
}

// Errorf builds a StoreError with a formatted message.
func Errorf(code ErrorCode, path string, format string, args ...any) *StoreError {
	return &StoreError{Code: code, Message: fmt.Sprintf(format, args...), Path: path}
}

// NewNotFoundError reports a missing path or entry.
func NewNotFoundError(path string) *StoreError {
	return NewError(ErrNotFound, path)
}

// NewAlreadyExistsError reports an occupied path.
func NewAlreadyExistsError(path string) *StoreError {
	return NewError(ErrAlreadyExists, path)
}

// NewInvalidArgumentError reports a malformed argument.
func NewInvalidArgumentError(path string, reason string) *StoreError {
	if reason == "" {
		return NewError(ErrInvalidArgument, path)
	}
	return Errorf(ErrInvalidArgument, path, "invalid argument: %s", reason)
}

// NewDuplicateKeyError reports a unique-index violation on (parent, name).
func NewDuplicateKeyError(parent ObjectID, name string) *StoreError {
	return Errorf(ErrDuplicateKey, "", "duplicate key (parent=%s, name=%q)", parent, name)
}

// WrapBackend wraps an unmapped backend failure. StoreErrors pass through.
func WrapBackend(err error, op string) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Code: ErrBackend, Message: op, Err: err}
}

// IsCode reports whether err carries a StoreError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// CodeOf returns the code of err, or ErrBackend when err is not a StoreError.
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrBackend
}

// WithPath returns a copy of err with Path replaced, when err is a
// StoreError. Other errors are returned unchanged.
func WithPath(err error, path string) error {
	var se *StoreError
	if !errors.As(err, &se) {
		return err
	}
	cp := *se
	cp.Path = path
	return &cp
}

// BulkWriteError reports the failing operation of an ordered bulk write.
// Operations before Index have been applied.
type BulkWriteError struct {
	Index int
	Err   error
}

func (e *BulkWriteError) Error() string {
	return fmt.Sprintf("bulk write op %d: %v", e.Index, e.Err)
}

func (e *BulkWriteError) Unwrap() error {
	return e.Err
}
