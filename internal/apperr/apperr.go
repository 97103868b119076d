// Package apperr defines the coded errors surfaced by catalog operations.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure independent of the message.
type Code string

const (
	NotFound            Code = "NOT_FOUND"
	InvalidName         Code = "INVALID_NAME"
	InvalidInput        Code = "INVALID_INPUT"
	AlreadyExists       Code = "ALREADY_EXISTS"
	UnsupportedFileType Code = "UNSUPPORTED_FILE_TYPE"
	SourceNotFound      Code = "SOURCE_NOT_FOUND"
	IO                  Code = "IO_ERROR"
	ArchiveRead         Code = "ARCHIVE_READ_ERROR"
	ArchiveWrite        Code = "ARCHIVE_WRITE_ERROR"

	// PartialImport is a report status for imports that skipped entries. It is
	// never returned as an error.
	PartialImport Code = "PARTIAL_IMPORT"
)

// Error carries a Code, a human readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
