package raster

import (
	"errors"
	"fmt"
)

// Error classes shared by every stage of the processing core.
// Match them with errors.Is; the structured errors below unwrap to one of these.
var (
	// ErrPrecondition marks caller misuse: unallocated rows, wrong buffer
	// sizes, dithering rows out of order.
	ErrPrecondition = errors.New("precondition violation")

	// ErrTypeMismatch marks a pixel format or profile combination an
	// operation cannot handle.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrLibrary marks a failure reported by the colour management engine.
	ErrLibrary = errors.New("library error")

	// ErrUninitialised marks a required configuration value that was never set.
	ErrUninitialised = errors.New("uninitialised")

	// ErrOutOfRange is returned for row indices beyond the image height.
	ErrOutOfRange = fmt.Errorf("%w: row out of range", ErrPrecondition)

	// ErrRowNotAllocated is returned when a row is read before it was allocated.
	ErrRowNotAllocated = fmt.Errorf("%w: row not allocated", ErrPrecondition)
)

// UninitialisedError names the class and field that were never given a value.
type UninitialisedError struct {
	Class string
	Field string
}

func (e *UninitialisedError) Error() string {
	if e.Field == "" {
		return e.Class + " is uninitialised"
	}
	return e.Class + "::" + e.Field + " is uninitialised"
}

func (e *UninitialisedError) Unwrap() error { return ErrUninitialised }

// LibraryError carries the message reported by an underlying engine.
type LibraryError struct {
	Lib string
	Msg string
}

func (e *LibraryError) Error() string {
	return "error in " + e.Lib + ": " + e.Msg
}

func (e *LibraryError) Unwrap() error { return ErrLibrary }

// DestinationError reports an invalid value in a destination field.
type DestinationError struct {
	Field string
	Value string
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("invalid value for destination field %q (%q)", e.Field, e.Value)
}

// TypeMismatchf formats an error wrapping ErrTypeMismatch.
func TypeMismatchf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTypeMismatch, fmt.Sprintf(format, args...))
}

// Preconditionf formats an error wrapping ErrPrecondition.
func Preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}
