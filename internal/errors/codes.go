// Package errors carries the typed errors storage operations raise
// internally, mirroring the wire error taxonomy where one exists.
package errors

import (
	"fmt"

	"github.com/hydro-project/anna/internal/wire"
)

// ErrorCode classifies internal storage errors.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = 0

	// Request errors
	ErrCodeKeyNotFound         ErrorCode = 1000
	ErrCodeWrongThread         ErrorCode = 1001
	ErrCodeLatticeMismatch     ErrorCode = 1002
	ErrCodeInvalidKey          ErrorCode = 1003
	ErrCodeValueTooLarge       ErrorCode = 1004
	ErrCodeMissingLatticeType  ErrorCode = 1005
	ErrCodeFailedSerialization ErrorCode = 1006

	// Node errors
	ErrCodeInternal ErrorCode = 2000
	ErrCodeDiskIO   ErrorCode = 2001
	ErrCodeDiskFull ErrorCode = 2002
)

// StorageError is a structured error with a code and an optional cause.
type StorageError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error { return e.Cause }

// WireCode maps the error onto the taxonomy transmitted in response tuples.
func (e *StorageError) WireCode() wire.ErrorCode {
	switch e.Code {
	case ErrCodeOK:
		return wire.NoError
	case ErrCodeKeyNotFound:
		return wire.KeyDNE
	case ErrCodeWrongThread:
		return wire.WrongThread
	case ErrCodeLatticeMismatch, ErrCodeMissingLatticeType:
		return wire.LatticeMismatch
	default:
		return wire.FailedSerialization
	}
}

// New creates a StorageError.
func New(code ErrorCode, message string, cause error) *StorageError {
	return &StorageError{Code: code, Message: message, Cause: cause}
}

// Convenience constructors for common errors

func KeyNotFound(key string) *StorageError {
	return New(ErrCodeKeyNotFound, fmt.Sprintf("key not found: %s", key), nil)
}

func WrongThread(key string) *StorageError {
	return New(ErrCodeWrongThread, fmt.Sprintf("thread not responsible for key: %s", key), nil)
}

func LatticeMismatch(key, got, want string) *StorageError {
	return New(ErrCodeLatticeMismatch,
		fmt.Sprintf("lattice type mismatch for key %s: query is %s but we expect %s", key, got, want), nil)
}

func MissingLatticeType(key string) *StorageError {
	return New(ErrCodeMissingLatticeType, fmt.Sprintf("PUT request for key %s missing lattice type", key), nil)
}

func FailedSerialization(key string, cause error) *StorageError {
	return New(ErrCodeFailedSerialization, fmt.Sprintf("failed to parse payload for key %s", key), cause)
}

func InvalidKey(key, reason string) *StorageError {
	return New(ErrCodeInvalidKey, fmt.Sprintf("invalid key %q: %s", key, reason), nil)
}

func ValueTooLarge(size, maxSize int) *StorageError {
	return New(ErrCodeValueTooLarge, fmt.Sprintf("value size %d exceeds maximum %d", size, maxSize), nil)
}

func DiskIO(message string, cause error) *StorageError {
	return New(ErrCodeDiskIO, message, cause)
}

func DiskFull(usagePercent float64, availableBytes uint64) *StorageError {
	return New(ErrCodeDiskFull,
		fmt.Sprintf("disk full: %.2f%% used, %d bytes available", usagePercent, availableBytes), nil)
}

// IsStorageError checks if an error is a StorageError.
func IsStorageError(err error) bool {
	_, ok := err.(*StorageError)
	return ok
}

// GetCode extracts the error code from an error.
func GetCode(err error) ErrorCode {
	if se, ok := err.(*StorageError); ok {
		return se.Code
	}
	return ErrCodeInternal
}
