// Package errors provides structured error types for the chunk store.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryChunk    ErrorCategory = "CHUNK"
	ErrCategoryStore    ErrorCategory = "STORE"
	ErrCategoryQuery    ErrorCategory = "QUERY"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryManifest ErrorCategory = "MANIFEST"
	ErrCategoryArchive  ErrorCategory = "ARCHIVE"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Malformed chunk codes
	CodeLengthMismatch   = "LENGTH_MISMATCH"
	CodeFullyNullColumn  = "FULLY_NULL_COLUMN"
	CodeDatatypeMismatch = "DATATYPE_MISMATCH"
	CodeUnsorted         = "UNSORTED"
	CodeTimeRange        = "TIME_RANGE"
	CodeStaticTime       = "STATIC_TIME"
	CodeHeapSize         = "HEAP_SIZE"
	CodeDuplicateColumn  = "DUPLICATE_COLUMN"
	CodeMalformedRecord  = "MALFORMED_RECORD"

	// Store codes
	CodeChunkNotFound = "CHUNK_NOT_FOUND"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Manifest codes
	CodeWriteConflict      = "WRITE_CONFLICT"
	CodeCorruptionDetected = "CORRUPTION_DETECTED"
	CodeEntryNotFound      = "ENTRY_NOT_FOUND"

	// Archive codes
	CodeEncodeFailed = "ENCODE_FAILED"
	CodeDecodeFailed = "DECODE_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// StoreError is the structured error type used throughout the system.
type StoreError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *StoreError) Is(target error) bool {
	var t *StoreError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new StoreError.
func New(category ErrorCategory, code, message string) *StoreError {
	return &StoreError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Newf creates a new StoreError with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *StoreError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new StoreError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *StoreError {
	return &StoreError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *StoreError) WithDetails(details map[string]interface{}) *StoreError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsMalformedChunk reports whether err describes a structurally invalid chunk.
func IsMalformedChunk(err error) bool {
	return GetCategory(err) == ErrCategoryChunk
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a StoreError.
func GetCategory(err error) ErrorCategory {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a StoreError.
func GetCode(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Combine merges errs into a single error, dropping nils.
func Combine(errs ...error) error {
	return multierr.Combine(errs...)
}

// Errors returns the individual errors contained in err.
func Errors(err error) []error {
	return multierr.Errors(err)
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryManifest && code == CodeWriteConflict:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

// NewMalformedChunk reports a structural invariant violation in a chunk.
func NewMalformedChunk(code, format string, args ...interface{}) *StoreError {
	return Newf(ErrCategoryChunk, code, format, args...)
}

func NewStoreError(code, message string) *StoreError {
	return New(ErrCategoryStore, code, message)
}

func NewStorageError(code, message string, cause error) *StoreError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewManifestError(code, message string, cause error) *StoreError {
	return Wrap(ErrCategoryManifest, code, message, cause)
}

func NewArchiveError(code, message string, cause error) *StoreError {
	return Wrap(ErrCategoryArchive, code, message, cause)
}

func NewInternalError(message string, cause error) *StoreError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
