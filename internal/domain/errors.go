package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sync error taxonomy
var (
	// ErrRemoteUnavailable is a transport or auth failure talking to the remote drive.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrDownloadFailed is a failed or truncated content transfer for one file.
	ErrDownloadFailed = errors.New("download failed")

	// ErrSubscriptionFailed is a rejected watch registration or renewal.
	ErrSubscriptionFailed = errors.New("subscription failed")

	// ErrLocalStore is a filesystem write or delete failure in the mirror.
	ErrLocalStore = errors.New("local store error")
)

// Common domain errors
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidName   = errors.New("name cannot be mirrored")
	ErrDuplicateName = errors.New("duplicate name in remote folder")
	ErrUnknownRoot   = errors.New("unknown root folder")
	ErrMirrorLocked  = errors.New("mirror is locked by another process")
)

// ErrInsufficientSpace is a download refused because the mirror volume is full
var ErrInsufficientSpace = fmt.Errorf("%w: insufficient space", ErrLocalStore)

// FileError records a failure isolated to a single file of a folder run.
type FileError struct {
	FileName string
	Identity string
	Err      error
}

// Error returns the error message
func (e *FileError) Error() string {
	if e.Identity != "" {
		return fmt.Sprintf("%s (%s): %v", e.FileName, e.Identity, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.FileName, e.Err)
}

// Unwrap returns the underlying error
func (e *FileError) Unwrap() error {
	return e.Err
}

// NewFileError creates a new FileError
func NewFileError(name, identity string, err error) *FileError {
	return &FileError{FileName: name, Identity: identity, Err: err}
}

// RetryableError represents an error that should trigger a retry.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried.
// Remote unavailability and failed downloads are retryable on the next pass.
func IsRetryable(err error) bool {
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	return errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrDownloadFailed)
}

// GetRetryAfter returns the retry duration if the error carries one
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}
