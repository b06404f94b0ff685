package errors

import (
	"errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeProvider          ErrCode = "PROVIDER_ERROR"
	ErrCodeTransientTransfer ErrCode = "TRANSIENT_TRANSFER"
	ErrCodeDownloadExhausted ErrCode = "DOWNLOAD_EXHAUSTED"
	ErrCodeHTTPStatus        ErrCode = "HTTP_STATUS"
	ErrCodeExportFailed      ErrCode = "EXPORT_FAILED"
	ErrCodePollTimeout       ErrCode = "POLL_TIMEOUT"
	ErrCodeCleanupWarning    ErrCode = "CLEANUP_WARNING"
	ErrCodeNotFound          ErrCode = "NOT_FOUND"
	ErrCodeBadRequest        ErrCode = "BAD_REQUEST"
	ErrCodeInternal          ErrCode = "INTERNAL_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps a failed GitHub API call
func NewProviderError(operation string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeProvider,
		Message: fmt.Sprintf("%s failed", operation),
		Err:     err,
	}
}

// NewTransientTransferError marks a connection failure during an archive transfer
func NewTransientTransferError(err error) *AppError {
	return &AppError{
		Code:    ErrCodeTransientTransfer,
		Message: "connection interrupted during transfer",
		Err:     err,
	}
}

// NewDownloadExhaustedError reports a download that kept failing after all retries
func NewDownloadExhaustedError(attempts int, err error) *AppError {
	return &AppError{
		Code:    ErrCodeDownloadExhausted,
		Message: fmt.Sprintf("download failed after %d attempts", attempts),
		Err:     err,
	}
}

// NewHTTPStatusError reports a non-success response from the archive host
func NewHTTPStatusError(statusCode int, status string) *AppError {
	return &AppError{
		Code:    ErrCodeHTTPStatus,
		Message: fmt.Sprintf("unexpected status %d (%s)", statusCode, status),
	}
}

// NewExportFailedError reports a migration that GitHub marked as failed
func NewExportFailedError(migrationID int64) *AppError {
	return &AppError{
		Code:    ErrCodeExportFailed,
		Message: fmt.Sprintf("migration %d reported state failed", migrationID),
	}
}

// NewPollTimeoutError reports a migration that did not finish within the poll budget
func NewPollTimeoutError(migrationID int64, attempts int) *AppError {
	return &AppError{
		Code:    ErrCodePollTimeout,
		Message: fmt.Sprintf("migration %d not exported after %d status checks", migrationID, attempts),
	}
}

// NewCleanupWarning reports a failed archive deletion after a successful download
func NewCleanupWarning(migrationID int64, err error) *AppError {
	return &AppError{
		Code:    ErrCodeCleanupWarning,
		Message: fmt.Sprintf("failed to delete archive of migration %d", migrationID),
		Err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "" if there is none
func CodeOf(err error) ErrCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries an AppError with the given code
func Is(err error, code ErrCode) bool {
	return CodeOf(err) == code
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return Is(err, ErrCodeNotFound)
}

// IsTransient checks if the error is a retryable transfer failure
func IsTransient(err error) bool {
	return Is(err, ErrCodeTransientTransfer)
}
