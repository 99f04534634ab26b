package errors

import (
	"fmt"
	"time"
)

// SMSError represents a smshub error with structured information.
type SMSError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Gateway   string    `json:"gateway,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Cause is the original error, not serialized.
	Cause error `json:"-"`

	// Retryable overrides the code-based retry classification when set.
	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *SMSError) Error() string {
	switch {
	case e.Gateway != "" && e.Recipient != "":
		return fmt.Sprintf("%s: %s (gateway: %s, recipient: %s)", e.Code, e.Message, e.Gateway, e.Recipient)
	case e.Gateway != "":
		return fmt.Sprintf("%s: %s (gateway: %s)", e.Code, e.Message, e.Gateway)
	case e.Recipient != "":
		return fmt.Sprintf("%s: %s (recipient: %s)", e.Code, e.Message, e.Recipient)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *SMSError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code.
func (e *SMSError) Is(target error) bool {
	if targetErr, ok := target.(*SMSError); ok {
		return e.Code == targetErr.Code
	}
	return false
}

// WithCause adds a cause error.
func (e *SMSError) WithCause(cause error) *SMSError {
	e.Cause = cause
	return e
}

// WithGateway sets the gateway id.
func (e *SMSError) WithGateway(gateway string) *SMSError {
	e.Gateway = gateway
	return e
}

// WithRecipient sets the recipient.
func (e *SMSError) WithRecipient(recipient string) *SMSError {
	e.Recipient = recipient
	return e
}

// IsRetryable returns whether the error is retryable.
func (e *SMSError) IsRetryable() bool {
	return e.Retryable || IsRetryable(e.Code)
}

// New creates a new SMSError.
func New(code ErrorCode, message string) *SMSError {
	return &SMSError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: IsRetryable(code),
	}
}

// Newf creates a new SMSError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *SMSError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an SMSError.
func Wrap(err error, code ErrorCode, message string) *SMSError {
	return New(code, message).WithCause(err)
}

// Wrapf wraps an existing error with an SMSError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *SMSError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// CodeOf extracts the error code from an error, ErrInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if smsErr, ok := err.(*SMSError); ok {
		return smsErr.Code
	}
	return ErrInternal
}

// IsRetryableError checks whether an error is retryable. Foreign errors are
// treated as non-retryable.
func IsRetryableError(err error) bool {
	if smsErr, ok := err.(*SMSError); ok {
		return smsErr.IsRetryable()
	}
	return false
}

// MultiError represents multiple errors that occurred during one batch.
type MultiError struct {
	Errors []error `json:"errors"`
}

// NewMultiError creates a new MultiError.
func NewMultiError() *MultiError {
	return &MultiError{Errors: make([]error, 0)}
}

// Error implements the error interface.
func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors occurred (%d errors)", len(e.Errors))
}

// Add adds a non-nil error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// ErrorOrNil returns the multi-error if it contains errors, otherwise nil.
func (e *MultiError) ErrorOrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Count returns the number of errors.
func (e *MultiError) Count() int {
	return len(e.Errors)
}
