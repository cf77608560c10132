package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorCode string

const (
	AccountNotFound   ErrorCode = "account_not_found"
	DuplicateAccount  ErrorCode = "duplicate_account"
	InvalidAmount     ErrorCode = "invalid_amount"
	InvalidInput      ErrorCode = "invalid_input"
	ReasonRequired    ErrorCode = "reason_required"
	InsufficientFunds ErrorCode = "insufficient_funds"
	OverdraftExceeded ErrorCode = "overdraft_exceeded"
	StorageFailure    ErrorCode = "storage_failure"
	StoreInconsistent ErrorCode = "store_inconsistent"
	InternalError     ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	cause   error
}

func (e AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any AppError carrying the same code, so a predefined error
// still matches after WithDetails has produced a copy.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy so the predefined errors below are never mutated.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// NewStorageFailure wraps a driver error raised while performing op.
func NewStorageFailure(op string, err error) *AppError {
	return &AppError{
		Code:    StorageFailure,
		Message: fmt.Sprintf("failed to %s", op),
		Details: err.Error(),
		cause:   fmt.Errorf("%s: %w", op, err),
	}
}

// Predefined errors for common cases
var (
	ErrAccountNotFound   = NewAppError(AccountNotFound, "account not found")
	ErrDuplicateAccount  = NewAppError(DuplicateAccount, "account already exists")
	ErrInvalidAmount     = NewAppError(InvalidAmount, "amount must be a positive number")
	ErrInvalidInput      = NewAppError(InvalidInput, "invalid input")
	ErrReasonRequired    = NewAppError(ReasonRequired, "a reason is required for amounts over the audit threshold")
	ErrInsufficientFunds = NewAppError(InsufficientFunds, "insufficient funds")
	ErrOverdraftExceeded = NewAppError(OverdraftExceeded, "overdraft limit exceeded")
	ErrStorageFailure    = NewAppError(StorageFailure, "storage failure")
	ErrStoreInconsistent = NewAppError(StoreInconsistent, "in-memory accounts and durable table disagree, reload required")
)

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return InternalError
}

// IsRecoverable reports whether err is a routine negative outcome: unknown
// account, rejected amount or input, or a business-rule rejection.
func IsRecoverable(err error) bool {
	switch CodeOf(err) {
	case AccountNotFound, InvalidAmount, InvalidInput, ReasonRequired, InsufficientFunds, OverdraftExceeded:
		return true
	}
	return false
}
