package cli

import (
	stderrors "errors"
	"fmt"

	"bank-records/internal/errors"
)

const (
	ExitCodeSuccess  = 0
	ExitCodeGeneric  = 1
	ExitCodeUsage    = 2
	ExitCodeNotFound = 3
	ExitCodeRejected = 4
)

type ExitError struct {
	Code int
	Err  error
	// Reported is set once the error has been written for the user.
	Reported bool
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ExitError) ExitCode() int {
	if e == nil {
		return ExitCodeGeneric
	}
	return e.Code
}

func usageErrorf(format string, args ...any) error {
	return &ExitError{
		Code: ExitCodeUsage,
		Err:  fmt.Errorf(format, args...),
	}
}

// exitCodeFor maps an application error code onto the process exit status.
func exitCodeFor(err error) int {
	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}

	switch errors.CodeOf(err) {
	case errors.InvalidInput, errors.InvalidAmount, errors.ReasonRequired:
		return ExitCodeUsage
	case errors.AccountNotFound:
		return ExitCodeNotFound
	case errors.DuplicateAccount, errors.InsufficientFunds, errors.OverdraftExceeded:
		return ExitCodeRejected
	}
	return ExitCodeGeneric
}

// toAppError gives every failure the AppError shape used for output.
func toAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return errors.NewAppError(errors.InternalError, err.Error())
}
