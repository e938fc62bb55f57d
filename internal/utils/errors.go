package utils

import (
	"errors"
	"fmt"
)

// AppError wraps an operation, operator-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// DisplayMessage returns the message suitable for dashboards: the AppError message plus its
// cause when err wraps an AppError, err.Error() otherwise.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			return fmt.Sprintf("%s: %v", appErr.Msg, appErr.Err)
		}
		return appErr.Msg
	}
	return err.Error()
}
