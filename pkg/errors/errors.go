package errors

import (
	goerrors "errors"
	"fmt"
)

// contextError annotates an error with a description of the operation that
// was being attempted when the error occurred.
type contextError struct {
	context string
	err     error
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// WithContext wraps `err` so that its message is prefixed with `context`.
// `context` should be a short description of what was being done, such as
// "read file".
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{context, err}
}

type baseError struct {
	msg string
}

func (err baseError) Error() string {
	return err.msg
}

// New creates a new error with the formatted message.
func New(format string, args ...interface{}) error {
	return baseError{fmt.Sprintf(format, args...)}
}

// friendlyError is an error whose message is meant to be shown directly to
// the user, without any of the context that was added to it.
type friendlyError struct {
	msg string
}

func (err friendlyError) Error() string {
	return err.msg
}

func (err friendlyError) FriendlyMessage() string {
	return err.msg
}

// NewFriendlyError creates an error whose message is printed to the user as
// is.
func NewFriendlyError(format string, args ...interface{}) error {
	return friendlyError{fmt.Sprintf(format, args...)}
}

// Friendly is implemented by errors that know how to describe themselves to
// the user.
type Friendly interface {
	FriendlyMessage() string
}

// RootCause strips all the context added by WithContext and returns the
// original error.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// GetPrintableMessage returns the message that should be shown to the user
// for `err`. If the root cause of the error is user friendly, only the
// friendly message is shown. Otherwise, the full error chain is printed.
func GetPrintableMessage(err error) string {
	if friendly, ok := RootCause(err).(Friendly); ok {
		return friendly.FriendlyMessage()
	}
	return err.Error()
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return goerrors.As(err, target)
}
