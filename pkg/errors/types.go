package errors

import (
	"fmt"
	"net/http"
	"path/filepath"
)

var (
	// ErrNotAuthenticated is returned when the remote instance rejects the
	// configured credentials.
	ErrNotAuthenticated = NewFriendlyError("Not authorized! User/Password may be incorrect.")

	// ErrOperationInProgress is returned when a sync operation is requested
	// while another one is still running.
	ErrOperationInProgress = NewFriendlyError("Another sync operation is already in progress. " +
		"Please wait for it to finish and try again.")

	// ErrNoSyncConfig is returned by file operations while the sync
	// configuration can't be loaded.
	ErrNoSyncConfig = NewFriendlyError("No valid sync configuration is loaded. " +
		"Please fix the sync configuration and try again.")
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// RemoteError is returned when the remote instance responds with a
// non-successful status code.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (err RemoteError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("instance responded with %d (%s)",
			err.StatusCode, http.StatusText(err.StatusCode))
	}
	return fmt.Sprintf("instance responded with %d: %s", err.StatusCode, err.Message)
}

// IsNotAuthenticated returns whether `err` was caused by the instance
// rejecting our credentials.
func IsNotAuthenticated(err error) bool {
	if err == nil {
		return false
	}

	if Is(err, ErrNotAuthenticated) {
		return true
	}

	var remoteErr RemoteError
	return As(err, &remoteErr) && remoteErr.StatusCode == http.StatusUnauthorized
}

// NotTrackedError is returned when an operation is requested on a file that
// has no metadata linking it to a remote record.
type NotTrackedError struct {
	Path string
}

func (err NotTrackedError) Error() string {
	return err.FriendlyMessage()
}

func (err NotTrackedError) FriendlyMessage() string {
	return fmt.Sprintf("File %s is not being tracked", filepath.Base(err.Path))
}

// UnrecognizedFileError is returned when a file path doesn't belong to any
// folder of the sync configuration.
type UnrecognizedFileError struct {
	Path string
}

func (err UnrecognizedFileError) Error() string {
	return err.FriendlyMessage()
}

func (err UnrecognizedFileError) FriendlyMessage() string {
	return fmt.Sprintf("File %s not recognized as a synced record.", err.Path)
}

// ScopeMismatchError is returned when a file's record belongs to a different
// application than the one currently selected on the instance.
type ScopeMismatchError struct {
	FileApplication    string
	CurrentApplication string
}

func (err ScopeMismatchError) Error() string {
	return err.FriendlyMessage()
}

func (err ScopeMismatchError) FriendlyMessage() string {
	return fmt.Sprintf("Record is in application %s, but your current application is %s",
		err.FileApplication, err.CurrentApplication)
}

// ConfigError is returned when the sync configuration can't be used.
type ConfigError struct {
	Path   string
	Reason string
}

func (err ConfigError) Error() string {
	return err.FriendlyMessage()
}

func (err ConfigError) FriendlyMessage() string {
	return fmt.Sprintf("Error while loading sync config file %s: %s", err.Path, err.Reason)
}
