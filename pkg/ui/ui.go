// Package ui defines how the sync engine interacts with the user, and
// implements it for a terminal.
package ui

// Choices offered when a file has diverged from its remote record.
const (
	ChoiceSkip      = "Skip for now"
	ChoiceOverwrite = "Yes, overwrite"
	ChoiceShowDiff  = "SHOW DIFF"
)

// UI is implemented by the frontends that drive sync operations.
type UI interface {
	// Confirm asks `question` and returns the selected choice.
	Confirm(question string, choices ...string) (string, error)

	// Progress starts reporting progress for a long running operation.
	Progress(title string, cancellable bool) Progress

	// Diff shows the differences between the remote content and the file
	// at `localPath`.
	Diff(remoteContent, localPath string) error

	Info(msg string)
	Error(msg string)
}

// Progress is a handle on a running operation.
type Progress interface {
	// Report sets the completion percentage, and describes the current
	// step.
	Report(percent int, msg string)

	// IsCancelled returns whether the user asked to stop the operation.
	IsCancelled() bool

	// Complete dismisses the progress indicator.
	Complete()
}
