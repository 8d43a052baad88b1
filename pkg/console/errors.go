package console

import "fmt"

// SynchronizationError indicates the ready prompt was never seen within the
// retry budget. It is fatal to the session.
type SynchronizationError struct {
	Attempts int
	Last     error
}

func (e *SynchronizationError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("failed to get bootloader prompt after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("failed to get bootloader prompt after %d attempts: %v", e.Attempts, e.Last)
}

func (e *SynchronizationError) Unwrap() error {
	return e.Last
}

// CommandFailedError indicates a command's response was a failure, never
// arrived, or could not be read.
type CommandFailedError struct {
	Command string
	Kind    ResponseKind
	Reason  string
	Err     error
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command %q failed: %s", e.Command, e.Reason)
}

func (e *CommandFailedError) Unwrap() error {
	return e.Err
}
