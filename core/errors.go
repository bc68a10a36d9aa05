package orchestration

import (
	"errors"
	"fmt"
)

var (
	ErrSessionActive     = errors.New("a session is already active")
	ErrSessionAborted    = errors.New("session was stopped before it became active")
	ErrDestroyed         = errors.New("conversation flow manager destroyed")
	ErrTransportRequired = errors.New("transport dialer is required")

	errCleanupPanicked = errors.New("cleanup step panicked")
)

// SessionStartError reports that resources for a session could not be
// acquired. Retrying requires a new StartSession call.
type SessionStartError struct {
	SessionID string
	Err       error
}

func (e *SessionStartError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("failed to start session: %v", e.Err)
	}
	return fmt.Sprintf("failed to start session %s: %v", e.SessionID, e.Err)
}

func (e *SessionStartError) Unwrap() error { return e.Err }

// ConnectivityLostError reports that the transport could not be kept alive
// and the session was terminated.
type ConnectivityLostError struct {
	SessionID          string
	Reason             string
	DisconnectionCount int
}

func (e *ConnectivityLostError) Error() string {
	return fmt.Sprintf("connectivity lost for session %s after %d disconnection(s): %s", e.SessionID, e.DisconnectionCount, e.Reason)
}

// CleanupError collects the teardown steps that failed. Every step is
// attempted regardless of earlier failures.
type CleanupError struct {
	SessionID string
	Err       error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup of session %s incomplete: %v", e.SessionID, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }
