package events

import "time"

// KindError identifies an error crossing the public boundary.
const KindError Kind = "error"

type ErrorKind string

const (
	ErrorKindSessionStart     ErrorKind = "session_start"
	ErrorKindConnectivityLost ErrorKind = "connectivity_lost"
)

// Error carries an error that crossed the public boundary.
type Error struct {
	Base
	ErrorKind ErrorKind
	Detail    string
}

// NewError creates an error event.
func NewError(at time.Time, kind ErrorKind, detail string) Error {
	return Error{Base: NewBase(KindError, at), ErrorKind: kind, Detail: detail}
}
