// Package conversations holds the data model of a live tutoring session:
// sessions, turns and the per-turn audio state.
//
// Values in this package are point-in-time snapshots. The orchestration
// package owns the live records and is their only writer.
package conversations

import (
	"time"

	"github.com/koscakluka/ema-tutor/core/transport"
)

type SessionState string

const (
	SessionIdle       SessionState = "idle"
	SessionConnecting SessionState = "connecting"
	SessionActive     SessionState = "active"
	SessionEnding     SessionState = "ending"
	SessionEnded      SessionState = "ended"
)

// AcceptsTransportEvents reports whether transport events may still mutate
// the session.
func (s SessionState) AcceptsTransportEvents() bool {
	return s == SessionConnecting || s == SessionActive
}

type ProficiencyLevel string

const (
	ProficiencyBeginner     ProficiencyLevel = "beginner"
	ProficiencyIntermediate ProficiencyLevel = "intermediate"
	ProficiencyAdvanced     ProficiencyLevel = "advanced"
)

// UserContext is opaque learner metadata passed through to the transport.
type UserContext map[string]string

// Session identifies one live tutoring exchange.
type Session struct {
	ID               string
	ScenarioID       string
	ProficiencyLevel ProficiencyLevel
	State            SessionState
	StartedAt        time.Time
	EndedAt          time.Time
}

// Connectivity is a snapshot of the transport connectivity record.
type Connectivity struct {
	State              transport.ConnectivityState
	DisconnectionCount int
	LastTransitionAt   time.Time
}
