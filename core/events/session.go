package events

import (
	"time"

	"github.com/koscakluka/ema-tutor/core/conversations"
)

// KindSessionStateChanged identifies session lifecycle transitions.
const KindSessionStateChanged Kind = "session.state_changed"

// SessionStateChanged marks a session lifecycle transition.
type SessionStateChanged struct {
	Base
	SessionID string
	From      conversations.SessionState
	To        conversations.SessionState
}

// NewSessionStateChanged creates a session state changed event.
func NewSessionStateChanged(at time.Time, sessionID string, from, to conversations.SessionState) SessionStateChanged {
	return SessionStateChanged{Base: NewBase(KindSessionStateChanged, at), SessionID: sessionID, From: from, To: to}
}
