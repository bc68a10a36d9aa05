package events

import (
	"time"

	"github.com/koscakluka/ema-tutor/core/conversations"
)

const (
	// KindTurnStarted identifies the start of a response turn.
	KindTurnStarted Kind = "turn_state.started"
	// KindAudioStateChanged identifies an audio state mutation.
	KindAudioStateChanged Kind = "turn_state.audio_state_changed"
	// KindTurnCompleted identifies turn finalisation.
	KindTurnCompleted Kind = "turn_state.completed"
)

// TurnStarted marks the start of a response turn.
type TurnStarted struct {
	Base
	ResponseID int64
}

// NewTurnStarted creates a turn started event.
func NewTurnStarted(at time.Time, responseID int64) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted, at), ResponseID: responseID}
}

// AudioStateChanged carries the audio state right after a mutation.
type AudioStateChanged struct {
	Base
	ResponseID int64
	State      conversations.AudioState
}

// NewAudioStateChanged creates an audio state changed event.
func NewAudioStateChanged(at time.Time, responseID int64, state conversations.AudioState) AudioStateChanged {
	return AudioStateChanged{Base: NewBase(KindAudioStateChanged, at), ResponseID: responseID, State: state}
}

// TurnCompleted carries the finalised turn.
type TurnCompleted struct {
	Base
	Turn conversations.Turn
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(at time.Time, turn conversations.Turn) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted, at), Turn: turn}
}
