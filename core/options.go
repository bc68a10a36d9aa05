package orchestration

import (
	"time"

	"github.com/koscakluka/ema-tutor/core/clock"
	"github.com/koscakluka/ema-tutor/core/conversations"
	"github.com/koscakluka/ema-tutor/core/events"
)

type FlowManagerOption func(*ConversationFlowManager)

// WithClock replaces the wall clock used for timestamps and timers.
func WithClock(clk clock.Clock) FlowManagerOption {
	return func(m *ConversationFlowManager) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// WithEventHandler registers a handler that receives every public event.
// It can be given more than once.
func WithEventHandler(handler EventHandler) FlowManagerOption {
	return func(m *ConversationFlowManager) {
		m.dispatcher.addHandler(handler)
	}
}

// WithCallbacks registers per-event callbacks.
func WithCallbacks(opts ...CallbackOption) FlowManagerOption {
	return func(m *ConversationFlowManager) {
		callbacks := Callbacks{}
		for _, opt := range opts {
			opt(&callbacks)
		}
		m.dispatcher.addHandler(newCallbackEventHandler(callbacks))
	}
}

type Callbacks struct {
	onSessionStateChanged  func(from, to conversations.SessionState)
	onAISpeechStarted      func(responseID int64)
	onAISpeechEnded        func(duration time.Duration)
	onAITranscriptComplete func(text string, reason conversations.CompletionReason)
	onTurnCompleted        func(turn conversations.Turn)
	onAudioStateChanged    func(responseID int64, state conversations.AudioState)
	onConnectivityDegraded func(count int)
	onConnectivityLost     func()
	onError                func(kind events.ErrorKind, detail string)
}

type CallbackOption func(*Callbacks)

func WithSessionStateChangedCallback(callback func(from, to conversations.SessionState)) CallbackOption {
	return func(c *Callbacks) {
		c.onSessionStateChanged = callback
	}
}

func WithAISpeechStartedCallback(callback func(responseID int64)) CallbackOption {
	return func(c *Callbacks) {
		c.onAISpeechStarted = callback
	}
}

// WithAISpeechEndedCallback registers a callback for the end of tutor
// speech. It fires once per turn that started speaking, including turns that
// were forced to complete while audio was still playing.
func WithAISpeechEndedCallback(callback func(duration time.Duration)) CallbackOption {
	return func(c *Callbacks) {
		c.onAISpeechEnded = callback
	}
}

// WithAITranscriptCompleteCallback registers a callback for the final
// transcript of every turn.
//
// The reason tells whether the turn completed naturally, fell back to the
// validation timeout or was forced closed.
func WithAITranscriptCompleteCallback(callback func(text string, reason conversations.CompletionReason)) CallbackOption {
	return func(c *Callbacks) {
		c.onAITranscriptComplete = callback
	}
}

func WithTurnCompletedCallback(callback func(turn conversations.Turn)) CallbackOption {
	return func(c *Callbacks) {
		c.onTurnCompleted = callback
	}
}

// WithAudioStateChangedCallback registers a diagnostic callback fired at
// every audio state mutation of the current turn.
func WithAudioStateChangedCallback(callback func(responseID int64, state conversations.AudioState)) CallbackOption {
	return func(c *Callbacks) {
		c.onAudioStateChanged = callback
	}
}

func WithConnectivityDegradedCallback(callback func(count int)) CallbackOption {
	return func(c *Callbacks) {
		c.onConnectivityDegraded = callback
	}
}

func WithConnectivityLostCallback(callback func()) CallbackOption {
	return func(c *Callbacks) {
		c.onConnectivityLost = callback
	}
}

func WithErrorCallback(callback func(kind events.ErrorKind, detail string)) CallbackOption {
	return func(c *Callbacks) {
		c.onError = callback
	}
}
