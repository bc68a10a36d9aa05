package events

import "time"

const (
	// KindAISpeechStarted identifies the start of tutor speech.
	KindAISpeechStarted Kind = "ai_speech.started"
	// KindAISpeechEnded identifies the end of tutor speech.
	KindAISpeechEnded Kind = "ai_speech.ended"
)

// AISpeechStarted marks the start of tutor speech for a response.
type AISpeechStarted struct {
	Base
	ResponseID int64
}

// NewAISpeechStarted creates an AI speech started event.
func NewAISpeechStarted(at time.Time, responseID int64) AISpeechStarted {
	return AISpeechStarted{Base: NewBase(KindAISpeechStarted, at), ResponseID: responseID}
}

// AISpeechEnded marks the end of tutor speech for a response.
type AISpeechEnded struct {
	Base
	ResponseID int64
	Duration   time.Duration
}

// NewAISpeechEnded creates an AI speech ended event.
func NewAISpeechEnded(at time.Time, responseID int64, duration time.Duration) AISpeechEnded {
	return AISpeechEnded{Base: NewBase(KindAISpeechEnded, at), ResponseID: responseID, Duration: duration}
}

// DurationMS is the speech duration in whole milliseconds.
func (e AISpeechEnded) DurationMS() int64 {
	return e.Duration.Milliseconds()
}
