package conversations

import "time"

type CompletionReason string

const (
	// CompletionNatural means audio stop and transcript completion were both
	// observed and the turn passed validation.
	CompletionNatural CompletionReason = "natural"
	// CompletionTimeout means the validation extension budget ran out.
	CompletionTimeout CompletionReason = "timeout"
	// CompletionForced means the turn was closed from outside: superseded by
	// a newer response, the hard audio timeout elapsed or the session stopped.
	CompletionForced CompletionReason = "forced"
)

// AudioState tracks audio playback and transcript arrival for one turn.
//
// AudioDataReceived and TranscriptReceived never revert once set.
// IsAudioPlaying goes true at most once and false at most once per turn.
type AudioState struct {
	IsAudioPlaying     bool
	AudioDataReceived  bool
	TranscriptReceived bool
	LastEventAt        time.Time
}

// Turn is one AI response cycle within a session.
type Turn struct {
	ResponseID       int64
	Audio            AudioState
	TranscriptText   string
	ResponseDone     bool
	CompletionReason CompletionReason
	ExtensionsUsed   int
	StartedAt        time.Time
	AudioStartedAt   time.Time
	AudioStoppedAt   time.Time
	CompletedAt      time.Time
}

// IsFinalised reports whether the turn has been completed.
func (t Turn) IsFinalised() bool {
	return t.CompletionReason != ""
}

// SpeechDuration is the time between audio start and audio stop, or until
// completion when audio never reported stopping.
func (t Turn) SpeechDuration() time.Duration {
	if t.AudioStartedAt.IsZero() {
		return 0
	}

	end := t.AudioStoppedAt
	if end.IsZero() {
		end = t.CompletedAt
	}
	if end.IsZero() || end.Before(t.AudioStartedAt) {
		return 0
	}
	return end.Sub(t.AudioStartedAt)
}

// ValidationResult is the outcome of one completion validation attempt.
type ValidationResult struct {
	Passed         bool
	Reason         string
	ExtensionsUsed int
}
