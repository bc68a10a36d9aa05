package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-tutor/core/conversations"
	"go.opentelemetry.io/otel/trace"
)

// turnRecord is the live, mutable version of a turn. The tracker is the only
// writer of its audio state; the validator is the only writer of its
// completion fields.
type turnRecord struct {
	conversations.Turn

	audioStarted        bool
	audioStopped        bool
	speechEndedReported bool
	finalised           bool

	span trace.Span
}

func (t *turnRecord) snapshot() conversations.Turn {
	return t.Turn
}

func turnContext(turn *turnRecord) context.Context {
	if turn == nil || turn.span == nil {
		return context.Background()
	}
	return trace.ContextWithSpan(context.Background(), turn.span)
}

// turnObserver is notified by the tracker right after each mutation.
type turnObserver interface {
	turnStarted(turn *turnRecord)
	// turnSuperseded is called before a newer turn replaces an unfinished one.
	turnSuperseded(turn *turnRecord)
	audioStateChanged(turn *turnRecord)
	speechStarted(turn *turnRecord)
	speechStopped(turn *turnRecord)
	// completionCandidate is raised when audio stops.
	completionCandidate(turn *turnRecord)
	// qualifyingEvent is raised when data that validation depends on arrives.
	qualifyingEvent(turn *turnRecord)
	staleEvent(event string, responseID int64)
}

// audioResponseStateTracker keeps the audio state of the current turn. Its
// mutators are the only way to change that state. Each is idempotent for
// repeated events and ignores events for superseded response ids.
type audioResponseStateTracker struct {
	now      func() time.Time
	observer turnObserver

	current *turnRecord
}

func newAudioResponseStateTracker(now func() time.Time, observer turnObserver) *audioResponseStateTracker {
	return &audioResponseStateTracker{now: now, observer: observer}
}

func (t *audioResponseStateTracker) currentTurn() *turnRecord {
	return t.current
}

func (t *audioResponseStateTracker) onAudioStart(responseID int64) {
	turn, ok := t.resolve("audio_started", responseID)
	if !ok {
		return
	}

	t.startAudio(turn)
}

func (t *audioResponseStateTracker) onAudioDataChunk(responseID int64) {
	turn, ok := t.resolve("audio_data_chunk", responseID)
	if !ok {
		return
	}

	// A chunk can overtake its audio start.
	t.startAudio(turn)

	if turn.Audio.AudioDataReceived {
		return
	}
	turn.Audio.AudioDataReceived = true
	t.changed(turn)
	t.observer.qualifyingEvent(turn)
}

func (t *audioResponseStateTracker) onTranscriptDelta(responseID int64, chunk string) {
	turn, ok := t.resolve("transcript_delta", responseID)
	if !ok || chunk == "" {
		return
	}

	if turn.Audio.TranscriptReceived {
		return
	}
	turn.TranscriptText += chunk
	turn.Audio.LastEventAt = t.now()
}

func (t *audioResponseStateTracker) onTranscriptComplete(responseID int64, text string) {
	turn, ok := t.resolve("transcript_complete", responseID)
	if !ok {
		return
	}

	if turn.Audio.TranscriptReceived {
		return
	}
	if text != "" {
		turn.TranscriptText = text
	}
	turn.Audio.TranscriptReceived = true
	t.changed(turn)
	t.observer.qualifyingEvent(turn)
}

func (t *audioResponseStateTracker) onAudioStop(responseID int64) {
	turn, ok := t.resolve("audio_stopped", responseID)
	if !ok {
		return
	}

	if turn.audioStopped {
		return
	}
	turn.audioStopped = true
	turn.AudioStoppedAt = t.now()
	wasPlaying := turn.Audio.IsAudioPlaying
	turn.Audio.IsAudioPlaying = false
	if wasPlaying {
		t.changed(turn)
		t.observer.speechStopped(turn)
	}
	t.observer.completionCandidate(turn)
}

func (t *audioResponseStateTracker) onResponseDone(responseID int64) {
	turn, ok := t.resolve("response_done", responseID)
	if !ok {
		return
	}

	if turn.ResponseDone {
		return
	}
	turn.ResponseDone = true
	turn.Audio.LastEventAt = t.now()
	t.observer.qualifyingEvent(turn)
}

func (t *audioResponseStateTracker) startAudio(turn *turnRecord) {
	if turn.audioStarted || turn.audioStopped {
		return
	}

	turn.audioStarted = true
	turn.AudioStartedAt = t.now()
	turn.Audio.IsAudioPlaying = true
	t.changed(turn)
	t.observer.speechStarted(turn)
}

// resolve returns the turn an event applies to, starting a new turn when the
// response id is newer than the current one.
func (t *audioResponseStateTracker) resolve(event string, responseID int64) (*turnRecord, bool) {
	current := t.current
	switch {
	case current == nil || responseID > current.ResponseID:
		if current != nil && !current.finalised {
			t.observer.turnSuperseded(current)
		}
		return t.begin(responseID), true
	case responseID < current.ResponseID:
		logger.Debug("discarding stale transport event",
			"event", event,
			"response_id", responseID,
			"current_response_id", current.ResponseID)
		t.observer.staleEvent(event, responseID)
		return nil, false
	case current.finalised:
		logger.Debug("discarding transport event for finalised turn",
			"event", event,
			"response_id", responseID)
		t.observer.staleEvent(event, responseID)
		return nil, false
	default:
		return current, true
	}
}

func (t *audioResponseStateTracker) begin(responseID int64) *turnRecord {
	now := t.now()
	turn := &turnRecord{
		Turn: conversations.Turn{
			ResponseID: responseID,
			StartedAt:  now,
			Audio:      conversations.AudioState{LastEventAt: now},
		},
	}
	t.current = turn
	t.observer.turnStarted(turn)
	return turn
}

func (t *audioResponseStateTracker) changed(turn *turnRecord) {
	turn.Audio.LastEventAt = t.now()
	t.observer.audioStateChanged(turn)
}
