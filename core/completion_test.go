package orchestration

import (
	"testing"
	"time"

	"github.com/koscakluka/ema-tutor/core/clock"
	"github.com/koscakluka/ema-tutor/core/conversations"
)

// validatorObserver wires a tracker to a validator the same way a session
// does, without events.
type validatorObserver struct {
	validator *completionValidator
}

func (o validatorObserver) turnStarted(turn *turnRecord) { o.validator.track(turn) }
func (o validatorObserver) turnSuperseded(turn *turnRecord) {
	o.validator.force(turn, conversations.CompletionForced)
}
func (o validatorObserver) audioStateChanged(*turnRecord)             {}
func (o validatorObserver) speechStarted(turn *turnRecord)            { o.validator.audioStarted(turn) }
func (o validatorObserver) speechStopped(*turnRecord)                 {}
func (o validatorObserver) completionCandidate(turn *turnRecord)      { o.validator.candidate(turn) }
func (o validatorObserver) qualifyingEvent(turn *turnRecord)          { o.validator.qualifying(turn) }
func (o validatorObserver) staleEvent(event string, responseID int64) {}

type completionHarness struct {
	clock     *clock.Manual
	start     time.Time
	tracker   *audioResponseStateTracker
	validator *completionValidator
	completed []conversations.Turn
}

func newCompletionHarness(cfg Config) *completionHarness {
	start := time.Unix(1000, 0)
	h := &completionHarness{clock: clock.NewManual(start), start: start}
	h.validator = newCompletionValidator(newCompletionSettings(cfg), clockScheduler{clock: h.clock}, h.clock.Now, func(turn *turnRecord) {
		h.completed = append(h.completed, turn.snapshot())
	})
	h.tracker = newAudioResponseStateTracker(h.clock.Now, validatorObserver{validator: h.validator})
	return h
}

func (h *completionHarness) onlyCompletion(t *testing.T) conversations.Turn {
	t.Helper()
	if len(h.completed) != 1 {
		t.Fatalf("expected exactly 1 completion, got %d (%+v)", len(h.completed), h.completed)
	}
	return h.completed[0]
}

func TestCompletionNaturalWhenEverythingArrivedBeforeAudioStop(t *testing.T) {
	h := newCompletionHarness(DefaultConfig())

	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)
	h.tracker.onTranscriptComplete(1, "Hello, how are you today?")
	h.tracker.onResponseDone(1)
	if len(h.completed) != 0 {
		t.Fatalf("expected no completion while audio is playing, got %d", len(h.completed))
	}

	h.clock.Advance(3 * time.Second)
	h.tracker.onAudioStop(1)

	turn := h.onlyCompletion(t)
	if turn.CompletionReason != conversations.CompletionNatural {
		t.Fatalf("expected natural completion, got %q", turn.CompletionReason)
	}
	if turn.ExtensionsUsed != 0 {
		t.Fatalf("expected no extensions, got %d", turn.ExtensionsUsed)
	}
	if !turn.CompletedAt.Equal(h.start.Add(3 * time.Second)) {
		t.Fatalf("expected completion at audio stop, got %v", turn.CompletedAt)
	}
}

func TestCompletionWaitsForLateTranscript(t *testing.T) {
	h := newCompletionHarness(DefaultConfig())

	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)
	h.tracker.onAudioStop(1)
	if len(h.completed) != 0 {
		t.Fatalf("expected no completion without a transcript")
	}

	h.clock.Advance(time.Second)
	h.tracker.onTranscriptComplete(1, "Great job!")

	turn := h.onlyCompletion(t)
	if turn.CompletionReason != conversations.CompletionNatural {
		t.Fatalf("expected natural completion, got %q", turn.CompletionReason)
	}
	if turn.ExtensionsUsed != 1 {
		t.Fatalf("expected 1 extension, got %d", turn.ExtensionsUsed)
	}
	if !turn.CompletedAt.Equal(h.start.Add(time.Second)) {
		t.Fatalf("expected completion when the transcript arrived, got %v", turn.CompletedAt)
	}

	h.clock.Advance(time.Minute)
	h.onlyCompletion(t)
}

func TestCompletionFallsBackToTimeoutAfterExtensionBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompletionExtensionDelay = 1500 * time.Millisecond
	cfg.MaxCompletionExtensions = 2
	h := newCompletionHarness(cfg)

	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)
	h.tracker.onAudioStop(1)

	h.clock.Advance(2900 * time.Millisecond)
	if len(h.completed) != 0 {
		t.Fatalf("expected no completion before the extension budget ran out, got %+v", h.completed)
	}

	h.clock.Advance(100 * time.Millisecond)

	turn := h.onlyCompletion(t)
	if turn.CompletionReason != conversations.CompletionTimeout {
		t.Fatalf("expected timeout completion, got %q", turn.CompletionReason)
	}
	if turn.ExtensionsUsed != 2 {
		t.Fatalf("expected 2 extensions, got %d", turn.ExtensionsUsed)
	}
	if !turn.CompletedAt.Equal(h.start.Add(3 * time.Second)) {
		t.Fatalf("expected completion at +3s, got %v", turn.CompletedAt)
	}
}

func TestCompletionWithZeroExtensionsTimesOutImmediately(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCompletionExtensions = 0
	h := newCompletionHarness(cfg)

	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)
	h.tracker.onAudioStop(1)

	turn := h.onlyCompletion(t)
	if turn.CompletionReason != conversations.CompletionTimeout {
		t.Fatalf("expected timeout completion, got %q", turn.CompletionReason)
	}
}

func TestCompletionFailedRevalidationKeepsRunningExtension(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompletionExtensionDelay = time.Second
	cfg.MaxCompletionExtensions = 2
	h := newCompletionHarness(cfg)

	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)
	h.tracker.onAudioStop(1)
	h.clock.Advance(500 * time.Millisecond)
	h.tracker.onResponseDone(1)
	h.clock.Advance(2 * time.Second)

	turn := h.onlyCompletion(t)
	if turn.CompletionReason != conversations.CompletionTimeout {
		t.Fatalf("expected timeout completion, got %q", turn.CompletionReason)
	}
	if !turn.CompletedAt.Equal(h.start.Add(2 * time.Second)) {
		t.Fatalf("expected the response done signal not to reset extensions, completed at %v", turn.CompletedAt)
	}
}

func TestCompletionRepeatedCandidatesDoNotUseExtensionBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompletionExtensionDelay = 1500 * time.Millisecond
	cfg.MaxCompletionExtensions = 2
	h := newCompletionHarness(cfg)

	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)
	h.tracker.onAudioStop(1)
	turn := h.tracker.currentTurn()
	h.validator.candidate(turn)
	h.validator.candidate(turn)
	if len(h.completed) != 0 {
		t.Fatalf("expected repeated candidates not to complete the turn, got %+v", h.completed)
	}

	h.clock.Advance(500 * time.Millisecond)
	h.tracker.onTranscriptComplete(1, "Would you like a coffee?")

	completed := h.onlyCompletion(t)
	if completed.CompletionReason != conversations.CompletionNatural {
		t.Fatalf("expected natural completion, got %q", completed.CompletionReason)
	}
	if completed.ExtensionsUsed != 1 {
		t.Fatalf("expected 1 extension, got %d", completed.ExtensionsUsed)
	}
}

func TestCompletionCandidateBeforeAudioStartIsWithdrawn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompletionExtensionDelay = 1500 * time.Millisecond
	cfg.MaxCompletionExtensions = 2
	h := newCompletionHarness(cfg)

	h.tracker.onTranscriptDelta(1, "Hello ")
	h.validator.candidate(h.tracker.currentTurn())
	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)

	h.clock.Advance(3100 * time.Millisecond)
	if len(h.completed) != 0 {
		t.Fatalf("expected no completion while audio is playing, got %+v", h.completed)
	}

	h.tracker.onTranscriptComplete(1, "Hello there, welcome back!")
	h.tracker.onAudioStop(1)

	turn := h.onlyCompletion(t)
	if turn.CompletionReason != conversations.CompletionNatural {
		t.Fatalf("expected natural completion, got %q", turn.CompletionReason)
	}
	if turn.ExtensionsUsed != 0 {
		t.Fatalf("expected the early candidate not to count, got %d extensions", turn.ExtensionsUsed)
	}
}

func TestCompletionRequiresSentenceBoundaryWithoutResponseDone(t *testing.T) {
	h := newCompletionHarness(DefaultConfig())

	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)
	h.tracker.onTranscriptComplete(1, "and then we")
	h.tracker.onAudioStop(1)
	if len(h.completed) != 0 {
		t.Fatalf("expected a truncated transcript to wait for more data")
	}

	h.tracker.onResponseDone(1)

	turn := h.onlyCompletion(t)
	if turn.CompletionReason != conversations.CompletionNatural {
		t.Fatalf("expected natural completion, got %q", turn.CompletionReason)
	}
}

func TestCompletionHardAudioTimeoutForcesTurn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HardAudioTimeout = 10 * time.Second
	h := newCompletionHarness(cfg)

	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)
	h.clock.Advance(10 * time.Second)

	turn := h.onlyCompletion(t)
	if turn.CompletionReason != conversations.CompletionForced {
		t.Fatalf("expected forced completion, got %q", turn.CompletionReason)
	}

	h.tracker.onAudioStop(1)
	h.clock.Advance(time.Minute)
	h.onlyCompletion(t)
}

func TestCompletionHardTimeoutIsCancelledByCompletion(t *testing.T) {
	h := newCompletionHarness(DefaultConfig())

	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)
	h.tracker.onTranscriptComplete(1, "Done.")
	h.tracker.onAudioStop(1)
	h.onlyCompletion(t)

	if got := h.clock.Pending(); got != 0 {
		t.Fatalf("expected no pending timers after completion, got %d", got)
	}
}

func TestCompletionSupersededTurnIsForced(t *testing.T) {
	h := newCompletionHarness(DefaultConfig())

	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)
	h.tracker.onAudioStart(2)

	turn := h.onlyCompletion(t)
	if turn.ResponseID != 1 || turn.CompletionReason != conversations.CompletionForced {
		t.Fatalf("expected response 1 to be forced, got %d %q", turn.ResponseID, turn.CompletionReason)
	}

	h.tracker.onAudioDataChunk(2)
	h.tracker.onTranscriptComplete(2, "Second.")
	h.tracker.onAudioStop(2)
	if len(h.completed) != 2 || h.completed[1].ResponseID != 2 {
		t.Fatalf("expected response 2 to complete on its own, got %+v", h.completed)
	}
}

func TestCompletionCompletesEachResponseAtMostOnce(t *testing.T) {
	h := newCompletionHarness(DefaultConfig())

	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)
	h.tracker.onTranscriptComplete(1, "Done.")
	h.tracker.onAudioStop(1)

	turn := h.tracker.currentTurn()
	h.validator.candidate(turn)
	h.validator.qualifying(turn)
	h.validator.force(turn, conversations.CompletionForced)
	h.tracker.onResponseDone(1)

	if got := h.onlyCompletion(t).CompletionReason; got != conversations.CompletionNatural {
		t.Fatalf("expected the first completion to stand, got %q", got)
	}
}

func TestCompletionCancelAllDropsTimersWithoutCompleting(t *testing.T) {
	h := newCompletionHarness(DefaultConfig())

	h.tracker.onAudioStart(1)
	h.tracker.onAudioDataChunk(1)
	h.tracker.onAudioStop(1)
	h.validator.cancelAll()

	if got := h.clock.Pending(); got != 0 {
		t.Fatalf("expected no pending timers, got %d", got)
	}
	h.clock.Advance(time.Hour)
	if len(h.completed) != 0 {
		t.Fatalf("expected no completion after cancel, got %+v", h.completed)
	}
}

func TestIsWellFormedTranscript(t *testing.T) {
	tests := []struct {
		text     string
		expected bool
	}{
		{text: "Hello there.", expected: true},
		{text: "Really?", expected: true},
		{text: "Wow!  ", expected: true},
		{text: `She said "hi."`, expected: true},
		{text: "(Good job!)", expected: true},
		{text: "Well…", expected: true},
		{text: "こんにちは。", expected: true},
		{text: "and then we", expected: false},
		{text: "", expected: false},
		{text: "   ", expected: false},
		{text: ".", expected: false},
	}

	for _, tt := range tests {
		if got := isWellFormedTranscript(tt.text, 2); got != tt.expected {
			t.Fatalf("expected isWellFormedTranscript(%q) to be %v, got %v", tt.text, tt.expected, got)
		}
	}
}
