package orchestration

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/koscakluka/ema-tutor/core/conversations"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	validationPassed               = "complete"
	validationAudioDataMissing     = "audio data not received"
	validationTranscriptMissing    = "transcript not received"
	validationAudioPlaying         = "audio still playing"
	validationTranscriptIncomplete = "transcript does not end on a sentence boundary"
)

type completionSettings struct {
	extensionDelay      time.Duration
	maxExtensions       int
	hardAudioTimeout    time.Duration
	minTranscriptLength int
}

func newCompletionSettings(cfg Config) completionSettings {
	return completionSettings{
		extensionDelay:      cfg.CompletionExtensionDelay,
		maxExtensions:       cfg.MaxCompletionExtensions,
		hardAudioTimeout:    cfg.HardAudioTimeout,
		minTranscriptLength: cfg.MinTranscriptLength,
	}
}

// completionValidator is the single authority deciding that a turn is over.
// It completes every response id at most once.
type completionValidator struct {
	settings  completionSettings
	scheduler scheduler
	now       func() time.Time

	onCompleted func(turn *turnRecord)

	pending         *pendingCompletion
	lastCompletedID int64
	hasCompleted    bool
}

type pendingCompletion struct {
	turn            *turnRecord
	candidate       bool
	extensionsUsed  int
	cancelExtension func()
	cancelHard      func()
}

func newCompletionValidator(settings completionSettings, scheduler scheduler, now func() time.Time, onCompleted func(*turnRecord)) *completionValidator {
	return &completionValidator{
		settings:    settings,
		scheduler:   scheduler,
		now:         now,
		onCompleted: onCompleted,
	}
}

// track starts watching a newly started turn and arms its hard timeout.
func (v *completionValidator) track(turn *turnRecord) {
	if v.isCompleted(turn) {
		return
	}

	v.cancelPending()
	pending := &pendingCompletion{turn: turn}
	pending.cancelHard = v.scheduler.schedule(v.settings.hardAudioTimeout, func() {
		logger.Warn("hard audio timeout elapsed, forcing turn completion",
			"response_id", turn.ResponseID,
			"timeout", v.settings.hardAudioTimeout.String())
		v.complete(pending, conversations.CompletionForced)
	})
	v.pending = pending
}

// candidate handles a completion candidate. The first one validates the turn
// right away. Repeats while an extension is running only re-validate and
// keep that extension.
func (v *completionValidator) candidate(turn *turnRecord) {
	pending := v.pendingFor(turn)
	if pending == nil {
		return
	}

	if pending.candidate && pending.cancelExtension != nil {
		v.qualifying(turn)
		return
	}

	pending.candidate = true
	v.attempt(pending)
}

// audioStarted withdraws a candidate raised before the turn's audio began,
// together with any extension budget it used.
func (v *completionValidator) audioStarted(turn *turnRecord) {
	pending := v.pendingFor(turn)
	if pending == nil || !pending.candidate {
		return
	}

	v.stopExtension(pending)
	pending.candidate = false
	pending.extensionsUsed = 0
}

// qualifying re-validates a candidate turn after new data arrived. A failed
// re-validation keeps the running extension instead of using up budget.
func (v *completionValidator) qualifying(turn *turnRecord) {
	pending := v.pendingFor(turn)
	if pending == nil || !pending.candidate {
		return
	}

	if result := v.validate(turn, pending.extensionsUsed); result.Passed {
		v.complete(pending, conversations.CompletionNatural)
		return
	}

	if pending.cancelExtension == nil {
		v.attempt(pending)
	}
}

// force completes the turn regardless of its state.
func (v *completionValidator) force(turn *turnRecord, reason conversations.CompletionReason) {
	if pending := v.pendingFor(turn); pending != nil {
		v.complete(pending, reason)
		return
	}

	if !v.isCompleted(turn) {
		v.complete(&pendingCompletion{turn: turn}, reason)
	}
}

// cancelAll drops every timer without completing anything.
func (v *completionValidator) cancelAll() {
	v.cancelPending()
}

func (v *completionValidator) validate(turn *turnRecord, extensionsUsed int) conversations.ValidationResult {
	result := conversations.ValidationResult{ExtensionsUsed: extensionsUsed}

	switch {
	case !turn.Audio.AudioDataReceived:
		result.Reason = validationAudioDataMissing
	case !turn.Audio.TranscriptReceived:
		result.Reason = validationTranscriptMissing
	case turn.Audio.IsAudioPlaying:
		result.Reason = validationAudioPlaying
	case !turn.ResponseDone && !isWellFormedTranscript(turn.TranscriptText, v.settings.minTranscriptLength):
		result.Reason = validationTranscriptIncomplete
	default:
		result.Passed = true
		result.Reason = validationPassed
	}

	return result
}

func (v *completionValidator) attempt(pending *pendingCompletion) {
	turn := pending.turn
	result := v.validate(turn, pending.extensionsUsed)
	if result.Passed {
		v.complete(pending, conversations.CompletionNatural)
		return
	}

	if pending.extensionsUsed >= v.settings.maxExtensions {
		logger.Warn("completion extensions exhausted, completing turn with timeout",
			"response_id", turn.ResponseID,
			"extensions_used", pending.extensionsUsed,
			"reason", result.Reason)
		if turn.span != nil {
			turn.span.AddEvent("timeout fallback", trace.WithAttributes(
				attribute.String("turn.validation_reason", result.Reason),
			))
		}
		v.complete(pending, conversations.CompletionTimeout)
		return
	}

	pending.extensionsUsed++
	instruments.extensions.Add(turnContext(turn), 1)
	logger.Debug("turn not complete yet, scheduling extension",
		"response_id", turn.ResponseID,
		"extension", pending.extensionsUsed,
		"reason", result.Reason)
	if turn.span != nil {
		turn.span.AddEvent("extension scheduled", trace.WithAttributes(
			attribute.Int("turn.extension", pending.extensionsUsed),
			attribute.String("turn.validation_reason", result.Reason),
		))
	}

	pending.cancelExtension = v.scheduler.schedule(v.settings.extensionDelay, func() {
		pending.cancelExtension = nil
		if v.pending != pending {
			return
		}
		v.attempt(pending)
	})
}

func (v *completionValidator) complete(pending *pendingCompletion, reason conversations.CompletionReason) {
	turn := pending.turn
	if v.isCompleted(turn) {
		return
	}

	v.stopExtension(pending)
	if pending.cancelHard != nil {
		pending.cancelHard()
		pending.cancelHard = nil
	}
	if v.pending == pending {
		v.pending = nil
	}

	turn.finalised = true
	turn.CompletionReason = reason
	turn.CompletedAt = v.now()
	turn.ExtensionsUsed = pending.extensionsUsed
	v.lastCompletedID = turn.ResponseID
	v.hasCompleted = true

	ctx := turnContext(turn)
	instruments.completions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	if !turn.AudioStoppedAt.IsZero() {
		latency := turn.CompletedAt.Sub(turn.AudioStoppedAt)
		instruments.completionLatency.Record(ctx, float64(latency.Microseconds())/1000,
			metric.WithAttributes(attribute.String("reason", string(reason))))
	}

	if v.onCompleted != nil {
		v.onCompleted(turn)
	}
}

func (v *completionValidator) isCompleted(turn *turnRecord) bool {
	return turn.finalised || (v.hasCompleted && turn.ResponseID <= v.lastCompletedID)
}

func (v *completionValidator) pendingFor(turn *turnRecord) *pendingCompletion {
	if v.pending == nil || v.pending.turn != turn || v.isCompleted(turn) {
		return nil
	}
	return v.pending
}

func (v *completionValidator) stopExtension(pending *pendingCompletion) {
	if pending.cancelExtension != nil {
		pending.cancelExtension()
		pending.cancelExtension = nil
	}
}

func (v *completionValidator) cancelPending() {
	if v.pending == nil {
		return
	}

	v.stopExtension(v.pending)
	if v.pending.cancelHard != nil {
		v.pending.cancelHard()
		v.pending.cancelHard = nil
	}
	v.pending = nil
}

var sentenceTerminators = []rune{'.', '!', '?', '…', '。', '！', '？'}

// isWellFormedTranscript reports whether text is long enough and ends on a
// sentence boundary. Closing quotes and brackets after the terminator are
// allowed.
func isWellFormedTranscript(text string, minLength int) bool {
	trimmed := strings.TrimRightFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(`"'”’)]»」』`, r)
	})
	trimmed = strings.TrimLeftFunc(trimmed, unicode.IsSpace)
	if trimmed == "" || utf8.RuneCountInString(trimmed) < minLength {
		return false
	}

	last, _ := utf8.DecodeLastRuneInString(trimmed)
	for _, terminator := range sentenceTerminators {
		if last == terminator {
			return true
		}
	}
	return false
}
