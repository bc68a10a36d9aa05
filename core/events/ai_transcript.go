package events

import (
	"time"

	"github.com/koscakluka/ema-tutor/core/conversations"
)

// KindAITranscriptComplete identifies the terminal transcript of a response.
const KindAITranscriptComplete Kind = "ai_transcript.complete"

// AITranscriptComplete carries the final transcript of a response.
type AITranscriptComplete struct {
	Base
	ResponseID       int64
	Text             string
	CompletionReason conversations.CompletionReason
}

// NewAITranscriptComplete creates an AI transcript complete event.
func NewAITranscriptComplete(at time.Time, responseID int64, text string, reason conversations.CompletionReason) AITranscriptComplete {
	return AITranscriptComplete{
		Base:             NewBase(KindAITranscriptComplete, at),
		ResponseID:       responseID,
		Text:             text,
		CompletionReason: reason,
	}
}
