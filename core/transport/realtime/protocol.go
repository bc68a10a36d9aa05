package realtime

import "fmt"

// Message types of the realtime tutor protocol. Every frame is a JSON text
// frame with a "type" field.
const (
	typeSessionStart = "session.start"
	typeSessionReady = "session.ready"

	typeAudioStarted    = "response.audio.started"
	typeAudioDelta      = "response.audio.delta"
	typeAudioStopped    = "response.audio.stopped"
	typeTranscriptDelta = "response.transcript.delta"
	typeTranscriptDone  = "response.transcript.done"
	typeResponseDone    = "response.done"
	typeSpeaking        = "assistant.speaking"
	typeError           = "error"
)

// sessionStart opens or resumes a session on a fresh connection.
type sessionStart struct {
	Type             string            `json:"type"`
	SessionID        string            `json:"session_id"`
	ScenarioID       string            `json:"scenario_id"`
	ProficiencyLevel string            `json:"proficiency_level"`
	UserContext      map[string]string `json:"user_context,omitempty"`
	Resume           bool              `json:"resume,omitempty"`
}

// serverMessage is the union of every frame the server sends.
type serverMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	ResponseID int64  `json:"response_id,omitempty"`
	// Audio is base64 encoded PCM on the wire.
	Audio    []byte `json:"audio,omitempty"`
	Delta    string `json:"delta,omitempty"`
	Text     string `json:"text,omitempty"`
	Speaking bool   `json:"speaking,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ServerError is an error frame sent by the realtime server.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("realtime server error: %s", e.Message)
	}
	return fmt.Sprintf("realtime server error %s: %s", e.Code, e.Message)
}
