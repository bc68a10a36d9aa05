// Package transport defines the boundary between the conversation core and
// whatever carries audio and transcripts to and from the AI tutor.
//
// A [Dialer] acquires the transport for one session and reports everything it
// observes through a [Handler]. Handlers may be invoked from any goroutine;
// the core serialises them.
package transport

import "context"

type ConnectivityState string

const (
	ConnectivityNew          ConnectivityState = "new"
	ConnectivityConnecting   ConnectivityState = "connecting"
	ConnectivityConnected    ConnectivityState = "connected"
	ConnectivityDisconnected ConnectivityState = "disconnected"
	ConnectivityFailed       ConnectivityState = "failed"
	ConnectivityClosed       ConnectivityState = "closed"
)

// IsTerminal reports whether no further transitions are expected.
func (s ConnectivityState) IsTerminal() bool {
	return s == ConnectivityFailed || s == ConnectivityClosed
}

func (s ConnectivityState) Valid() bool {
	switch s {
	case ConnectivityNew, ConnectivityConnecting, ConnectivityConnected,
		ConnectivityDisconnected, ConnectivityFailed, ConnectivityClosed:
		return true
	}
	return false
}

// Handler receives transport events for a single session.
//
// Response ids increase monotonically within a session. Events for one
// response id are delivered in order, but no ordering is guaranteed between
// audio, transcript and connectivity events.
type Handler interface {
	OnConnectivityChanged(state ConnectivityState)
	OnAudioStarted(responseID int64)
	OnAudioDataChunk(responseID int64)
	OnAudioStopped(responseID int64)
	OnTranscriptDelta(responseID int64, chunk string)
	OnTranscriptComplete(responseID int64, text string)
	// OnResponseDone is the optional explicit end-of-response signal.
	OnResponseDone(responseID int64)
	// OnSpeakingChanged carries the transport's own view of whether the AI is
	// speaking. It is advisory; the core may ignore it.
	OnSpeakingChanged(isSpeaking bool)
}

// Request describes the session the transport is being acquired for.
type Request struct {
	SessionID        string
	ScenarioID       string
	ProficiencyLevel string
	UserContext      map[string]string
}

// Dialer acquires transport and audio resources for a session. Dial returns
// once the transport is usable; failures are not retried by the core.
type Dialer interface {
	Dial(ctx context.Context, req Request, handler Handler) (Conn, error)
}

// DialerFunc adapts a function to a [Dialer].
type DialerFunc func(ctx context.Context, req Request, handler Handler) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, req Request, handler Handler) (Conn, error) {
	return f(ctx, req, handler)
}

// Conn releases the resources acquired by Dial.
//
// Close may be called from inside a Handler callback, so it must not wait
// for in-flight callbacks to return.
type Conn interface {
	Close() error
}
