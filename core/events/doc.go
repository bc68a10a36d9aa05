// Package events defines the typed event contract of a conversation session.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - session.*
//   - ai_speech.*
//   - ai_transcript.*
//   - turn_state.*
//   - connectivity.*
//   - error
//
// Every occurrence is emitted once. Events for a turn always arrive in the
// order TurnStarted, AISpeechStarted, AISpeechEnded, AITranscriptComplete,
// TurnCompleted, with AudioStateChanged interleaved at each mutation.
//
// session events
//
//   - SessionStateChanged (session.state_changed): the session moved between
//     idle, connecting, active, ending and ended.
//
// ai_speech events
//
//   - AISpeechStarted (ai_speech.started): the tutor started speaking a
//     response.
//   - AISpeechEnded (ai_speech.ended): the tutor stopped speaking; carries the
//     speech duration.
//
// ai_transcript events
//
//   - AITranscriptComplete (ai_transcript.complete): terminal transcript of a
//     response together with why the turn completed.
//
// turn_state events
//
//   - TurnStarted (turn_state.started): a new response turn began.
//   - AudioStateChanged (turn_state.audio_state_changed): diagnostic snapshot
//     pushed at every audio state mutation.
//   - TurnCompleted (turn_state.completed): the turn was finalised; carries the
//     immutable turn record.
//
// connectivity events
//
//   - ConnectivityChanged (connectivity.changed): diagnostic transport
//     connectivity transition.
//   - ConnectivityDegraded (connectivity.degraded): a non-fatal disconnection
//     was observed; carries the running disconnection count.
//   - ConnectivityLost (connectivity.lost): connectivity failed for good, the
//     session is terminating.
//
// error events
//
//   - Error (error): an error crossed the public boundary.
package events
