package orchestration

import (
	"context"
	"maps"

	"github.com/koscakluka/ema-tutor/core/conversations"
	"github.com/koscakluka/ema-tutor/core/events"
	"github.com/koscakluka/ema-tutor/core/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	_ turnObserver         = (*activeSession)(nil)
	_ connectivityObserver = (*activeSession)(nil)
	_ transport.Handler    = (*sessionHandler)(nil)
)

// activeSession is the live record behind a [conversations.Session]. All
// fields are guarded by the manager lock.
type activeSession struct {
	conversations.Session

	manager     *ConversationFlowManager
	userContext conversations.UserContext
	conn        transport.Conn

	tracker   *audioResponseStateTracker
	validator *completionValidator
	monitor   *connectivityMonitor

	history []conversations.Turn
	lostErr *ConnectivityLostError

	ctx  context.Context
	span trace.Span
	done chan struct{}
}

func newActiveSession(
	parent context.Context,
	m *ConversationFlowManager,
	id string,
	scenarioID string,
	level conversations.ProficiencyLevel,
	userContext conversations.UserContext,
) *activeSession {
	_, span := tracer.Start(parent, "session", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("session.scenario_id", scenarioID),
		attribute.String("session.proficiency_level", string(level)),
	))

	s := &activeSession{
		Session: conversations.Session{
			ID:               id,
			ScenarioID:       scenarioID,
			ProficiencyLevel: level,
			State:            conversations.SessionIdle,
			StartedAt:        m.clock.Now(),
		},
		manager:     m,
		userContext: maps.Clone(userContext),
		ctx:         trace.ContextWithSpan(context.Background(), span),
		span:        span,
		done:        make(chan struct{}),
	}

	sched := sessionScheduler{manager: m, session: s}
	s.tracker = newAudioResponseStateTracker(m.clock.Now, s)
	s.validator = newCompletionValidator(newCompletionSettings(m.config), sched, m.clock.Now, s.turnCompleted)
	s.monitor = newConnectivityMonitor(m.config, sched, m.clock.Now, s)

	return s
}

func (s *activeSession) snapshot() conversations.Session {
	return s.Session
}

func (s *activeSession) request() transport.Request {
	return transport.Request{
		SessionID:        s.ID,
		ScenarioID:       s.ScenarioID,
		ProficiencyLevel: string(s.ProficiencyLevel),
		UserContext:      maps.Clone(s.userContext),
	}
}

func (s *activeSession) emit(event events.Event) {
	s.manager.dispatcher.enqueue(event)
}

func (s *activeSession) setState(next conversations.SessionState) {
	from := s.State
	if from == next || from == conversations.SessionEnded {
		return
	}

	s.State = next
	now := s.manager.clock.Now()
	logger.Debug("session state changed",
		"session_id", s.ID,
		"from", string(from),
		"to", string(next))
	s.span.AddEvent("state changed", trace.WithAttributes(
		attribute.String("session.state.from", string(from)),
		attribute.String("session.state.to", string(next)),
	))
	s.emit(events.NewSessionStateChanged(now, s.ID, from, next))

	if next == conversations.SessionEnded {
		s.EndedAt = now
		s.span.End()
		close(s.done)
	}
}

// abortStart ends a session whose transport could not be acquired.
func (s *activeSession) abortStart(err error) {
	recordSpanError(s.span, err)
	s.emit(events.NewError(s.manager.clock.Now(), events.ErrorKindSessionStart, err.Error()))
	s.validator.cancelAll()
	s.monitor.stopRecovery()
	s.setState(conversations.SessionEnded)
}

// beginTeardown moves the session to ending, closes the current turn and
// cancels every timer. The returned function releases the transport and
// moves the session to ended; it must run without the lock held. Nil is
// returned when teardown already started.
func (s *activeSession) beginTeardown() func() error {
	if s.State == conversations.SessionEnding || s.State == conversations.SessionEnded {
		return nil
	}

	s.setState(conversations.SessionEnding)
	if turn := s.tracker.currentTurn(); turn != nil && !turn.finalised {
		s.validator.force(turn, conversations.CompletionForced)
	}
	s.validator.cancelAll()
	s.monitor.close()

	conn := s.conn
	s.conn = nil

	return func() error {
		var err error
		if conn != nil {
			err = runCleanupStep("close transport", conn.Close)
		}
		s.manager.run(func() {
			if err != nil {
				recordSpanError(s.span, err)
			}
			s.setState(conversations.SessionEnded)
		})
		return err
	}
}

func (s *activeSession) onSpeakingChanged(isSpeaking bool) {
	turn := s.tracker.currentTurn()
	if turn == nil || turn.finalised {
		return
	}

	if isSpeaking {
		logger.Debug("transport reports tutor speaking", "response_id", turn.ResponseID)
		return
	}

	// Audio playback state wins over the transport's speaking flag.
	if turn.Audio.IsAudioPlaying {
		instruments.suppressedSpeaking.Add(turnContext(turn), 1)
		logger.Debug("ignoring not-speaking signal while audio is playing", "response_id", turn.ResponseID)
		return
	}

	s.validator.candidate(turn)
}

func (s *activeSession) turnStarted(turn *turnRecord) {
	_, turn.span = tracer.Start(s.ctx, "turn", trace.WithAttributes(
		attribute.Int64("turn.response_id", turn.ResponseID),
	))
	s.emit(events.NewTurnStarted(turn.StartedAt, turn.ResponseID))
	s.validator.track(turn)
}

func (s *activeSession) turnSuperseded(turn *turnRecord) {
	logger.Info("turn superseded by a newer response", "session_id", s.ID, "response_id", turn.ResponseID)
	s.validator.force(turn, conversations.CompletionForced)
}

func (s *activeSession) audioStateChanged(turn *turnRecord) {
	s.emit(events.NewAudioStateChanged(turn.Audio.LastEventAt, turn.ResponseID, turn.Audio))
}

func (s *activeSession) speechStarted(turn *turnRecord) {
	s.validator.audioStarted(turn)
	s.emit(events.NewAISpeechStarted(turn.AudioStartedAt, turn.ResponseID))
}

func (s *activeSession) speechStopped(turn *turnRecord) {
	if turn.speechEndedReported {
		return
	}
	turn.speechEndedReported = true
	s.emit(events.NewAISpeechEnded(turn.AudioStoppedAt, turn.ResponseID, turn.SpeechDuration()))
}

func (s *activeSession) completionCandidate(turn *turnRecord) {
	s.validator.candidate(turn)
}

func (s *activeSession) qualifyingEvent(turn *turnRecord) {
	s.validator.qualifying(turn)
}

func (s *activeSession) staleEvent(event string, _ int64) {
	instruments.staleEvents.Add(s.ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

func (s *activeSession) turnCompleted(turn *turnRecord) {
	if turn.audioStarted && !turn.speechEndedReported {
		turn.speechEndedReported = true
		s.emit(events.NewAISpeechEnded(turn.CompletedAt, turn.ResponseID, turn.SpeechDuration()))
	}

	snapshot := turn.snapshot()
	s.history = append(s.history, snapshot)
	s.emit(events.NewAITranscriptComplete(turn.CompletedAt, turn.ResponseID, turn.TranscriptText, turn.CompletionReason))
	s.emit(events.NewTurnCompleted(turn.CompletedAt, snapshot))

	logger.Info("turn completed",
		"session_id", s.ID,
		"response_id", turn.ResponseID,
		"completion_reason", string(turn.CompletionReason),
		"extensions_used", turn.ExtensionsUsed)

	if turn.span != nil {
		turn.span.SetAttributes(
			attribute.String("turn.completion_reason", string(turn.CompletionReason)),
			attribute.Int("turn.extensions_used", turn.ExtensionsUsed),
		)
		turn.span.End()
	}
}

func (s *activeSession) connectivityChanged(from, to transport.ConnectivityState, disconnectionCount int) {
	s.emit(events.NewConnectivityChanged(s.manager.clock.Now(), from, to, disconnectionCount))
}

func (s *activeSession) connectivityDegraded(disconnectionCount int) {
	s.emit(events.NewConnectivityDegraded(s.manager.clock.Now(), disconnectionCount))
}

func (s *activeSession) connectivityLost(reason string, disconnectionCount int) {
	now := s.manager.clock.Now()
	s.lostErr = &ConnectivityLostError{SessionID: s.ID, Reason: reason, DisconnectionCount: disconnectionCount}
	recordSpanError(s.span, s.lostErr)

	s.emit(events.NewConnectivityLost(now, reason, disconnectionCount))
	s.emit(events.NewError(now, events.ErrorKindConnectivityLost, s.lostErr.Error()))
	s.manager.terminate(s)
}

// sessionHandler routes transport callbacks of one session into the
// manager. Callbacks for sessions that are no longer current are dropped.
type sessionHandler struct {
	manager *ConversationFlowManager
	session *activeSession
}

func (h *sessionHandler) dispatch(f func(s *activeSession)) {
	h.manager.run(func() {
		if !h.manager.isCurrent(h.session) {
			return
		}
		f(h.session)
	})
}

func (h *sessionHandler) OnConnectivityChanged(state transport.ConnectivityState) {
	h.dispatch(func(s *activeSession) { s.monitor.onConnectivityChanged(state) })
}

func (h *sessionHandler) OnAudioStarted(responseID int64) {
	h.dispatch(func(s *activeSession) { s.tracker.onAudioStart(responseID) })
}

func (h *sessionHandler) OnAudioDataChunk(responseID int64) {
	h.dispatch(func(s *activeSession) { s.tracker.onAudioDataChunk(responseID) })
}

func (h *sessionHandler) OnAudioStopped(responseID int64) {
	h.dispatch(func(s *activeSession) { s.tracker.onAudioStop(responseID) })
}

func (h *sessionHandler) OnTranscriptDelta(responseID int64, chunk string) {
	h.dispatch(func(s *activeSession) { s.tracker.onTranscriptDelta(responseID, chunk) })
}

func (h *sessionHandler) OnTranscriptComplete(responseID int64, text string) {
	h.dispatch(func(s *activeSession) { s.tracker.onTranscriptComplete(responseID, text) })
}

func (h *sessionHandler) OnResponseDone(responseID int64) {
	h.dispatch(func(s *activeSession) { s.tracker.onResponseDone(responseID) })
}

func (h *sessionHandler) OnSpeakingChanged(isSpeaking bool) {
	h.dispatch(func(s *activeSession) { s.onSpeakingChanged(isSpeaking) })
}
