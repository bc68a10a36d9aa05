// Package orchestration runs live tutoring sessions: it tracks tutor audio,
// decides when a turn is over and watches transport connectivity.
package orchestration

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-tutor/core/clock"
	"github.com/koscakluka/ema-tutor/core/conversations"
	"github.com/koscakluka/ema-tutor/core/transport"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ConversationFlowManager owns the lifecycle of tutoring sessions and is the
// only surface the rest of the application talks to.
//
// A manager runs one session at a time; build one manager per concurrent
// session. Transport callbacks and timer firings may arrive from any
// goroutine and are applied one at a time. Events are delivered to handlers
// outside the internal lock, so handlers may call back into the manager.
type ConversationFlowManager struct {
	mu sync.Mutex

	dialer     transport.Dialer
	config     Config
	clock      clock.Clock
	dispatcher *eventDispatcher

	session   *activeSession
	destroyed bool

	// pendingRelease holds teardown work started with the lock held that has
	// to finish after the lock is released.
	pendingRelease []func()

	destroyOnce sync.Once
}

func NewConversationFlowManager(dialer transport.Dialer, cfg Config, opts ...FlowManagerOption) (*ConversationFlowManager, error) {
	if isNilDialer(dialer) {
		return nil, ErrTransportRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &ConversationFlowManager{
		dialer:     dialer,
		config:     cfg,
		clock:      clock.Real(),
		dispatcher: &eventDispatcher{},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// StartSession acquires the transport and returns once the session is
// active. A failure to acquire resources is reported as a
// [*SessionStartError].
func (m *ConversationFlowManager) StartSession(
	ctx context.Context,
	scenarioID string,
	level conversations.ProficiencyLevel,
	userContext conversations.UserContext,
) (conversations.Session, error) {
	var s *activeSession
	var startErr error
	m.run(func() {
		switch {
		case m.destroyed:
			startErr = &SessionStartError{Err: ErrDestroyed}
		case m.session != nil && m.session.State != conversations.SessionEnded:
			startErr = &SessionStartError{SessionID: m.session.ID, Err: ErrSessionActive}
		default:
			s = newActiveSession(ctx, m, uuid.NewString(), scenarioID, level, userContext)
			m.session = s
			s.setState(conversations.SessionConnecting)
		}
	})
	if startErr != nil {
		return conversations.Session{}, startErr
	}

	dialCtx := trace.ContextWithSpan(ctx, s.span)
	conn, err := m.dialer.Dial(dialCtx, s.request(), &sessionHandler{manager: m, session: s})

	var orphan transport.Conn
	var session conversations.Session
	m.run(func() {
		switch {
		case err != nil:
			startErr = &SessionStartError{SessionID: s.ID, Err: err}
			s.abortStart(startErr)
		case !m.isCurrent(s):
			orphan = conn
			startErr = &SessionStartError{SessionID: s.ID, Err: ErrSessionAborted}
		default:
			s.conn = conn
			s.span.AddEvent("transport acquired")
			s.setState(conversations.SessionActive)
		}
		session = s.snapshot()
	})

	if orphan != nil {
		if err := runCleanupStep("close orphaned transport", orphan.Close); err != nil {
			logger.Warn("failed to release transport of aborted session",
				"session_id", s.ID,
				"error", err)
		}
	}

	if startErr != nil {
		logger.Error("session failed to start", "session_id", s.ID, "error", startErr)
		return session, startErr
	}

	logger.Info("session active",
		"session_id", session.ID,
		"scenario_id", session.ScenarioID,
		"proficiency_level", string(session.ProficiencyLevel))
	return session, nil
}

// StopSession ends the current session. Pending timers are cancelled before
// the transport is released. Calling it again, or without a session, is a
// no-op.
func (m *ConversationFlowManager) StopSession() error {
	var release func() error
	var sessionID string
	m.run(func() {
		if m.session == nil {
			return
		}
		sessionID = m.session.ID
		release = m.session.beginTeardown()
	})
	if release == nil {
		return nil
	}

	if err := release(); err != nil {
		cleanupErr := &CleanupError{SessionID: sessionID, Err: err}
		logger.Warn("session stopped with cleanup errors", "session_id", sessionID, "error", cleanupErr)
		return cleanupErr
	}
	return nil
}

// Destroy tears the manager down for good. Every cleanup step runs even if
// earlier ones fail; failures are logged. No events are delivered after
// Destroy returns.
func (m *ConversationFlowManager) Destroy() {
	m.destroyOnce.Do(func() {
		var errs []error

		if err := runCleanupStep("stop session", m.StopSession); err != nil {
			errs = append(errs, err)
		}

		if err := runCleanupStep("cancel timers", func() error {
			m.run(func() {
				m.destroyed = true
				if s := m.session; s != nil {
					s.validator.cancelAll()
					s.monitor.stopRecovery()
					s.setState(conversations.SessionEnded)
				}
			})
			return nil
		}); err != nil {
			errs = append(errs, err)
		}

		m.dispatcher.close()

		if len(errs) > 0 {
			var sessionID string
			if s := m.session; s != nil {
				sessionID = s.ID
			}
			logger.Error("destroy finished with errors",
				"error", &CleanupError{SessionID: sessionID, Err: errors.Join(errs...)})
		}
	})
}

// Wait blocks until the current session ends and returns a
// [*ConnectivityLostError] if connectivity loss ended it.
func (m *ConversationFlowManager) Wait(ctx context.Context) error {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s.lostErr != nil {
		return s.lostErr
	}
	return nil
}

// Session returns a snapshot of the current or most recent session.
func (m *ConversationFlowManager) Session() (conversations.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return conversations.Session{}, false
	}
	return m.session.snapshot(), true
}

func (m *ConversationFlowManager) Connectivity() conversations.Connectivity {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return conversations.Connectivity{State: transport.ConnectivityNew}
	}
	return m.session.monitor.snapshot()
}

// CurrentTurn returns the latest turn of the session, finalised or not.
func (m *ConversationFlowManager) CurrentTurn() (conversations.Turn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return conversations.Turn{}, false
	}
	turn := m.session.tracker.currentTurn()
	if turn == nil {
		return conversations.Turn{}, false
	}
	return turn.snapshot(), true
}

// History returns the completed turns of the session, oldest first.
func (m *ConversationFlowManager) History() []conversations.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}

	history := []conversations.Turn{}
	if err := copier.CopyWithOption(&history, &m.session.history, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("failed to copy turn history", "error", err)
		history = append(history, m.session.history...)
	}
	return history
}

// IsAISpeaking reports whether tutor audio is playing for the current turn.
func (m *ConversationFlowManager) IsAISpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return false
	}
	turn := m.session.tracker.currentTurn()
	return turn != nil && !turn.finalised && turn.Audio.IsAudioPlaying
}

// run applies f with the lock held, then delivers the events it caused and
// finishes any teardown it started.
func (m *ConversationFlowManager) run(f func()) {
	m.mu.Lock()
	f()
	release := m.pendingRelease
	m.pendingRelease = nil
	m.mu.Unlock()

	m.dispatcher.drain()
	for _, r := range release {
		r()
	}
}

// isCurrent reports whether s may still be mutated by transport events or
// timers. Must be called with the lock held.
func (m *ConversationFlowManager) isCurrent(s *activeSession) bool {
	return m.session == s && s.State.AcceptsTransportEvents()
}

// terminate tears s down from inside a locked section.
func (m *ConversationFlowManager) terminate(s *activeSession) {
	release := s.beginTeardown()
	if release == nil {
		return
	}

	m.pendingRelease = append(m.pendingRelease, func() {
		if err := release(); err != nil {
			logger.Warn("terminated session with cleanup errors",
				"session_id", s.ID,
				"error", &CleanupError{SessionID: s.ID, Err: err})
		}
	})
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// isNilDialer detects nil and typed-nil dialers.
func isNilDialer(dialer transport.Dialer) bool {
	if dialer == nil {
		return true
	}

	v := reflect.ValueOf(dialer)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
