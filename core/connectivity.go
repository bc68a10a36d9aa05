package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-tutor/core/conversations"
	"github.com/koscakluka/ema-tutor/core/transport"
)

const (
	connectivityLostThreshold      = "disconnect threshold exceeded"
	connectivityLostFailed         = "transport failed"
	connectivityLostRecoveryWindow = "transport did not reconnect within the recovery window"
	connectivityLostClosed         = "transport closed unexpectedly"
)

type connectivityObserver interface {
	connectivityChanged(from, to transport.ConnectivityState, disconnectionCount int)
	connectivityDegraded(disconnectionCount int)
	connectivityLost(reason string, disconnectionCount int)
}

// connectivityMonitor classifies transport connectivity transitions. It
// tolerates up to threshold disconnections per session as long as each one
// recovers within the recovery window.
type connectivityMonitor struct {
	threshold      int
	recoveryWindow time.Duration
	scheduler      scheduler
	now            func() time.Time
	observer       connectivityObserver

	state              transport.ConnectivityState
	disconnectionCount int
	lastTransitionAt   time.Time
	lost               bool

	cancelRecovery func()
}

func newConnectivityMonitor(cfg Config, scheduler scheduler, now func() time.Time, observer connectivityObserver) *connectivityMonitor {
	m := &connectivityMonitor{
		threshold:      cfg.ConnectivityDisconnectThreshold,
		recoveryWindow: cfg.ConnectivityRecoveryWindow,
		scheduler:      scheduler,
		now:            now,
		observer:       observer,
	}
	m.reset()
	return m
}

func (m *connectivityMonitor) reset() {
	m.stopRecovery()
	m.state = transport.ConnectivityNew
	m.disconnectionCount = 0
	m.lastTransitionAt = m.now()
	m.lost = false
}

func (m *connectivityMonitor) snapshot() conversations.Connectivity {
	return conversations.Connectivity{
		State:              m.state,
		DisconnectionCount: m.disconnectionCount,
		LastTransitionAt:   m.lastTransitionAt,
	}
}

func (m *connectivityMonitor) onConnectivityChanged(next transport.ConnectivityState) {
	if !next.Valid() {
		logger.Warn("ignoring unknown connectivity state", "state", string(next))
		return
	}
	if m.state == next || m.state.IsTerminal() || m.lost {
		return
	}
	if next == transport.ConnectivityNew {
		logger.Warn("ignoring connectivity regression to new", "from", string(m.state))
		return
	}

	from := m.state
	m.transition(next)

	switch next {
	case transport.ConnectivityDisconnected:
		m.disconnectionCount++
		instruments.disconnections.Add(context.Background(), 1)
		m.observer.connectivityChanged(from, next, m.disconnectionCount)

		if m.disconnectionCount > m.threshold {
			m.fail(connectivityLostThreshold)
			return
		}

		logger.Info("transport disconnected, waiting for recovery",
			"disconnection_count", m.disconnectionCount,
			"recovery_window", m.recoveryWindow.String())
		m.observer.connectivityDegraded(m.disconnectionCount)
		m.startRecovery()

	case transport.ConnectivityConnected:
		m.observer.connectivityChanged(from, next, m.disconnectionCount)
		if m.cancelRecovery != nil {
			m.stopRecovery()
			instruments.recoveries.Add(context.Background(), 1)
			logger.Info("transport recovered", "disconnection_count", m.disconnectionCount)
		}

	case transport.ConnectivityFailed:
		m.observer.connectivityChanged(from, next, m.disconnectionCount)
		m.fail(connectivityLostFailed)

	case transport.ConnectivityClosed:
		m.observer.connectivityChanged(from, next, m.disconnectionCount)
		m.fail(connectivityLostClosed)

	default:
		m.observer.connectivityChanged(from, next, m.disconnectionCount)
	}
}

// close moves the monitor to closed as part of an explicit teardown. It
// never raises connectivity lost.
func (m *connectivityMonitor) close() {
	m.stopRecovery()
	if m.state == transport.ConnectivityClosed {
		return
	}

	from := m.state
	m.transition(transport.ConnectivityClosed)
	m.observer.connectivityChanged(from, transport.ConnectivityClosed, m.disconnectionCount)
}

func (m *connectivityMonitor) transition(next transport.ConnectivityState) {
	m.state = next
	m.lastTransitionAt = m.now()
}

func (m *connectivityMonitor) fail(reason string) {
	m.stopRecovery()
	if m.lost {
		return
	}

	m.lost = true
	logger.Error("connectivity lost",
		"reason", reason,
		"disconnection_count", m.disconnectionCount)
	m.observer.connectivityLost(reason, m.disconnectionCount)
}

func (m *connectivityMonitor) startRecovery() {
	m.stopRecovery()
	m.cancelRecovery = m.scheduler.schedule(m.recoveryWindow, func() {
		m.cancelRecovery = nil
		if m.state != transport.ConnectivityConnected {
			m.fail(connectivityLostRecoveryWindow)
		}
	})
}

func (m *connectivityMonitor) stopRecovery() {
	if m.cancelRecovery != nil {
		m.cancelRecovery()
		m.cancelRecovery = nil
	}
}
