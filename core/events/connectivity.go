package events

import (
	"time"

	"github.com/koscakluka/ema-tutor/core/transport"
)

const (
	// KindConnectivityChanged identifies a transport connectivity transition.
	KindConnectivityChanged Kind = "connectivity.changed"
	// KindConnectivityDegraded identifies a non-fatal disconnection.
	KindConnectivityDegraded Kind = "connectivity.degraded"
	// KindConnectivityLost identifies fatal loss of connectivity.
	KindConnectivityLost Kind = "connectivity.lost"
)

// ConnectivityChanged marks a transport connectivity transition.
type ConnectivityChanged struct {
	Base
	From               transport.ConnectivityState
	To                 transport.ConnectivityState
	DisconnectionCount int
}

// NewConnectivityChanged creates a connectivity changed event.
func NewConnectivityChanged(at time.Time, from, to transport.ConnectivityState, disconnectionCount int) ConnectivityChanged {
	return ConnectivityChanged{Base: NewBase(KindConnectivityChanged, at), From: from, To: to, DisconnectionCount: disconnectionCount}
}

// ConnectivityDegraded marks a non-fatal disconnection.
type ConnectivityDegraded struct {
	Base
	Count int
}

// NewConnectivityDegraded creates a connectivity degraded event.
func NewConnectivityDegraded(at time.Time, count int) ConnectivityDegraded {
	return ConnectivityDegraded{Base: NewBase(KindConnectivityDegraded, at), Count: count}
}

// ConnectivityLost marks fatal loss of connectivity.
type ConnectivityLost struct {
	Base
	Reason             string
	DisconnectionCount int
}

// NewConnectivityLost creates a connectivity lost event.
func NewConnectivityLost(at time.Time, reason string, disconnectionCount int) ConnectivityLost {
	return ConnectivityLost{Base: NewBase(KindConnectivityLost, at), Reason: reason, DisconnectionCount: disconnectionCount}
}
