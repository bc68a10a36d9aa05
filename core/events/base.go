package events

import "time"

type Kind string

// Event is implemented by every event in this package. The set is closed:
// consumers switch on the concrete type.
type Event interface {
	Kind() Kind
	Timestamp() time.Time

	isEvent()
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

// NewBase creates the shared event header. The timestamp comes from the
// emitter's clock so events line up with timer firings.
func NewBase(kind Kind, at time.Time) Base {
	return Base{kind: kind, timestamp: at}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

func (Base) isEvent() {}
