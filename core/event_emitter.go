package orchestration

import (
	"fmt"
	"sync"

	"github.com/koscakluka/ema-tutor/core/events"
)

// EventHandler receives every public event of a manager.
type EventHandler func(events.Event)

func newCallbackEventHandler(opts Callbacks) EventHandler {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.SessionStateChanged:
			if opts.onSessionStateChanged != nil {
				opts.onSessionStateChanged(typedEvent.From, typedEvent.To)
			}
		case events.AISpeechStarted:
			if opts.onAISpeechStarted != nil {
				opts.onAISpeechStarted(typedEvent.ResponseID)
			}
		case events.AISpeechEnded:
			if opts.onAISpeechEnded != nil {
				opts.onAISpeechEnded(typedEvent.Duration)
			}
		case events.AITranscriptComplete:
			if opts.onAITranscriptComplete != nil {
				opts.onAITranscriptComplete(typedEvent.Text, typedEvent.CompletionReason)
			}
		case events.TurnCompleted:
			if opts.onTurnCompleted != nil {
				opts.onTurnCompleted(typedEvent.Turn)
			}
		case events.AudioStateChanged:
			if opts.onAudioStateChanged != nil {
				opts.onAudioStateChanged(typedEvent.ResponseID, typedEvent.State)
			}
		case events.ConnectivityDegraded:
			if opts.onConnectivityDegraded != nil {
				opts.onConnectivityDegraded(typedEvent.Count)
			}
		case events.ConnectivityLost:
			if opts.onConnectivityLost != nil {
				opts.onConnectivityLost()
			}
		case events.Error:
			if opts.onError != nil {
				opts.onError(typedEvent.ErrorKind, typedEvent.Detail)
			}
		}
	}
}

// eventDispatcher delivers events one at a time in the order they were
// enqueued. Handlers may call back into the manager; events they cause are
// delivered after the current one returns.
type eventDispatcher struct {
	mu       sync.Mutex
	handlers []EventHandler
	queue    []events.Event
	draining bool
	closed   bool
}

func (d *eventDispatcher) addHandler(handler EventHandler) {
	if handler == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, handler)
}

// enqueue must be called while the manager lock is held so queue order
// matches mutation order.
func (d *eventDispatcher) enqueue(event events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.queue = append(d.queue, event)
}

// drain must be called without holding the manager lock.
func (d *eventDispatcher) drain() {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true

	for len(d.queue) > 0 {
		event := d.queue[0]
		d.queue = d.queue[1:]
		handlers := d.handlers
		d.mu.Unlock()

		for _, handler := range handlers {
			deliver(handler, event)
		}

		d.mu.Lock()
	}

	d.draining = false
	d.mu.Unlock()
}

func (d *eventDispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.queue = nil
}

func deliver(handler EventHandler, event events.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("event handler panicked",
				"event", string(event.Kind()),
				"error", fmt.Sprint(recovered))
		}
	}()

	handler(event)
}
