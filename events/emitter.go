package events

import (
	"sync"

	loggerv2 "journalagent/logger/v2"
)

// EventObserver consumes emitted events.
type EventObserver interface {
	OnEvent(event *Event)
}

// ObserverFunc adapts a function to EventObserver.
type ObserverFunc func(event *Event)

func (f ObserverFunc) OnEvent(event *Event) { f(event) }

// EventEmitter fans events out to observers. A panicking observer is
// logged and skipped.
type EventEmitter struct {
	mu        sync.RWMutex
	requestID string
	observers []EventObserver
	logger    loggerv2.Logger
}

// NewEventEmitter creates an emitter whose events carry requestID.
func NewEventEmitter(requestID string, logger loggerv2.Logger) *EventEmitter {
	if logger == nil {
		logger = loggerv2.NewNoop()
	}
	return &EventEmitter{requestID: requestID, logger: logger}
}

// AddObserver adds an event observer
func (e *EventEmitter) AddObserver(observer EventObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, observer)
}

// Emit wraps data in an event and sends it to every observer. A nil
// emitter discards the event.
func (e *EventEmitter) Emit(data EventData) {
	if e == nil {
		return
	}
	ev := NewEvent(e.requestID, data)
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, o := range e.observers {
		e.deliver(o, ev)
	}
}

func (e *EventEmitter) deliver(o EventObserver, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("event observer panicked",
				loggerv2.String("event", string(ev.Type)),
				loggerv2.Any("panic", r))
		}
	}()
	o.OnEvent(ev)
}
