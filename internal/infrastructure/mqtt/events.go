package mqtt

import (
	"github.com/fsmosquito/fsmosquito-client/internal/events"
	"github.com/fsmosquito/fsmosquito-client/internal/topics"
)

// Opened is raised after a session opens and the ingress filters are subscribed.
type Opened struct{}

// Closed is raised when a session ends. Err is nil for Disconnect and Close.
type Closed struct {
	Err error
}

// StatusRequested is raised for a status-report request.
type StatusRequested struct {
	// Directed is false for the broadcast topic shared by all clients.
	Directed bool
}

// SubscribeRequested is raised for a subscribe request.
type SubscribeRequested struct {
	Datums []topics.Datum
}

// SetValueRequested is raised for a set-value request.
type SetValueRequested struct {
	Request topics.SetValue
}

// MessageReceived is raised for every inbound message, routed or not.
type MessageReceived struct {
	Topic string
}

// MessageTransmitted is raised when the broker acknowledges a queued message.
type MessageTransmitted struct {
	Topic string
}

// Events holds the buses a Client publishes on.
type Events struct {
	Opened             *events.Bus[Opened]
	Closed             *events.Bus[Closed]
	StatusRequested    *events.Bus[StatusRequested]
	SubscribeRequested *events.Bus[SubscribeRequested]
	SetValueRequested  *events.Bus[SetValueRequested]
	MessageReceived    *events.Bus[MessageReceived]
	MessageTransmitted *events.Bus[MessageTransmitted]
}

// NewEvents creates an empty set of buses. onPanic may be nil.
func NewEvents(onPanic func(any)) *Events {
	return &Events{
		Opened:             events.NewBus[Opened](onPanic),
		Closed:             events.NewBus[Closed](onPanic),
		StatusRequested:    events.NewBus[StatusRequested](onPanic),
		SubscribeRequested: events.NewBus[SubscribeRequested](onPanic),
		SetValueRequested:  events.NewBus[SetValueRequested](onPanic),
		MessageReceived:    events.NewBus[MessageReceived](onPanic),
		MessageTransmitted: events.NewBus[MessageTransmitted](onPanic),
	}
}
