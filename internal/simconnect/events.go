package simconnect

import (
	"github.com/fsmosquito/fsmosquito-client/internal/events"
)

// Opened is raised when the simulation host confirms the session.
type Opened struct {
	AppName string
}

// Closed is raised when the session ends, whatever the cause.
type Closed struct {
	Reason string
}

// ValueChanged is raised when a polled datum reports a new value.
type ValueChanged struct {
	DatumName string
	Units     string
	ObjectID  uint32
	Value     float64
}

// DataRequested is raised after a pulse that issued at least one poll.
type DataRequested struct {
	Count int
}

// DataReceived is raised for every data response, including stale ones.
type DataReceived struct {
	RequestID uint32
}

// Events holds the buses a Client publishes on.
type Events struct {
	Opened        *events.Bus[Opened]
	Closed        *events.Bus[Closed]
	ValueChanged  *events.Bus[ValueChanged]
	DataRequested *events.Bus[DataRequested]
	DataReceived  *events.Bus[DataReceived]
}

// NewEvents creates an empty set of buses. onPanic may be nil.
func NewEvents(onPanic func(any)) *Events {
	return &Events{
		Opened:        events.NewBus[Opened](onPanic),
		Closed:        events.NewBus[Closed](onPanic),
		ValueChanged:  events.NewBus[ValueChanged](onPanic),
		DataRequested: events.NewBus[DataRequested](onPanic),
		DataReceived:  events.NewBus[DataReceived](onPanic),
	}
}
