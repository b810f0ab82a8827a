package simconnect

import (
	"context"
	"fmt"
)

// Handle identifies the simulation host to connect to. For the relay
// provider it is the relay URL ("tcp://host:port" or "unix:///path").
type Handle string

// DataType is the wire type of a data definition.
type DataType uint16

// Supported data definition types.
const (
	DataTypeFloat64   DataType = 4
	DataTypeString256 DataType = 10
)

// String returns the SimConnect name of the type.
func (d DataType) String() string {
	switch d {
	case DataTypeFloat64:
		return "FLOAT64"
	case DataTypeString256:
		return "STRING256"
	default:
		return fmt.Sprintf("DataType(%d)", uint16(d))
	}
}

// ObjectType selects which sim objects a by-type request targets.
type ObjectType uint32

// ObjectTypeUser is the user-controlled aircraft.
const ObjectTypeUser ObjectType = 0

// ValueKind tags the variant held by a Value.
type ValueKind uint8

// Value variants.
const (
	ValueNumber ValueKind = iota + 1
	ValueText
)

// Value is a datum value written to a sim object.
type Value struct {
	Kind   ValueKind
	Number float64
	Text   string
}

// NumberValue wraps a numeric value.
func NumberValue(f float64) Value {
	return Value{Kind: ValueNumber, Number: f}
}

// TextValue wraps a string value.
func TextValue(s string) Value {
	return Value{Kind: ValueText, Text: s}
}

// DataType returns the definition type used to write v.
func (v Value) DataType() DataType {
	if v.Kind == ValueText {
		return DataTypeString256
	}
	return DataTypeFloat64
}

// String formats the value for logs.
func (v Value) String() string {
	if v.Kind == ValueText {
		return v.Text
	}
	return fmt.Sprint(v.Number)
}

// Handlers receives provider signals. They are invoked from inside
// Provider.ReceiveMessage on the goroutine that called it.
type Handlers struct {
	OnOpen      func(appName string)
	OnQuit      func()
	OnException func(code uint32)
	OnData      func(requestID, objectID uint32, value float64)
}

// Provider is an open session with the simulation host.
//
// Calls other than ReceiveMessage may be made concurrently with
// ReceiveMessage. After Close every call returns an error.
type Provider interface {
	// AddToDataDefinition adds a datum to the data definition defID.
	AddToDataDefinition(defID uint32, datumName, units string, kind DataType) error

	// RegisterDataDefineStruct fixes the layout of defID so responses carry
	// a decoded value.
	RegisterDataDefineStruct(defID uint32, kind DataType) error

	// RequestDataOnSimObjectType asks for one value of defID. The answer
	// arrives later through Handlers.OnData with the same request id.
	RequestDataOnSimObjectType(requestID, defID uint32, objectType ObjectType) error

	// SetDataOnSimObject writes v through defID to objectID.
	SetDataOnSimObject(defID, objectID uint32, v Value) error

	// ReceiveMessage dispatches every message received since the previous
	// call. An error means the session is unusable.
	ReceiveMessage() error

	// Close releases the session.
	Close() error
}

// Dialer opens provider sessions.
type Dialer interface {
	Dial(ctx context.Context, handle Handle, appName string, h Handlers) (Provider, error)
}
