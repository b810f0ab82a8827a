package mqtt

import (
	"encoding/json"
	"fmt"
)

// ContentType tags how an outbound payload was serialised.
//
// MQTT 3.1.1 has no content-type property, so the tag travels with the
// queued message for logging and for transports that can carry it.
type ContentType int

// Content types.
const (
	ContentBinary ContentType = iota
	ContentText
	ContentJSON
)

// String returns the MIME type.
func (ct ContentType) String() string {
	switch ct {
	case ContentText:
		return "text/plain"
	case ContentJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

type payloadKind int

const (
	payloadBytes payloadKind = iota
	payloadText
	payloadNumber
	payloadStructured
)

// Payload is a value to publish. Build one with Bytes, Text, Number or
// Structured; it is serialised once, when the message is queued.
type Payload struct {
	kind   payloadKind
	bytes  []byte
	text   string
	number float64
	value  any
}

// Bytes passes b through unchanged.
func Bytes(b []byte) Payload {
	return Payload{kind: payloadBytes, bytes: b}
}

// Text publishes s as UTF-8.
func Text(s string) Payload {
	return Payload{kind: payloadText, text: s}
}

// Number publishes f as a JSON number.
func Number(f float64) Payload {
	return Payload{kind: payloadNumber, number: f}
}

// Structured publishes v as JSON.
func Structured(v any) Payload {
	return Payload{kind: payloadStructured, value: v}
}

// Encode serialises the payload and reports its content type.
func (p Payload) Encode() ([]byte, ContentType, error) {
	switch p.kind {
	case payloadBytes:
		return p.bytes, ContentBinary, nil
	case payloadText:
		return []byte(p.text), ContentText, nil
	case payloadNumber:
		b, err := json.Marshal(p.number)
		if err != nil {
			return nil, ContentJSON, fmt.Errorf("encoding number: %w", err)
		}
		return b, ContentJSON, nil
	default:
		b, err := json.Marshal(p.value)
		if err != nil {
			return nil, ContentJSON, fmt.Errorf("encoding payload: %w", err)
		}
		return b, ContentJSON, nil
	}
}
