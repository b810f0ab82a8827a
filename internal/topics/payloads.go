package topics

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Payload decoding errors.
var (
	// ErrMalformedPayload is returned when an inbound body cannot be decoded.
	ErrMalformedPayload = errors.New("topics: malformed payload")

	// ErrUnsupportedValue is returned when a set-value body holds neither a
	// number nor a string.
	ErrUnsupportedValue = errors.New("topics: value must be a number or a string")
)

// Datum names one simulation variable and the units to read it in.
type Datum struct {
	DatumName string `json:"datumName"`
	Units     string `json:"units"`
}

// StatusRequest is the optional body of a status-report request.
type StatusRequest struct {
	Message *string `json:"message,omitempty"`
}

// Wants reports whether the request asks for a status report. An empty body
// or a body without a message always does.
func (s StatusRequest) Wants() bool {
	return s.Message == nil || strings.EqualFold(*s.Message, "report_status")
}

// SetValue is a decoded set-value request.
type SetValue struct {
	DatumName string
	ObjectID  uint32

	// Exactly one of Number or Text is meaningful, selected by IsText.
	Number float64
	Text   string
	IsText bool
}

type setValueBody struct {
	ObjectID *uint32        `json:"objectId"`
	Value    json.RawMessage `json:"value"`
}

// DecodeStatusRequest decodes a status-report body. An empty body is valid.
func DecodeStatusRequest(payload []byte) (StatusRequest, error) {
	var req StatusRequest
	if len(bytes.TrimSpace(payload)) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return StatusRequest{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return req, nil
}

// DecodeSubscribe decodes a subscribe body: an ordered JSON array of datums.
func DecodeSubscribe(payload []byte) ([]Datum, error) {
	var datums []Datum
	if err := json.Unmarshal(payload, &datums); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	for i, d := range datums {
		if d.DatumName == "" {
			return nil, fmt.Errorf("%w: entry %d has no datumName", ErrMalformedPayload, i)
		}
	}
	return datums, nil
}

// DecodeSetValue decodes a set-value body for a matched route.
//
// The object id comes from the body when present, otherwise from the topic
// segment; when neither resolves it is 0.
func DecodeSetValue(r Route, payload []byte) (SetValue, error) {
	var body setValueBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return SetValue{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	sv := SetValue{DatumName: r.DatumName, ObjectID: r.ObjectID()}
	if body.ObjectID != nil {
		sv.ObjectID = *body.ObjectID
	}

	raw := bytes.TrimSpace(body.Value)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return SetValue{}, fmt.Errorf("%w: missing value", ErrMalformedPayload)
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &sv.Text); err != nil {
			return SetValue{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		sv.IsText = true
	default:
		if err := json.Unmarshal(raw, &sv.Number); err != nil {
			return SetValue{}, fmt.Errorf("%w: %w", ErrUnsupportedValue, err)
		}
	}
	return sv, nil
}
