package topics

import (
	"errors"
	"testing"
)

func TestDecodeStatusRequest(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
		wantErr bool
	}{
		{name: "empty body", payload: "", want: true},
		{name: "whitespace body", payload: "  \n", want: true},
		{name: "no message", payload: `{}`, want: true},
		{name: "report_status", payload: `{"message":"report_status"}`, want: true},
		{name: "case insensitive", payload: `{"message":"REPORT_STATUS"}`, want: true},
		{name: "other message", payload: `{"message":"hello"}`, want: false},
		{name: "malformed", payload: `{"message":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeStatusRequest([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("err = %v, want ErrMalformedPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Wants() != tt.want {
				t.Errorf("Wants() = %v, want %v", req.Wants(), tt.want)
			}
		})
	}
}

func TestDecodeSubscribe(t *testing.T) {
	datums, err := DecodeSubscribe([]byte(`[
		{"datumName":"PLANE ALTITUDE","units":"feet"},
		{"datumName":"GENERAL ENG RPM:1","units":"rpm"}
	]`))
	if err != nil {
		t.Fatalf("DecodeSubscribe() error = %v", err)
	}
	if len(datums) != 2 {
		t.Fatalf("len = %d, want 2", len(datums))
	}
	if datums[0] != (Datum{DatumName: "PLANE ALTITUDE", Units: "feet"}) {
		t.Errorf("datums[0] = %+v", datums[0])
	}
	if datums[1].DatumName != "GENERAL ENG RPM:1" {
		t.Errorf("order not preserved: %+v", datums)
	}
}

func TestDecodeSubscribe_Malformed(t *testing.T) {
	for _, payload := range []string{``, `{"datumName":"x"}`, `[{"units":"feet"}]`, `[1,2]`} {
		if _, err := DecodeSubscribe([]byte(payload)); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("DecodeSubscribe(%q) err = %v, want ErrMalformedPayload", payload, err)
		}
	}
}

func TestDecodeSetValue(t *testing.T) {
	r := NewRouter("alice")
	route, ok := r.Match("fsm/client/alice/simconnect/set_data/1/THROTTLE_LEVER")
	if !ok {
		t.Fatal("route did not match")
	}

	tests := []struct {
		name    string
		payload string
		want    SetValue
		wantErr error
	}{
		{
			name:    "number uses topic object id",
			payload: `{"value": 75.5}`,
			want:    SetValue{DatumName: "THROTTLE LEVER", ObjectID: 1, Number: 75.5},
		},
		{
			name:    "body object id wins",
			payload: `{"objectId": 4, "value": 10}`,
			want:    SetValue{DatumName: "THROTTLE LEVER", ObjectID: 4, Number: 10},
		},
		{
			name:    "text value",
			payload: `{"value": "ON"}`,
			want:    SetValue{DatumName: "THROTTLE LEVER", ObjectID: 1, Text: "ON", IsText: true},
		},
		{name: "missing value", payload: `{"objectId": 1}`, wantErr: ErrMalformedPayload},
		{name: "null value", payload: `{"value": null}`, wantErr: ErrMalformedPayload},
		{name: "bool value", payload: `{"value": true}`, wantErr: ErrUnsupportedValue},
		{name: "object value", payload: `{"value": {"a":1}}`, wantErr: ErrUnsupportedValue},
		{name: "not json", payload: `75`, wantErr: ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSetValue(route, []byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeSetValue_UnresolvableObjectDefaultsToZero(t *testing.T) {
	route, _ := NewRouter("alice").Match("fsm/client/alice/simconnect/set_data/self/plane_altitude")
	got, err := DecodeSetValue(route, []byte(`{"value": 1000}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ObjectID != 0 || got.DatumName != "plane altitude" {
		t.Errorf("got %+v", got)
	}
}
