package simconnect

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Relay frame types. A frame is size(2) + type(2) + payload, big endian,
// where size counts the type field and the payload but not itself.
const (
	msgHello     uint16 = 0x0001 // client -> relay: app name
	msgHelloAck  uint16 = 0x0002 // relay -> client
	msgGoodbye   uint16 = 0x0003 // client -> relay, best effort on close
	msgOpen      uint16 = 0x0010 // relay -> client: host app name
	msgQuit      uint16 = 0x0011 // relay -> client
	msgException uint16 = 0x0012 // relay -> client: exception code
	msgData      uint16 = 0x0013 // relay -> client: request id, object id, float64

	msgAddToDataDefinition uint16 = 0x0020
	msgRegisterStruct      uint16 = 0x0021
	msgRequestDataByType   uint16 = 0x0022
	msgSetData             uint16 = 0x0023
)

// frameHeaderSize is size(2) + type(2).
const frameHeaderSize = 4

// encodeFrame builds a complete frame.
func encodeFrame(msgType uint16, payload []byte) ([]byte, error) {
	if len(payload)+2 > math.MaxUint16 {
		return nil, fmt.Errorf("%w: payload of %d bytes too large", ErrProtocol, len(payload))
	}
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(2+len(payload))) //nolint:gosec // bounded above
	binary.BigEndian.PutUint16(buf[2:4], msgType)
	copy(buf[4:], payload)
	return buf, nil
}

// parseFrame splits a complete frame into type and payload.
func parseFrame(data []byte) (msgType uint16, payload []byte, err error) {
	if len(data) < frameHeaderSize {
		return 0, nil, fmt.Errorf("%w: frame too short (%d bytes)", ErrProtocol, len(data))
	}
	declared := binary.BigEndian.Uint16(data[0:2])
	if int(declared) != len(data)-2 {
		return 0, nil, fmt.Errorf("%w: size mismatch (declared %d, actual %d)",
			ErrProtocol, declared, len(data)-2)
	}
	msgType = binary.BigEndian.Uint16(data[2:4])
	if len(data) > frameHeaderSize {
		payload = data[frameHeaderSize:]
	}
	return msgType, payload, nil
}

// writer appends big-endian fields.
type writer struct {
	buf []byte
}

func (w *writer) u16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *writer) u32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *writer) f64(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *writer) str(s string) {
	w.u16(uint16(len(s))) //nolint:gosec // callers bound string length
	w.buf = append(w.buf, s...)
}

// reader consumes big-endian fields, latching the first error.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = fmt.Errorf("%w: truncated payload", ErrProtocol)
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) f64() float64 {
	if b := r.take(8); b != nil {
		return math.Float64frombits(binary.BigEndian.Uint64(b))
	}
	return 0
}

func (r *reader) str() string {
	n := r.u16()
	if b := r.take(int(n)); b != nil {
		return string(b)
	}
	return ""
}

// maxStringLen bounds datum names, units and text values.
const maxStringLen = 256

func checkString(field, s string) error {
	if len(s) > maxStringLen {
		return fmt.Errorf("%w: %s longer than %d bytes", ErrProtocol, field, maxStringLen)
	}
	return nil
}

func encodeAddToDataDefinition(defID uint32, datumName, units string, kind DataType) ([]byte, error) {
	if err := checkString("datum name", datumName); err != nil {
		return nil, err
	}
	if err := checkString("units", units); err != nil {
		return nil, err
	}
	var w writer
	w.u32(defID)
	w.u16(uint16(kind))
	w.str(datumName)
	w.str(units)
	return encodeFrame(msgAddToDataDefinition, w.buf)
}

func encodeRegisterStruct(defID uint32, kind DataType) ([]byte, error) {
	var w writer
	w.u32(defID)
	w.u16(uint16(kind))
	return encodeFrame(msgRegisterStruct, w.buf)
}

func encodeRequestDataByType(requestID, defID uint32, objectType ObjectType) ([]byte, error) {
	var w writer
	w.u32(requestID)
	w.u32(defID)
	w.u32(0) // radius in metres; 0 selects the user object only
	w.u32(uint32(objectType))
	return encodeFrame(msgRequestDataByType, w.buf)
}

func encodeSetData(defID, objectID uint32, v Value) ([]byte, error) {
	var w writer
	w.u32(defID)
	w.u32(objectID)
	w.u16(uint16(v.DataType()))
	switch v.Kind {
	case ValueText:
		if err := checkString("text value", v.Text); err != nil {
			return nil, err
		}
		w.str(v.Text)
	case ValueNumber:
		w.f64(v.Number)
	default:
		return nil, fmt.Errorf("%w: value has no kind", ErrProtocol)
	}
	return encodeFrame(msgSetData, w.buf)
}

func encodeHello(appName string) ([]byte, error) {
	if err := checkString("app name", appName); err != nil {
		return nil, err
	}
	var w writer
	w.str(appName)
	return encodeFrame(msgHello, w.buf)
}

// dataPayload is the body of a msgData frame.
type dataPayload struct {
	requestID uint32
	objectID  uint32
	value     float64
}

func decodeData(payload []byte) (dataPayload, error) {
	r := reader{buf: payload}
	d := dataPayload{requestID: r.u32(), objectID: r.u32(), value: r.f64()}
	return d, r.err
}

func decodeException(payload []byte) (uint32, error) {
	r := reader{buf: payload}
	code := r.u32()
	return code, r.err
}

func decodeOpen(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", nil
	}
	r := reader{buf: payload}
	name := r.str()
	return name, r.err
}
