package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ErrMalformedPayload is returned for bus payloads that are not a
// {"node_id": ..., "value": ...} record.
var ErrMalformedPayload = errors.New("malformed telemetry payload")

// TelemetryMessage is the record carried on the bus for one node reading.
type TelemetryMessage struct {
	NodeID     string    `json:"node_id"`
	Value      any       `json:"value"`
	ReceivedAt time.Time `json:"-"`
}

// NewTelemetryMessage builds a message keyed by the shortened node id.
func NewTelemetryMessage(id NodeID, value any) TelemetryMessage {
	return TelemetryMessage{NodeID: id.Short(), Value: value}
}

func (m TelemetryMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeTelemetryMessage parses a bus payload. Numbers are kept as
// json.Number so large integers survive until Float is called.
func DecodeTelemetryMessage(payload []byte) (TelemetryMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw struct {
		NodeID *string `json:"node_id"`
		Value  any     `json:"value"`
	}
	if err := dec.Decode(&raw); err != nil {
		return TelemetryMessage{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return TelemetryMessage{}, fmt.Errorf("%w: trailing data after record", ErrMalformedPayload)
	}
	if raw.NodeID == nil || *raw.NodeID == "" {
		return TelemetryMessage{}, fmt.Errorf("%w: missing node_id", ErrMalformedPayload)
	}
	if raw.Value == nil {
		return TelemetryMessage{}, fmt.Errorf("%w: missing value for %s", ErrMalformedPayload, *raw.NodeID)
	}
	return TelemetryMessage{NodeID: *raw.NodeID, Value: raw.Value, ReceivedAt: time.Now()}, nil
}

// Float coerces the scalar value to float64. Booleans map to 0/1 and numeric
// strings are parsed.
func (m TelemetryMessage) Float() (float64, error) {
	switch v := m.Value.(type) {
	case json.Number:
		return v.Float64()
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: value %q is not numeric", ErrMalformedPayload, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: unsupported value type %T", ErrMalformedPayload, m.Value)
	}
}
