package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrMissingEventName = errors.New("missing event name")
	ErrNilEvent         = errors.New("nil event")
)

// Envelope is the wire format shared by inbound events and outbound requests.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	TS    int64           `json:"ts,omitempty"` // Unix milliseconds, sender clock
}

// DecodeEnvelope parses the envelope without touching the payload.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrMissingEventName
	}
	return env, nil
}

// Decode parses a frame into its typed payload.
func Decode(frame []byte) (Event, error) {
	env, err := DecodeEnvelope(frame)
	if err != nil {
		return nil, err
	}
	return decodePayload(env)
}

func decodePayload(env Envelope) (Event, error) {
	switch env.Event {
	case MetricsUpdate:
		return unmarshalAs[Metrics](env)
	case NewAlert:
		return unmarshalAs[Alert](env)
	case PipelineUpdate:
		return unmarshalAs[Pipeline](env)
	case AnomalyDetected:
		return unmarshalAs[Anomaly](env)
	case AIPrediction:
		return unmarshalAs[Prediction](env)
	case ServiceHealth:
		return unmarshalAs[Health](env)
	default:
		return Raw{Name: env.Event, Data: env.Data}, nil
	}
}

func unmarshalAs[T Event](env Envelope) (Event, error) {
	var payload T
	if len(env.Data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, fmt.Errorf("parse %s payload: %w", env.Event, err)
	}
	return payload, nil
}

// Encode wraps an event in an envelope stamped with the current time.
func Encode(e Event) ([]byte, error) {
	if e == nil {
		return nil, ErrNilEvent
	}
	if e.EventName() == "" {
		return nil, ErrMissingEventName
	}

	var data json.RawMessage
	if raw, ok := e.(Raw); ok {
		data = raw.Data
	} else {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.EventName(), err)
		}
		data = b
	}

	return json.Marshal(Envelope{
		Event: e.EventName(),
		Data:  data,
		TS:    time.Now().UnixMilli(),
	})
}

// EncodeRequest builds a payload-less outbound request frame.
func EncodeRequest(name Name) ([]byte, error) {
	return Encode(Raw{Name: name})
}
