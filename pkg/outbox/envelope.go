package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnvelopeVersion is written on every new envelope. Consumers branch on it
// when payload shapes change.
const EnvelopeVersion = 1

// ActorRef identifies who triggered the event.
type ActorRef struct {
	Actor     string `json:"actor"`
	RequestID string `json:"requestId,omitempty"`
}

// PayloadEnvelope wraps every event payload stored in outbox_events.payload
// and is sent verbatim as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

var errEmptyEnvelopeData = errors.New("envelope data is empty")

// DecodeEnvelope parses a stored payload and rejects envelopes without an
// event id or data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.EventID == "" {
		return PayloadEnvelope{}, errors.New("envelope missing eventId")
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, errEmptyEnvelopeData
	}
	return envelope, nil
}
