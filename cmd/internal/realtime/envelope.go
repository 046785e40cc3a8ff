package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FeedSubprotocol is the websocket subprotocol clients must offer.
const FeedSubprotocol = "excuses.feed.v1"

// Version is the envelope protocol version.
const Version = 1

// Envelope types.
const (
	TypeHello         = "feed.hello"
	TypeExcuseCreated = "excuse.created"
	TypeExcuseDeleted = "excuse.deleted"
	TypeError         = "error"
)

var allowedTypes = map[string]struct{}{
	TypeHello:         {},
	TypeExcuseCreated: {},
	TypeExcuseDeleted: {},
	TypeError:         {},
}

// Envelope is the frame written to feed subscribers.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// HelloPayload is sent once right after the upgrade.
type HelloPayload struct {
	SessionID   string `json:"session_id"`
	Subscribers int    `json:"subscribers"`
}

// ErrorPayload reports a problem with something the client sent.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validate checks the envelope header fields.
func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("invalid protocol version: got=%d want=%d", e.V, Version)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if _, ok := allowedTypes[e.Type]; !ok {
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	if e.ID == "" {
		return errors.New("missing id")
	}
	if e.TS.IsZero() {
		return errors.New("missing ts")
	}
	if e.Payload == nil {
		return errors.New("missing payload")
	}
	return nil
}

// NewEnvelope marshals payload into a new envelope stamped with ts.
func NewEnvelope(typ string, payload any, ts time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	id, err := NewEnvelopeID(ts)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{V: Version, Type: typ, ID: id, TS: ts.UTC(), Payload: raw}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func marshalEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
