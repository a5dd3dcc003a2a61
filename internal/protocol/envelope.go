package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Envelope is one inbound frame: a notification id and an optional
// JSON-encoded result whose keys name the handler arguments.
type Envelope struct {
	ID     string
	Result *string

	// Err marks a frame the transport received but could not decode.
	Err error
}

type wireEnvelope struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
}

// NewEnvelope encodes payload as the string result of an envelope.
// A nil payload produces a bare reply with a null result.
func NewEnvelope(id string, payload any) (Envelope, error) {
	env := Envelope{ID: id}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	result := string(data)
	env.Result = &result
	return env, nil
}

// Undecodable carries a frame decode failure through dispatch so it is
// reported like any other malformed envelope.
func Undecodable(err error) Envelope {
	if !errors.Is(err, ErrProtocol) {
		err = fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return Envelope{Err: err}
}

// DecodeEnvelope parses one inbound frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (e Envelope) Validate() error {
	if e.Err != nil {
		return e.Err
	}
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedEnvelope)
	}
	return nil
}

// HasResult reports whether the envelope carries handler arguments.
func (e Envelope) HasResult() bool {
	return e.Result != nil && strings.TrimSpace(*e.Result) != ""
}

// Payload returns the result as raw JSON, or nil for a bare reply.
func (e Envelope) Payload() json.RawMessage {
	if !e.HasResult() {
		return nil
	}
	return json.RawMessage(*e.Result)
}

// UnmarshalJSON accepts a string result (the documented form) as well as an
// inline JSON object, which some servers emit for large trees.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	e.ID = wire.ID
	e.Result = nil

	raw := bytes.TrimSpace(wire.Result)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var result string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &result); err != nil {
			return fmt.Errorf("%w: result: %v", ErrMalformedEnvelope, err)
		}
	} else {
		result = string(raw)
	}
	e.Result = &result
	return nil
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	out := struct {
		ID     string  `json:"id"`
		Result *string `json:"result"`
	}{ID: e.ID, Result: e.Result}
	return json.Marshal(out)
}
