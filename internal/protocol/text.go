package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Text is a handler argument carried as a string on the wire. Servers that
// emit bare numbers or booleans for it are accepted verbatim.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	*t = Text(rawText(data))
	return nil
}

// Embedded is a handler argument holding a JSON document, either inline or
// encoded as a string.
type Embedded json.RawMessage

func (e *Embedded) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		*e = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: embedded document: %v", ErrMalformedPayload, err)
		}
		data = []byte(s)
	}
	if !json.Valid(data) {
		return fmt.Errorf("%w: embedded document is not json", ErrMalformedPayload)
	}
	*e = append((*e)[:0], data...)
	return nil
}

func (e Embedded) MarshalJSON() ([]byte, error) {
	if len(e) == 0 {
		return []byte("null"), nil
	}
	return e, nil
}

// Raw returns the document, empty when absent.
func (e Embedded) Raw() json.RawMessage {
	return json.RawMessage(e)
}
