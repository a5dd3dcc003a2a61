package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Object-description and type-catalog field names.
const (
	FieldType         = "type"
	FieldPtr          = "ptr"
	FieldName         = "name"
	FieldChildren     = "children"
	FieldValueType    = "valueType"
	FieldValue        = "value"
	FieldTypes        = "types"
	FieldBaseTypes    = "baseTypes"
	FieldInstantiable = "instantiable"
)

// Description is the server's JSON description of one object and its subtree.
// Fields holds every key not modelled explicitly so kind-specific data
// survives construction under a synthesized metatype. A value without a
// valueType is not an attribute value and stays in Fields.
type Description struct {
	Type         string
	Ptr          Handle
	Name         string
	HasValueType bool
	ValueType    string
	Value        string
	Children     []Description
	Fields       map[string]json.RawMessage
}

// ParseDescription decodes one object description.
func ParseDescription(data []byte) (Description, error) {
	var desc Description
	if err := json.Unmarshal(data, &desc); err != nil {
		return Description{}, err
	}
	return desc, nil
}

func (d *Description) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: description: %v", ErrMalformedPayload, err)
	}
	out := Description{Fields: make(map[string]json.RawMessage)}
	for key, val := range raw {
		var err error
		switch key {
		case FieldType:
			err = json.Unmarshal(val, &out.Type)
		case FieldPtr:
			err = json.Unmarshal(val, &out.Ptr)
		case FieldName:
			err = json.Unmarshal(val, &out.Name)
		case FieldValueType:
			out.HasValueType = true
			err = json.Unmarshal(val, &out.ValueType)
		case FieldChildren:
			if !isNull(val) {
				err = json.Unmarshal(val, &out.Children)
			}
		default:
			out.Fields[key] = val
		}
		if err != nil {
			return fmt.Errorf("%w: description field %q: %v", ErrMalformedPayload, key, err)
		}
	}
	if val, ok := out.Fields[FieldValue]; ok && out.HasValueType {
		out.Value = rawText(val)
		delete(out.Fields, FieldValue)
	}
	*d = out
	return nil
}

// MarshalJSON re-emits the description in wire form.
func (d Description) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Fields)+6)
	for key, val := range d.Fields {
		out[key] = val
	}
	out[FieldType] = d.Type
	if d.Ptr != NoHandle {
		out[FieldPtr] = d.Ptr
	}
	if d.Name != "" {
		out[FieldName] = d.Name
	}
	if d.HasValueType {
		out[FieldValueType] = d.ValueType
		out[FieldValue] = d.Value
	}
	if len(d.Children) > 0 {
		out[FieldChildren] = d.Children
	}
	return json.Marshal(out)
}

// rawText unwraps a JSON string, or returns any other literal verbatim.
func rawText(val json.RawMessage) string {
	val = bytes.TrimSpace(val)
	if len(val) > 0 && val[0] == '"' {
		var s string
		if err := json.Unmarshal(val, &s); err == nil {
			return s
		}
	}
	if isNull(val) {
		return ""
	}
	return string(val)
}

func isNull(val json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(val), []byte("null"))
}
