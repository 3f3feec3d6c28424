package answer

import (
	"encoding/json"
)

// Kind tags which variant an Answer holds.
type Kind string

const (
	KindNone       Kind = "NONE"
	KindStructured Kind = "STRUCTURED"
	KindText       Kind = "TEXT"
)

// Answer is the decoded form of the service's answer field.
// Exactly one of Value (KindStructured) or Text (KindText) is meaningful.
type Answer struct {
	Kind  Kind   `json:"kind"`
	Value any    `json:"value,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Structured wraps an already decoded value.
func Structured(v any) Answer {
	return Answer{Kind: KindStructured, Value: v}
}

// Plain wraps prose that is shown verbatim.
func Plain(s string) Answer {
	return Answer{Kind: KindText, Text: s}
}

// IsZero reports whether no answer has been received yet.
func (a Answer) IsZero() bool {
	return a.Kind == "" || a.Kind == KindNone
}

// Decode parses raw as a JSON value and falls back to the raw string when it is not valid JSON.
// Surrounding whitespace is accepted, trailing data is not.
func Decode(raw string) Answer {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Plain(raw)
	}
	return Structured(v)
}

// DecodeField is Decode for an optional field. A missing or null answer yields KindNone.
func DecodeField(raw *string) Answer {
	if raw == nil {
		return Answer{Kind: KindNone}
	}
	return Decode(*raw)
}

// Render formats the answer for display: indented JSON for structured values, the text otherwise.
func (a Answer) Render() string {
	switch a.Kind {
	case KindStructured:
		b, err := json.MarshalIndent(a.Value, "", "  ")
		if err != nil {
			return ""
		}
		return string(b)
	case KindText:
		return a.Text
	default:
		return ""
	}
}

// Clone returns a copy that shares no maps or slices with a.
func (a Answer) Clone() Answer {
	if a.Kind != KindStructured {
		return a
	}
	return Answer{Kind: a.Kind, Value: cloneValue(a.Value)}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}
