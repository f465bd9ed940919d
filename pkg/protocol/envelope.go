package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	ErrMalformed   = errors.New("malformed envelope")
	ErrMissingType = errors.New("envelope type missing")
	ErrUnknownType = errors.New("unknown envelope type")
	ErrBadPayload  = errors.New("bad payload")
)

type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode parses one inbound frame. The type tag is checked before the
// payload is looked at, so an unknown type is reported as ErrUnknownType
// with Envelope.Type filled in for diagnostics.
func Decode(raw []byte) (Envelope, error) {
	if !gjson.ValidBytes(raw) {
		return Envelope{}, ErrMalformed
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Envelope{}, ErrMalformed
	}
	tag := root.Get("type")
	if !tag.Exists() || tag.Type != gjson.String || tag.Str == "" {
		return Envelope{}, ErrMissingType
	}
	env := Envelope{Type: Type(tag.Str)}
	if !env.Type.Known() {
		return env, fmt.Errorf("%w: %q", ErrUnknownType, tag.Str)
	}
	data := root.Get("data")
	switch {
	case !data.Exists(), data.Type == gjson.Null:
	case data.IsObject():
		env.Data = json.RawMessage(data.Raw)
	default:
		return env, fmt.Errorf("%w: data must be an object", ErrMalformed)
	}
	return env, nil
}

// Encode builds a frame of type t. A nil data omits the data field;
// json.RawMessage is passed through untouched.
func Encode(t Type, data any) ([]byte, error) {
	env := Envelope{Type: t}
	switch d := data.(type) {
	case nil:
	case json.RawMessage:
		env.Data = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		env.Data = b
	}
	return json.Marshal(env)
}

// Unmarshal decodes the envelope payload into v. A missing payload
// decodes as an empty object.
func (e Envelope) Unmarshal(v any) error {
	data := e.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPayload, e.Type, err)
	}
	return nil
}
