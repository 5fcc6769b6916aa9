// Package codec implements the Serializer external interface (spec §6):
// deterministic, round-trip bytes<->object conversion for Schedules and
// Jobs. No object-graph serialization library appears anywhere in the
// retrieved corpus (the teacher and every other example repo persist
// plain relational columns, not serialized Go values), so the default
// codec is built on the standard library's encoding/gob — justified in
// DESIGN.md rather than silently reached for.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ErlanBelekov/taskrun/internal/trigger"
)

// Codec serializes and deserializes arbitrary Go values. Implementations
// must be deterministic enough to round-trip: Deserialize(Serialize(x))
// must reconstruct a value equal to x.
type Codec interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, out any) error
}

// GobCodec is the default Codec, built on encoding/gob. Trigger concrete
// types must be registered with gob (see internal/trigger/registry.go)
// before GobCodec can round-trip a value holding a trigger.Trigger field.
type GobCodec struct{}

// NewGobCodec returns the default codec.
func NewGobCodec() *GobCodec { return &GobCodec{} }

func (GobCodec) Serialize(v any) ([]byte, error) {
	// A concrete trigger is encoded as the trigger.Trigger interface, so the
	// blob decodes into a trigger.Trigger variable.
	if t, ok := v.(trigger.Trigger); ok {
		v = &t
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("codec: serialize: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobCodec) Deserialize(data []byte, out any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return fmt.Errorf("codec: deserialize: %w", err)
	}
	return nil
}
