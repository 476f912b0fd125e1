package protocol

import (
	"bytes"
	"encoding/json"
)

// Opt tracks whether a field was present on the wire. A present JSON null
// sets the field with the zero value, which is how the host says "cleared".
type Opt[T any] struct {
	Value T
	Set   bool
}

func Some[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Set: true}
}

func (o Opt[T]) Get() (T, bool) {
	return o.Value, o.Set
}

// IsZero lets `omitzero` drop unset fields when encoding.
func (o Opt[T]) IsZero() bool {
	return !o.Set
}

func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
