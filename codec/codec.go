// Package codec defines the serialization contract used for persisted job
// states, relay frames and archive snapshots.
//
// The default format is JSON. MessagePack is available for deployments
// that care about document size, since every job state is stored inside a
// single backing document.
package codec

// Codec serializes values to and from their stored byte form.
type Codec interface {
	// Encode serializes a value to bytes.
	Encode(v any) ([]byte, error)

	// Decode deserializes bytes into the given value.
	Decode(data []byte, v any) error

	// Name returns the codec identifier (e.g., "json", "msgpack").
	Name() string
}

// Name constants for format selection.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// Get returns a codec by name. Defaults to JSON.
func Get(name string) Codec {
	switch name {
	case NameMsgpack:
		return &Msgpack{}
	case NameJSON, "":
		return &JSON{}
	default:
		return &JSON{}
	}
}
