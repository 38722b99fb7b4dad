package cache

import (
	"encoding/json"
	"fmt"
)

// Codec turns a cached value into the opaque bytes the shared tier stores
// and back. Implementations must be deterministic and round-trip stable
// (Decode(Encode(v)) == v) and must tolerate unknown future fields so an
// older reader doesn't choke on a payload written by a newer one.
type Codec interface {
	Encode(value any) ([]byte, error)
	// Decode unmarshals payload into target, which must be a pointer to a
	// value of the destination type, and returns target.
	Decode(payload []byte, target any) (any, error)
}

// JSONCodec is the default Codec. encoding/json already sorts map keys when
// marshaling, which keeps the encoding deterministic, and silently ignores
// unrecognized fields on decode, which keeps it forward-compatible.
type JSONCodec struct{}

func (JSONCodec) Encode(value any) ([]byte, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache: json encode: %w", err)
	}
	return payload, nil
}

// Decode unmarshals payload into target (a pointer such as *Product or
// *[]Product) and returns that same pointer, so target holds the decoded
// value afterwards.
func (JSONCodec) Decode(payload []byte, target any) (any, error) {
	if target == nil {
		return nil, fmt.Errorf("cache: json decode: %w: nil target", ErrCodec)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, fmt.Errorf("cache: json decode: %w: %v", ErrCodec, err)
	}
	return target, nil
}
