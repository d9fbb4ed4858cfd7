package observe

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes event payloads.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
}

// JSONCodec encodes events as JSON.
type JSONCodec struct{}

// Name returns "json".
func (JSONCodec) Name() string { return "json" }

// Marshal encodes v with encoding/json.
func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// CBORCodec encodes events with CBOR Core Deterministic Encoding:
// the same event always produces identical bytes.
type CBORCodec struct {
	mode cbor.EncMode
}

// NewCBORCodec creates a deterministic CBOR encoder.
func NewCBORCodec() (*CBORCodec, error) {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder initialization failed: %w", err)
	}
	return &CBORCodec{mode: mode}, nil
}

// Name returns "cbor".
func (c *CBORCodec) Name() string { return "cbor" }

// Marshal encodes v deterministically.
func (c *CBORCodec) Marshal(v any) ([]byte, error) { return c.mode.Marshal(v) }

// CodecByName returns the codec for "json" or "cbor".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return NewCBORCodec()
	default:
		return nil, fmt.Errorf("unknown event codec %q (want json or cbor)", name)
	}
}
