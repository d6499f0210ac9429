// Package codec encodes ledger records for storage.
//
// Records are written with CBOR Core Deterministic Encoding (RFC 8949 §4.2)
// so the same logical record always produces identical bytes, regardless of
// which store backend holds it.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Amounts and addresses are fixed-size arrays; encode them structurally
	// even if a type grows a binary marshaler.
	encOpts := cbor.CoreDetEncOptions()
	encOpts.BinaryMarshaler = cbor.BinaryMarshalerNone
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Event payloads decoded into any must stay JSON-compatible.
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		BinaryUnmarshaler: cbor.BinaryUnmarshalerNone,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
