package lcpwire

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Value is a dynamic, CBOR-encoded channel value: booleans, integers,
// floats, strings, byte strings, arrays and maps all round-trip through
// it unchanged. It is the wire analogue of the original protocol's
// ciborium value type, re-expressed with the ecosystem's standard Go CBOR
// codec.
type Value struct {
	raw any
}

// NewValue wraps a Go value (bool, uint64, float32/64, string, []byte, or
// a map/slice of these) for transmission as a channel Value.
func NewValue(v any) Value { return Value{raw: v} }

// Interface returns the decoded Go value.
func (v Value) Interface() any { return v.raw }

var cborEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// WriteValue CBOR-encodes v inside a length-prefixed window.
func WriteValue(w io.Writer, v Value) error {
	var win WriteWindow
	data, err := cborEncMode.Marshal(v.raw)
	if err != nil {
		return err
	}
	if _, err := win.Write(data); err != nil {
		return err
	}
	return win.Finish(w)
}

// ReadValue decodes a Value from a length-prefixed window, skipping any
// trailing bytes a newer encoder might have appended.
func ReadValue(r io.Reader) (Value, error) {
	win, err := NewReadWindow(r)
	if err != nil {
		return Value{}, err
	}
	data, err := io.ReadAll(win)
	if err != nil {
		return Value{}, err
	}
	if err := win.SkipToEnd(); err != nil {
		return Value{}, err
	}
	var raw any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return Value{}, err
	}
	return Value{raw: raw}, nil
}
