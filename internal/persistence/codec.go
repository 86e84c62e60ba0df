package persistence

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// EncodeValue serializes arbitrary Go values using encoding/gob.
// Callers must ensure that values are gob-encodable; the api package
// registers its own types, user payload types beyond the built-ins must be
// registered by the user.
//
// A nil value encodes to a nil slice, and DecodeValue maps that back to the
// zero value, so optional payload columns round-trip without sentinels.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	// Encode as interface{} so payloads of any dynamic type decode back
	// into interface{} fields.
	iv := v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue deserializes a payload produced by EncodeValue. T is either
// the concrete dynamic type of the encoded value or an interface it
// satisfies (typically any).
func DecodeValue[T any](data []byte) (T, error) {
	var zero T
	if len(data) == 0 {
		return zero, nil
	}

	var iv any
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&iv); err != nil {
		return zero, err
	}
	if iv == nil {
		return zero, nil
	}
	v, ok := iv.(T)
	if !ok {
		return zero, fmt.Errorf("gob: decoded payload of type %T not assignable to target", iv)
	}
	return v, nil
}
