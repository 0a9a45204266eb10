// Package codec provides the conversions between application values and the
// bytes stored as block content.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidData is returned when a codec rejects the bytes it is asked to
// decode.
var ErrInvalidData = errors.New("invalid content data")

// Codec represents the behavior required to convert a value of type V to and
// from its binary form. Decode(Encode(v)) must produce a value equal to v.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// =============================================================================

// String stores text content as its raw UTF-8 bytes.
type String struct{}

// Encode returns the bytes of the string.
func (String) Encode(v string) ([]byte, error) {
	return []byte(v), nil
}

// Decode validates the bytes are UTF-8 and returns them as a string.
func (String) Decode(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("string: %w: not utf-8", ErrInvalidData)
	}

	return string(data), nil
}

// =============================================================================

// Bytes stores binary content unchanged.
type Bytes struct{}

// Encode returns a copy of the bytes.
func (Bytes) Encode(v []byte) ([]byte, error) {
	return append([]byte(nil), v...), nil
}

// Decode returns a copy of the bytes.
func (Bytes) Decode(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

// =============================================================================

// JSON stores structured content as its JSON document.
type JSON[V any] struct{}

// Encode marshals the value.
func (JSON[V]) Encode(v V) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	return data, nil
}

// Decode unmarshals the value.
func (JSON[V]) Decode(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("json: %w: %w", ErrInvalidData, err)
	}

	return v, nil
}
