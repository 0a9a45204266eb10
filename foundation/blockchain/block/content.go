package block

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/ardanlabs/hashledger/foundation/blockchain/codec"
	"github.com/ardanlabs/hashledger/foundation/blockchain/hasher"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Content represents the application value stored in a block along with its
// encoding and the hash of that encoding.
type Content[V any] struct {
	value   V
	encoded []byte
	hash    []byte
}

// NewContent encodes the value with the codec and hashes the encoding.
func NewContent[V any](h hasher.Hasher, c codec.Codec[V], value V) (Content[V], error) {
	encoded, err := c.Encode(value)
	if err != nil {
		return Content[V]{}, fmt.Errorf("encode content: %w", err)
	}

	content := Content[V]{
		value:   value,
		encoded: encoded,
		hash:    h.Hash(encoded),
	}

	return content, nil
}

// ContentFromBinary decodes the value from data with the codec.
func ContentFromBinary[V any](h hasher.Hasher, c codec.Codec[V], data []byte) (Content[V], error) {
	value, err := c.Decode(data)
	if err != nil {
		return Content[V]{}, fmt.Errorf("%w: %w", ErrContentDecode, err)
	}

	encoded := bytes.Clone(data)

	content := Content[V]{
		value:   value,
		encoded: encoded,
		hash:    h.Hash(encoded),
	}

	return content, nil
}

// Value returns the application value.
func (c Content[V]) Value() V { return c.value }

// Binary returns a copy of the encoded value.
func (c Content[V]) Binary() []byte { return bytes.Clone(c.encoded) }

// Size returns the number of bytes in the encoded value.
func (c Content[V]) Size() int { return len(c.encoded) }

// Hash returns a copy of the hash of the encoded value.
func (c Content[V]) Hash() []byte { return bytes.Clone(c.hash) }

// Equal reports whether both contents hold the same value. Codecs are
// deterministic so values are compared through their encodings.
func (c Content[V]) Equal(other Content[V]) bool {
	return bytes.Equal(c.encoded, other.encoded)
}

// Description renders the content as text when it is valid UTF-8 and as hex
// otherwise.
func (c Content[V]) Description(padding string) string {
	if utf8.Valid(c.encoded) {
		return fmt.Sprintf("%scontent: %s", padding, c.encoded)
	}

	return fmt.Sprintf("%scontent: %s", padding, hexutil.Encode(c.encoded))
}
