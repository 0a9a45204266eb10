// Package block implements the block header, block content and block types
// along with the exact binary layout used to hash and persist them.
package block

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/ardanlabs/hashledger/foundation/blockchain/codec"
	"github.com/ardanlabs/hashledger/foundation/blockchain/hasher"
)

// Set of errors returned while building and parsing blocks.
var (
	ErrMalformedBinary     = errors.New("malformed binary input")
	ErrContentHashMismatch = errors.New("content hash does not match header")
	ErrContentNotAvailable = errors.New("content not available on header only block")
	ErrContentDecode       = errors.New("content decode failed")
	ErrHashSize            = errors.New("hash has the wrong size")
)

// contentSizeSize is the width of the content size field that follows the
// header in the block layout.
const contentSizeSize = 8

// Kind discriminates between blocks that carry content and pruned blocks.
type Kind uint8

// Set of block kinds.
const (
	KindFull Kind = iota + 1
	KindHeaderOnly
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindHeaderOnly:
		return "header-only"
	}

	return "unknown"
}

// =============================================================================

// Block represents a header and, unless the block is header only, the content
// the header's content hash was computed from. Blocks are immutable.
type Block[V any] struct {
	kind    Kind
	header  Header
	content Content[V]
}

// New constructs a full block. The content hash in the header must match the
// hash of the content.
func New[V any](header Header, content Content[V]) (Block[V], error) {
	if !bytes.Equal(header.contentHash, content.hash) {
		return Block[V]{}, fmt.Errorf("%w: header %x, content %x", ErrContentHashMismatch, header.contentHash, content.hash)
	}

	b := Block[V]{
		kind:    KindFull,
		header:  header,
		content: content,
	}

	return b, nil
}

// NewHeaderOnly constructs a block without content.
func NewHeaderOnly[V any](header Header) Block[V] {
	return Block[V]{
		kind:   KindHeaderOnly,
		header: header,
	}
}

// Kind returns whether the block is full or header only.
func (b Block[V]) Kind() Kind { return b.kind }

// IsHeaderOnly reports whether the block carries no content.
func (b Block[V]) IsHeaderOnly() bool { return b.kind != KindFull }

// Header returns the block header.
func (b Block[V]) Header() Header { return b.header }

// Content returns the block content or ErrContentNotAvailable when the block
// is header only.
func (b Block[V]) Content() (Content[V], error) {
	if b.IsHeaderOnly() {
		return Content[V]{}, fmt.Errorf("block[%d]: %w", b.header.index, ErrContentNotAvailable)
	}

	return b.content, nil
}

// WithHeader returns a block of the same kind holding the same content under
// a different header. Used by the miner after a nonce has been found.
func (b Block[V]) WithHeader(header Header) (Block[V], error) {
	if b.IsHeaderOnly() {
		return NewHeaderOnly[V](header), nil
	}

	return New(header, b.content)
}

// HeaderOnly returns the block with its content removed.
func (b Block[V]) HeaderOnly() Block[V] {
	return NewHeaderOnly[V](b.header)
}

// Binary returns the persisted layout:
// header | contentSize(8) | content (omitted when contentSize is 0).
func (b Block[V]) Binary() []byte {
	var content []byte
	if !b.IsHeaderOnly() {
		content = b.content.encoded
	}

	data := b.header.Binary()
	data = binary.BigEndian.AppendUint64(data, uint64(len(content)))
	data = append(data, content...)

	return data
}

// Equal reports whether both blocks have equal headers. Content is not
// compared, so a full block equals its header only projection.
func (b Block[V]) Equal(other Block[V]) bool {
	return b.header.Equal(other.header)
}

// Description renders the block for humans.
func (b Block[V]) Description(padding string) string {
	var s strings.Builder

	s.WriteString(padding + "header: {\n")
	s.WriteString(b.header.Description(padding + "  "))
	s.WriteString("\n" + padding + "},\n")

	if b.IsHeaderOnly() {
		s.WriteString(padding + "content_size: 0,\n")
		s.WriteString(padding + "content: <header only>")
		return s.String()
	}

	fmt.Fprintf(&s, "%scontent_size: %d,\n", padding, b.content.Size())
	s.WriteString(b.content.Description(padding))

	return s.String()
}

// String implements the fmt.Stringer interface.
func (b Block[V]) String() string {
	return b.Description("")
}

// =============================================================================

// BinarySize reads the header prefix and the content size field at the start
// of data and returns the number of bytes the whole block occupies.
func BinarySize(h hasher.Hasher, data []byte) (int, error) {
	headerSize := HeaderSize(h)
	if len(data) < headerSize+contentSizeSize {
		return 0, fmt.Errorf("%w: block prefix needs %d bytes, got %d", ErrMalformedBinary, headerSize+contentSizeSize, len(data))
	}

	contentSize := binary.BigEndian.Uint64(data[headerSize:])
	remaining := uint64(len(data) - headerSize - contentSizeSize)
	if contentSize > remaining {
		return 0, fmt.Errorf("%w: content needs %d bytes, got %d", ErrMalformedBinary, contentSize, remaining)
	}

	return headerSize + contentSizeSize + int(contentSize), nil
}

// FromBinary parses a single block occupying all of data. A block carrying
// content must hash to the content hash stored in its header.
func FromBinary[V any](h hasher.Hasher, c codec.Codec[V], data []byte) (Block[V], error) {
	size, err := BinarySize(h, data)
	if err != nil {
		return Block[V]{}, err
	}
	if size != len(data) {
		return Block[V]{}, fmt.Errorf("%w: block is %d bytes, got %d", ErrMalformedBinary, size, len(data))
	}

	header, err := HeaderFromBinary(h, data)
	if err != nil {
		return Block[V]{}, err
	}

	offset := HeaderSize(h) + contentSizeSize
	if offset == len(data) {
		return NewHeaderOnly[V](header), nil
	}

	// The hash is checked before decoding so tampering is reported as a
	// mismatch even when it also breaks the codec.
	if !bytes.Equal(h.Hash(data[offset:]), header.contentHash) {
		return Block[V]{}, fmt.Errorf("block[%d]: %w", header.index, ErrContentHashMismatch)
	}

	content, err := ContentFromBinary(h, c, data[offset:])
	if err != nil {
		return Block[V]{}, fmt.Errorf("block[%d]: %w", header.index, err)
	}

	b, err := New(header, content)
	if err != nil {
		return Block[V]{}, fmt.Errorf("block[%d]: %w", header.index, err)
	}

	return b, nil
}
