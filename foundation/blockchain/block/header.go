package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/ardanlabs/hashledger/foundation/blockchain/hasher"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Sizes of the fixed width fields in the header binary layout.
const (
	versionSize   = 4
	indexSize     = 8
	timestampSize = 8
	nonceSize     = 8
)

// Header represents the fixed layout record that links a block to its parent.
// The hash is computed once at construction from the other six fields.
type Header struct {
	hasher       hasher.Hasher
	version      uint32
	index        uint64
	contentHash  []byte // Called the merkle root by convention.
	previousHash []byte
	timestamp    int64
	nonce        uint64
	hash         []byte
}

// NewHeader constructs a header and computes its hash. Both hashes must be
// as wide as the hasher's output.
func NewHeader(h hasher.Hasher, version uint32, index uint64, contentHash []byte, previousHash []byte, timestamp int64, nonce uint64) (Header, error) {
	if len(contentHash) != h.Size() {
		return Header{}, fmt.Errorf("%w: content hash is %d bytes, exp %d", ErrHashSize, len(contentHash), h.Size())
	}
	if len(previousHash) != h.Size() {
		return Header{}, fmt.Errorf("%w: previous hash is %d bytes, exp %d", ErrHashSize, len(previousHash), h.Size())
	}

	return newHeader(h, version, index, bytes.Clone(contentHash), bytes.Clone(previousHash), timestamp, nonce), nil
}

// newHeader performs no validation and takes ownership of the slices.
func newHeader(h hasher.Hasher, version uint32, index uint64, contentHash []byte, previousHash []byte, timestamp int64, nonce uint64) Header {
	hdr := Header{
		hasher:       h,
		version:      version,
		index:        index,
		contentHash:  contentHash,
		previousHash: previousHash,
		timestamp:    timestamp,
		nonce:        nonce,
	}
	hdr.hash = h.Hash(hdr.Binary())

	return hdr
}

// HeaderSize returns the number of bytes in the binary form of a header for
// the specified hasher.
func HeaderSize(h hasher.Hasher) int {
	return versionSize + indexSize + 2*h.Size() + timestampSize + nonceSize
}

// HeaderFromBinary parses the leading HeaderSize bytes of data.
func HeaderFromBinary(h hasher.Hasher, data []byte) (Header, error) {
	size := HeaderSize(h)
	if len(data) < size {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrMalformedBinary, size, len(data))
	}

	hashSize := h.Size()
	offset := 0

	version := binary.BigEndian.Uint32(data[offset:])
	offset += versionSize

	index := binary.BigEndian.Uint64(data[offset:])
	offset += indexSize

	contentHash := bytes.Clone(data[offset : offset+hashSize])
	offset += hashSize

	previousHash := bytes.Clone(data[offset : offset+hashSize])
	offset += hashSize

	timestamp := int64(binary.BigEndian.Uint64(data[offset:]))
	offset += timestampSize

	nonce := binary.BigEndian.Uint64(data[offset:])

	return newHeader(h, version, index, contentHash, previousHash, timestamp, nonce), nil
}

// Binary returns the layout that is hashed and persisted:
// version(4) | index(8) | contentHash | previousHash | timestamp(8) | nonce(8).
func (hdr Header) Binary() []byte {
	data := make([]byte, 0, HeaderSize(hdr.hasher))

	data = binary.BigEndian.AppendUint32(data, hdr.version)
	data = binary.BigEndian.AppendUint64(data, hdr.index)
	data = append(data, hdr.contentHash...)
	data = append(data, hdr.previousHash...)
	data = binary.BigEndian.AppendUint64(data, uint64(hdr.timestamp))
	data = binary.BigEndian.AppendUint64(data, hdr.nonce)

	return data
}

// WithMinedResult returns a new header with the same version, index and
// hashes but the specified timestamp and nonce.
func (hdr Header) WithMinedResult(timestamp int64, nonce uint64) Header {
	return newHeader(hdr.hasher, hdr.version, hdr.index, hdr.contentHash, hdr.previousHash, timestamp, nonce)
}

// Hasher returns the hasher the header was built with.
func (hdr Header) Hasher() hasher.Hasher { return hdr.hasher }

// Version returns the block version.
func (hdr Header) Version() uint32 { return hdr.version }

// Index returns the position of the block in the chain.
func (hdr Header) Index() uint64 { return hdr.index }

// ContentHash returns a copy of the hash of the block content.
func (hdr Header) ContentHash() []byte { return bytes.Clone(hdr.contentHash) }

// PreviousHash returns a copy of the parent block's hash.
func (hdr Header) PreviousHash() []byte { return bytes.Clone(hdr.previousHash) }

// Timestamp returns the mining time in unix seconds.
func (hdr Header) Timestamp() int64 { return hdr.timestamp }

// Nonce returns the value found by the miner.
func (hdr Header) Nonce() uint64 { return hdr.nonce }

// Hash returns a copy of the header hash.
func (hdr Header) Hash() []byte { return bytes.Clone(hdr.hash) }

// HashHex returns the header hash as a 0x prefixed hex string.
func (hdr Header) HashHex() string { return hexutil.Encode(hdr.hash) }

// Equal reports whether both headers carry the same six hashed fields.
func (hdr Header) Equal(other Header) bool {
	return hdr.version == other.version &&
		hdr.index == other.index &&
		bytes.Equal(hdr.previousHash, other.previousHash) &&
		bytes.Equal(hdr.contentHash, other.contentHash) &&
		hdr.timestamp == other.timestamp &&
		hdr.nonce == other.nonce
}

// Description renders the header for humans. Each line starts with the
// specified padding.
func (hdr Header) Description(padding string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%sversion: %d,\n", padding, hdr.version)
	fmt.Fprintf(&b, "%sindex: %d,\n", padding, hdr.index)
	fmt.Fprintf(&b, "%stimestamp: %s,\n", padding, time.Unix(hdr.timestamp, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "%snonce: %d,\n", padding, hdr.nonce)
	fmt.Fprintf(&b, "%scontent_hash:  %s,\n", padding, hexutil.Encode(hdr.contentHash))
	fmt.Fprintf(&b, "%sprevious_hash: %s,\n", padding, hexutil.Encode(hdr.previousHash))
	fmt.Fprintf(&b, "%shash:          %s", padding, hexutil.Encode(hdr.hash))

	return b.String()
}

// String implements the fmt.Stringer interface.
func (hdr Header) String() string {
	return hdr.Description("")
}
