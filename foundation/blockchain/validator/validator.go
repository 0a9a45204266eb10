// Package validator provides the admission rules a block hash must satisfy
// to start a chain or to be appended to one.
package validator

import (
	"bytes"

	"github.com/ardanlabs/hashledger/foundation/blockchain/block"
	"github.com/ardanlabs/hashledger/foundation/blockchain/hasher"
)

// DefaultDifficulty is the number of leading zero bytes a genesis hash needs
// under the Magnitude rule.
const DefaultDifficulty = 2

// Validator represents the behavior required to decide if a hash is good
// enough to start a chain or to follow the specified previous hash.
type Validator interface {
	IsValidGenesisHash(hash []byte) bool
	IsValidAppendHash(previousHash []byte, hash []byte) bool
}

// =============================================================================

// Magnitude treats hashes as big endian unsigned integers. A genesis hash
// must not exceed a target with Difficulty leading zero bytes, and every
// appended hash must be strictly smaller than its parent's hash. This makes
// each new block harder to mine than the one before it.
type Magnitude struct {
	Difficulty int
}

// IsValidGenesisHash checks the hash is not larger than the hash of the same
// width made of Difficulty zero bytes followed by 0xFF bytes.
func (m Magnitude) IsValidGenesisHash(hash []byte) bool {
	return Compare(hash, MaxGenesisHash(len(hash), m.Difficulty)) <= 0
}

// IsValidAppendHash checks the hash is strictly smaller than the previous hash.
func (Magnitude) IsValidAppendHash(previousHash []byte, hash []byte) bool {
	return Compare(hash, previousHash) < 0
}

// MaxGenesisHash constructs the largest hash of the specified width that has
// difficulty leading zero bytes.
func MaxGenesisHash(width int, difficulty int) []byte {
	limit := bytes.Repeat([]byte{0xff}, width)
	for i := 0; i < difficulty && i < width; i++ {
		limit[i] = 0
	}

	return limit
}

// Compare compares two hashes as big endian unsigned magnitudes. Leading zero
// bytes are stripped, then the shorter value is smaller, then bytes are
// compared in order. The result is -1, 0 or +1.
func Compare(a []byte, b []byte) int {
	a = bytes.TrimLeft(a, "\x00")
	b = bytes.TrimLeft(b, "\x00")

	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}

	return bytes.Compare(a, b)
}

// =============================================================================

// IsValidGenesisBlock checks the block sits at index 0, points at the genesis
// sentinel and carries an admissible genesis hash.
func IsValidGenesisBlock[V any](v Validator, h hasher.Hasher, b block.Block[V]) bool {
	hdr := b.Header()

	return hdr.Index() == 0 &&
		bytes.Equal(hdr.PreviousHash(), h.GenesisPreviousHash()) &&
		v.IsValidGenesisHash(hdr.Hash())
}

// IsValidToAppend checks the block directly follows the previous block: the
// next index, a later timestamp, a link to the parent hash and an admissible
// hash.
func IsValidToAppend[V any](v Validator, previous block.Block[V], b block.Block[V]) bool {
	prev := previous.Header()
	hdr := b.Header()

	return hdr.Index() == prev.Index()+1 &&
		prev.Timestamp() < hdr.Timestamp() &&
		bytes.Equal(prev.Hash(), hdr.PreviousHash()) &&
		v.IsValidAppendHash(prev.Hash(), hdr.Hash())
}
