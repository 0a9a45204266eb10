// Package hasher provides the hash functions used to link blocks together
// and to fingerprint block content.
package hasher

import (
	"crypto/sha256"

	"github.com/ethereum/go-ethereum/crypto"
)

// Hasher represents the behavior required to hash block headers and block
// content. The width of every hash produced must equal Size.
type Hasher interface {
	Hash(data []byte) []byte
	Size() int
	GenesisPreviousHash() []byte
}

// =============================================================================

// SHA256 hashes data with a single round of sha256. This is the default
// hasher for the ledger.
type SHA256 struct{}

// Hash returns the sha256 digest of the data.
func (SHA256) Hash(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// Size returns the number of bytes in a sha256 digest.
func (SHA256) Size() int {
	return sha256.Size
}

// GenesisPreviousHash returns the all zero sentinel stored as the previous
// hash of the genesis block.
func (h SHA256) GenesisPreviousHash() []byte {
	return make([]byte, h.Size())
}

// =============================================================================

// DoubleSHA256 hashes data with two rounds of sha256, the way Bitcoin hashes
// its block headers.
type DoubleSHA256 struct{}

// Hash returns sha256(sha256(data)).
func (DoubleSHA256) Hash(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}

// Size returns the number of bytes in a sha256 digest.
func (DoubleSHA256) Size() int {
	return sha256.Size
}

// GenesisPreviousHash returns the all zero sentinel.
func (h DoubleSHA256) GenesisPreviousHash() []byte {
	return make([]byte, h.Size())
}

// =============================================================================

// Keccak256 hashes data with the legacy keccak256 function used by Ethereum.
type Keccak256 struct{}

// Hash returns the keccak256 digest of the data.
func (Keccak256) Hash(data []byte) []byte {
	return crypto.Keccak256(data)
}

// Size returns the number of bytes in a keccak256 digest.
func (Keccak256) Size() int {
	return crypto.DigestLength
}

// GenesisPreviousHash returns the all zero sentinel.
func (h Keccak256) GenesisPreviousHash() []byte {
	return make([]byte, h.Size())
}

// =============================================================================

// FromName returns the hasher registered under the specified name. An empty
// name returns the default SHA256 hasher.
func FromName(name string) (Hasher, bool) {
	switch name {
	case "", "sha256":
		return SHA256{}, true
	case "double-sha256":
		return DoubleSHA256{}, true
	case "keccak256":
		return Keccak256{}, true
	}

	return nil, false
}
