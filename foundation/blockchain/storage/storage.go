// Package storage defines the behavior required to persist a chain one block
// at a time. Blocks are stored in their binary form keyed by block index.
package storage

import "errors"

// Set of errors returned by storage implementations.
var (
	ErrNotFound   = errors.New("block does not exist")
	ErrOutOfOrder = errors.New("block is out of order")
	ErrEndOfChain = errors.New("end of chain")
)

// Storage represents the behavior required to write and read blocks. Blocks
// must be written in index order starting at zero.
type Storage interface {
	Write(index uint64, data []byte) error
	GetBlock(index uint64) ([]byte, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator represents the behavior required to walk through the stored
// blocks in index order.
type Iterator interface {
	Next() ([]byte, error)
	Done() bool
}

// =============================================================================

// IndexIterator walks a Storage by asking for each index in turn until a
// block does not exist.
type IndexIterator struct {
	Storage Storage // Access to the storage API.
	current uint64  // Current block index being iterated over.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from storage.
func (it *IndexIterator) Next() ([]byte, error) {
	if it.eoc {
		return nil, ErrEndOfChain
	}

	data, err := it.Storage.GetBlock(it.current)
	if errors.Is(err, ErrNotFound) {
		it.eoc = true
	}

	it.current++

	return data, err
}

// Done returns the end of chain value.
func (it *IndexIterator) Done() bool {
	return it.eoc
}
