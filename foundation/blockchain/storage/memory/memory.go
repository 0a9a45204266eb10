// Package memory implements the ability to read and write blocks to memory
// using a slice.
package memory

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ardanlabs/hashledger/foundation/blockchain/storage"
)

// Memory represents the serialization implementation for reading and storing
// blocks in memory using a slice. This implements the storage.Storage
// interface.
type Memory struct {
	mu     sync.RWMutex
	blocks [][]byte
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Write takes the specified block binary and stores it in memory.
func (m *Memory) Write(index uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l := uint64(len(m.blocks)); index != l {
		return fmt.Errorf("%w: got index %d, expected %d", storage.ErrOutOfOrder, index, l)
	}

	m.blocks = append(m.blocks, bytes.Clone(data))

	return nil
}

// GetBlock returns the binary of the specified block by index.
func (m *Memory) GetBlock(index uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index >= uint64(len(m.blocks)) {
		return nil, fmt.Errorf("%w: index %d", storage.ErrNotFound, index)
	}

	return bytes.Clone(m.blocks[index]), nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with the genesis block.
func (m *Memory) ForEach() storage.Iterator {
	return &storage.IndexIterator{Storage: m}
}

// Reset will clear out the blocks held in memory.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = nil
	return nil
}
