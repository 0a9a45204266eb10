// Package disk implements the ability to read and write blocks to disk, one
// file per block, along with the raw file helpers used to persist a whole
// chain as a single file.
package disk

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ardanlabs/hashledger/foundation/blockchain/storage"
)

// Disk represents the serialization implementation for reading and storing
// blocks in their own separate files on disk. This implements the
// storage.Storage interface.
type Disk struct {
	dbPath string
}

// New constructs a Disk value for use.
func New(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, err
	}

	return &Disk{dbPath: dbPath}, nil
}

// Close in this implementation has nothing to do since a new file is
// written to disk for each new block and then immediately closed.
func (d *Disk) Close() error {
	return nil
}

// Write stores the block binary in a file labeled with the block index.
func (d *Disk) Write(index uint64, data []byte) error {
	if _, err := os.Stat(d.getPath(index)); err == nil {
		return fmt.Errorf("%w: index %d already written", storage.ErrOutOfOrder, index)
	}

	if index > 0 {
		if _, err := os.Stat(d.getPath(index - 1)); err != nil {
			return fmt.Errorf("%w: index %d has no parent: %w", storage.ErrOutOfOrder, index, err)
		}
	}

	return WriteFile(d.getPath(index), data)
}

// GetBlock reads the binary of the specified block by index.
func (d *Disk) GetBlock(index uint64) ([]byte, error) {
	data, err := ReadFile(d.getPath(index))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: index %d", storage.ErrNotFound, index)
		}
		return nil, err
	}

	return data, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with the genesis block.
func (d *Disk) ForEach() storage.Iterator {
	return &storage.IndexIterator{Storage: d}
}

// Reset will clear out the blocks on disk.
func (d *Disk) Reset() error {
	if err := os.RemoveAll(d.dbPath); err != nil {
		return err
	}

	return os.MkdirAll(d.dbPath, 0755)
}

// getPath forms the path to the specified block.
func (d *Disk) getPath(index uint64) string {
	name := strconv.FormatUint(index, 10)
	return filepath.Join(d.dbPath, fmt.Sprintf("%s.blk", name))
}
