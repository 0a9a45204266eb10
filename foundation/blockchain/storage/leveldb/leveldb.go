// Package leveldb implements the ability to read and write blocks to a
// LevelDB database keyed by block index.
package leveldb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardanlabs/hashledger/foundation/blockchain/storage"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// blockPrefix is prepended to the big endian block index to form a key.
var blockPrefix = []byte("blk:")

// LevelDB represents the serialization implementation for reading and
// storing blocks in a LevelDB database. This implements the storage.Storage
// interface.
type LevelDB struct {
	db *leveldb.DB
}

// New opens or creates the database at the specified path. A corrupted
// database is recovered before use.
func New(dbPath string) (*LevelDB, error) {
	opts := opt.Options{
		Filter: filter.NewBloomFilter(10),
	}

	db, err := leveldb.OpenFile(dbPath, &opts)
	if err != nil {
		if !ldberrors.IsCorrupted(err) {
			return nil, err
		}

		if db, err = leveldb.RecoverFile(dbPath, &opts); err != nil {
			return nil, fmt.Errorf("recover %s: %w", dbPath, err)
		}
	}

	return &LevelDB{db: db}, nil
}

// Close releases the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// Write stores the block binary under the block index.
func (l *LevelDB) Write(index uint64, data []byte) error {
	ok, err := l.db.Has(key(index), nil)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: index %d already written", storage.ErrOutOfOrder, index)
	}

	if index > 0 {
		ok, err := l.db.Has(key(index-1), nil)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: index %d has no parent", storage.ErrOutOfOrder, index)
		}
	}

	return l.db.Put(key(index), data, &opt.WriteOptions{Sync: true})
}

// GetBlock returns the binary of the specified block by index.
func (l *LevelDB) GetBlock(index uint64) ([]byte, error) {
	data, err := l.db.Get(key(index), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, fmt.Errorf("%w: index %d", storage.ErrNotFound, index)
		}
		return nil, err
	}

	return data, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with the genesis block.
func (l *LevelDB) ForEach() storage.Iterator {
	return &storage.IndexIterator{Storage: l}
}

// Reset deletes every stored block in a single batch.
func (l *LevelDB) Reset() error {
	iter := l.db.NewIterator(util.BytesPrefix(blockPrefix), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}

	return l.db.Write(batch, nil)
}

// key forms the database key for the specified block.
func key(index uint64) []byte {
	k := make([]byte, 0, len(blockPrefix)+8)
	k = append(k, blockPrefix...)
	return binary.BigEndian.AppendUint64(k, index)
}
