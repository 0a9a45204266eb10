package chain

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/hashledger/foundation/blockchain/block"
	"github.com/ardanlabs/hashledger/foundation/blockchain/storage"
	"github.com/ardanlabs/hashledger/foundation/blockchain/storage/disk"
)

// Binary returns the binary of every block concatenated in chain order.
func (c *Chain[V]) Binary() []byte {
	var data []byte
	for _, b := range c.All() {
		data = append(data, b.Binary()...)
	}

	return data
}

// BinaryHeadersOnly returns the binary of the headers only projection.
func (c *Chain[V]) BinaryHeadersOnly() ([]byte, error) {
	hc, err := c.HeadersOnly()
	if err != nil {
		return nil, err
	}

	return hc.Binary(), nil
}

// FromBinary reconstructs a chain from concatenated block binaries. The first
// block must be a valid genesis block and every later block must append.
func FromBinary[V any](cfg Config[V], data []byte) (*Chain[V], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: chain binary is empty", block.ErrMalformedBinary)
	}

	var c *Chain[V]

	for offset := 0; offset < len(data); {
		size, err := block.BinarySize(cfg.Hasher, data[offset:])
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", offset, err)
		}

		b, err := block.FromBinary(cfg.Hasher, cfg.Codec, data[offset:offset+size])
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", offset, err)
		}
		offset += size

		if c, err = appendParsed(cfg, c, b); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// appendParsed starts the chain with the genesis block or appends to it.
func appendParsed[V any](cfg Config[V], c *Chain[V], b block.Block[V]) (*Chain[V], error) {
	if c == nil {
		return New(cfg, b)
	}

	if !c.Append(b) {
		return nil, fmt.Errorf("%w: block[%d] hash %s does not append", ErrReconstructionFailed, b.Header().Index(), b.Header().HashHex())
	}

	return c, nil
}

// =============================================================================

// SaveToFile writes the chain binary to the file.
func (c *Chain[V]) SaveToFile(path string) error {
	return disk.WriteFile(path, c.Binary())
}

// SaveHeadersOnlyToFile writes the headers only chain binary to the file.
func (c *Chain[V]) SaveHeadersOnlyToFile(path string) error {
	data, err := c.BinaryHeadersOnly()
	if err != nil {
		return err
	}

	return disk.WriteFile(path, data)
}

// LoadFromFile reads the whole file and reconstructs the chain from it.
func LoadFromFile[V any](cfg Config[V], path string) (*Chain[V], error) {
	data, err := disk.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return FromBinary(cfg, data)
}

// =============================================================================

// SaveToStorage writes every block the storage does not already hold. The
// stored blocks must be a prefix of this chain.
func (c *Chain[V]) SaveToStorage(s storage.Storage) error {
	for i, b := range c.All() {
		data, err := s.GetBlock(uint64(i))
		switch {
		case err == nil:
			stored, err := block.FromBinary(c.cfg.Hasher, c.cfg.Codec, data)
			if err != nil {
				return fmt.Errorf("stored block[%d]: %w", i, err)
			}
			if !stored.Equal(b) {
				return fmt.Errorf("%w: stored block[%d] differs from the chain", ErrReconstructionFailed, i)
			}

		case errors.Is(err, storage.ErrNotFound):
			if err := s.Write(uint64(i), b.Binary()); err != nil {
				return fmt.Errorf("write block[%d]: %w", i, err)
			}

		default:
			return fmt.Errorf("read block[%d]: %w", i, err)
		}
	}

	return nil
}

// LoadFromStorage reads every stored block in index order and reconstructs
// the chain from them.
func LoadFromStorage[V any](cfg Config[V], s storage.Storage) (*Chain[V], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var c *Chain[V]

	iter := s.ForEach()
	for data, err := iter.Next(); !iter.Done(); data, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		b, err := block.FromBinary(cfg.Hasher, cfg.Codec, data)
		if err != nil {
			return nil, err
		}

		if c, err = appendParsed(cfg, c, b); err != nil {
			return nil, err
		}
	}

	if c == nil {
		return nil, fmt.Errorf("%w: storage holds no blocks", ErrInvalidGenesisBlock)
	}

	return c, nil
}
