// Package chain provides an append only sequence of mined blocks. Every block
// links to the hash of the block before it and carries a hash the configured
// validator admits.
package chain

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/ardanlabs/hashledger/foundation/blockchain/block"
	"github.com/ardanlabs/hashledger/foundation/blockchain/miner"
	"github.com/ardanlabs/hashledger/foundation/blockchain/validator"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Set of errors returned by the chain.
var (
	ErrInvalidGenesisBlock  = errors.New("invalid genesis block")
	ErrReconstructionFailed = errors.New("chain reconstruction failed")
	ErrIndexOutOfBounds     = errors.New("index out of bounds")
	ErrHashNotFound         = errors.New("hash not found")
)

// Chain is an ordered list of blocks with a lookup from block hash to index.
// The chain only grows through Append.
type Chain[V any] struct {
	cfg   Config[V]
	miner miner.Miner

	mu     sync.RWMutex
	blocks []block.Block[V]
	hashes map[string]int
}

// New constructs a chain holding the specified genesis block.
func New[V any](cfg Config[V], genesis block.Block[V]) (*Chain[V], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if !validator.IsValidGenesisBlock(cfg.Validator, cfg.Hasher, genesis) {
		return nil, fmt.Errorf("%w: hash %s", ErrInvalidGenesisBlock, genesis.Header().HashHex())
	}

	m, err := cfg.miner()
	if err != nil {
		return nil, err
	}

	c := Chain[V]{
		cfg:    cfg,
		miner:  m,
		blocks: []block.Block[V]{genesis},
		hashes: map[string]int{genesis.Header().HashHex(): 0},
	}

	return &c, nil
}

// NewWithValue mines a genesis block holding the value and constructs a
// chain from it.
func NewWithValue[V any](ctx context.Context, cfg Config[V], value V) (*Chain[V], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m, err := cfg.miner()
	if err != nil {
		return nil, err
	}

	content, err := block.NewContent(cfg.Hasher, cfg.Codec, value)
	if err != nil {
		return nil, err
	}

	hdr, err := block.NewHeader(cfg.Hasher, cfg.version(), 0, content.Hash(), cfg.Hasher.GenesisPreviousHash(), time.Now().Unix(), 0)
	if err != nil {
		return nil, err
	}

	candidate, err := block.New(hdr, content)
	if err != nil {
		return nil, err
	}

	genesis, err := miner.MineGenesisBlock(ctx, m, cfg.Validator, candidate)
	if err != nil {
		return nil, fmt.Errorf("mine genesis: %w", err)
	}

	cfg.evHandler()("chain: NewWithValue: genesis[%s]", genesis.Header().HashHex())

	return New(cfg, genesis)
}

// Append adds the block to the tail when it directly follows the current
// tail. A rejected block leaves the chain unchanged and returns false.
func (c *Chain[V]) Append(b block.Block[V]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tail := c.blocks[len(c.blocks)-1]
	if !validator.IsValidToAppend(c.cfg.Validator, tail, b) {
		c.cfg.evHandler()("chain: Append: REJECTED: block[%d]: hash[%s]", b.Header().Index(), b.Header().HashHex())
		return false
	}

	c.blocks = append(c.blocks, b)
	c.hashes[b.Header().HashHex()] = len(c.blocks) - 1

	c.cfg.evHandler()("chain: Append: block[%d]: hash[%s]", b.Header().Index(), b.Header().HashHex())

	return true
}

// AppendValue mines a block holding the value with the configured miner and
// appends it.
func (c *Chain[V]) AppendValue(ctx context.Context, value V) (bool, error) {
	return c.AppendValueWithMiner(ctx, value, c.miner)
}

// AppendValueWithMiner mines a block holding the value with the specified
// miner and appends it. The chain is not locked while mining, so the result
// is false if another block was appended in the meantime.
func (c *Chain[V]) AppendValueWithMiner(ctx context.Context, value V, m miner.Miner) (bool, error) {
	tail := c.Tail()
	prev := tail.Header()

	content, err := block.NewContent(c.cfg.Hasher, c.cfg.Codec, value)
	if err != nil {
		return false, err
	}

	timestamp := max(time.Now().Unix(), prev.Timestamp()+1)

	hdr, err := block.NewHeader(c.cfg.Hasher, c.cfg.version(), prev.Index()+1, content.Hash(), prev.Hash(), timestamp, 0)
	if err != nil {
		return false, err
	}

	candidate, err := block.New(hdr, content)
	if err != nil {
		return false, err
	}

	b, err := miner.MineAppendBlock(ctx, m, c.cfg.Validator, tail, candidate)
	if err != nil {
		return false, fmt.Errorf("mine block[%d]: %w", hdr.Index(), err)
	}

	return c.Append(b), nil
}

// Config returns the configuration the chain was built with.
func (c *Chain[V]) Config() Config[V] {
	return c.cfg
}

// Size returns the number of blocks in the chain.
func (c *Chain[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.blocks)
}

// Genesis returns the first block.
func (c *Chain[V]) Genesis() block.Block[V] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.blocks[0]
}

// Tail returns the last block.
func (c *Chain[V]) Tail() block.Block[V] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.blocks[len(c.blocks)-1]
}

// At returns the block at the index. Negative indexes count back from the
// tail so -1 is the last block.
func (c *Chain[V]) At(index int) (block.Block[V], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.blocks)

	i := index
	if i < 0 {
		i += n
	}

	if i < 0 || i >= n {
		return block.Block[V]{}, fmt.Errorf("%w: index %d, size %d", ErrIndexOutOfBounds, index, n)
	}

	return c.blocks[i], nil
}

// ByHash returns the block with the specified hash.
func (c *Chain[V]) ByHash(hash []byte) (block.Block[V], error) {
	return c.byKey(hexutil.Encode(hash))
}

// ByHashHex returns the block with the specified hex encoded hash. The 0x
// prefix is optional.
func (c *Chain[V]) ByHashHex(hash string) (block.Block[V], error) {
	key := strings.ToLower(hash)
	if !strings.HasPrefix(key, "0x") {
		key = "0x" + key
	}

	return c.byKey(key)
}

func (c *Chain[V]) byKey(key string) (block.Block[V], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, exists := c.hashes[key]
	if !exists {
		return block.Block[V]{}, fmt.Errorf("%w: %s", ErrHashNotFound, key)
	}

	return c.blocks[i], nil
}

// All returns an iterator over the index and block of a snapshot of the
// chain.
func (c *Chain[V]) All() iter.Seq2[int, block.Block[V]] {
	c.mu.RLock()
	blocks := c.blocks[:len(c.blocks):len(c.blocks)]
	c.mu.RUnlock()

	return func(yield func(int, block.Block[V]) bool) {
		for i, b := range blocks {
			if !yield(i, b) {
				return
			}
		}
	}
}

// HeadersOnly returns a new chain holding the same headers with every
// block's content removed. The projection is rebuilt through Append.
func (c *Chain[V]) HeadersOnly() (*Chain[V], error) {
	var hc *Chain[V]

	for i, b := range c.All() {
		if i == 0 {
			var err error
			if hc, err = New(c.cfg, b.HeaderOnly()); err != nil {
				return nil, err
			}
			continue
		}

		if !hc.Append(b.HeaderOnly()) {
			return nil, fmt.Errorf("%w: header of block[%d] rejected", ErrReconstructionFailed, i)
		}
	}

	return hc, nil
}

// Equal reports whether both chains hold equal blocks at every index.
func (c *Chain[V]) Equal(other *Chain[V]) bool {
	if c.Size() != other.Size() {
		return false
	}

	for i, b := range c.All() {
		ob, err := other.At(i)
		if err != nil || !b.Equal(ob) {
			return false
		}
	}

	return true
}

// Description renders the chain for humans.
func (c *Chain[V]) Description(padding string) string {
	var s strings.Builder

	s.WriteString(padding + "blocks: [\n")
	for i, b := range c.All() {
		if i > 0 {
			s.WriteString(",\n")
		}
		s.WriteString(padding + "  {\n")
		s.WriteString(b.Description(padding + "    "))
		s.WriteString("\n" + padding + "  }")
	}
	s.WriteString("\n" + padding + "]")

	return s.String()
}

// String implements the fmt.Stringer interface.
func (c *Chain[V]) String() string {
	return c.Description("")
}
