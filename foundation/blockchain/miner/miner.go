// Package miner implements the brute force search for a timestamp and nonce
// that makes a block header hash admissible under a validator.
package miner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ardanlabs/hashledger/foundation/blockchain/block"
	"github.com/ardanlabs/hashledger/foundation/blockchain/hasher"
	"github.com/ardanlabs/hashledger/foundation/blockchain/validator"
	validate "github.com/go-playground/validator/v10"
)

// Set of errors returned by the block mining functions.
var (
	ErrInvalidGenesisPreconditions = errors.New("block is not a genesis candidate")
	ErrNotPostAdjacent             = errors.New("block does not follow the previous block")
	ErrMinedBlockRejected          = errors.New("mined block failed its own validation")
	ErrHalted                      = errors.New("mining halted without a result")
)

// DefaultProgressInterval is the number of attempts a worker makes between
// progress events.
const DefaultProgressInterval = 1_000_000

// EventHandler defines a function that is called when events occur in the
// processing of mining.
type EventHandler func(v string, args ...any)

// Recorder represents the behavior required to record mining metrics.
type Recorder interface {
	AddAttempts(n uint64)
	ObserveSolved(d time.Duration)
}

// Result is the timestamp and nonce that solved a header.
type Result struct {
	Timestamp int64
	Nonce     uint64
}

// Miner represents the behavior required to search for a mined result. The
// header is the binary form of a block header, which ends with the timestamp
// and nonce fields.
type Miner interface {
	MineGenesis(ctx context.Context, header []byte) (Result, error)
	MineAppend(ctx context.Context, previousHash []byte, header []byte) (Result, error)
}

// Config represents the configuration required to construct a miner.
type Config struct {
	Hasher           hasher.Hasher       `validate:"required"`
	Validator        validator.Validator `validate:"required"`
	Workers          int                 `validate:"gte=0,lte=4096"` // Zero means one per CPU.
	NonceMax         uint64              // Zero means the full uint64 range.
	ProgressInterval uint64              // Zero means DefaultProgressInterval.
	EvHandler        EventHandler
	Metrics          Recorder
}

func (cfg Config) validate() error {
	if err := validate.New().Struct(cfg); err != nil {
		return fmt.Errorf("miner config: %w", err)
	}

	return nil
}

func (cfg Config) nonceMax() uint64 {
	if cfg.NonceMax == 0 {
		return math.MaxUint64
	}
	return cfg.NonceMax
}

func (cfg Config) progressInterval() uint64 {
	if cfg.ProgressInterval == 0 {
		return DefaultProgressInterval
	}
	return cfg.ProgressInterval
}

func (cfg Config) evHandler() EventHandler {
	if cfg.EvHandler == nil {
		return func(string, ...any) {}
	}
	return cfg.EvHandler
}

// =============================================================================

// MineGenesisBlock mines the header of a genesis candidate and returns a new
// block holding the original content under the mined header.
func MineGenesisBlock[V any](ctx context.Context, m Miner, v validator.Validator, b block.Block[V]) (block.Block[V], error) {
	hdr := b.Header()
	h := hdr.Hasher()

	if hdr.Index() != 0 {
		return block.Block[V]{}, fmt.Errorf("%w: index is %d", ErrInvalidGenesisPreconditions, hdr.Index())
	}
	if !bytes.Equal(hdr.PreviousHash(), h.GenesisPreviousHash()) {
		return block.Block[V]{}, fmt.Errorf("%w: previous hash is not the genesis sentinel", ErrInvalidGenesisPreconditions)
	}

	res, err := m.MineGenesis(ctx, hdr.Binary())
	if err != nil {
		return block.Block[V]{}, err
	}

	nb, err := b.WithHeader(hdr.WithMinedResult(res.Timestamp, res.Nonce))
	if err != nil {
		return block.Block[V]{}, err
	}

	if !validator.IsValidGenesisBlock(v, h, nb) {
		return block.Block[V]{}, fmt.Errorf("%w: genesis hash %s", ErrMinedBlockRejected, nb.Header().HashHex())
	}

	return nb, nil
}

// MineAppendBlock mines the header of a block that follows previous and
// returns a new block holding the original content under the mined header.
func MineAppendBlock[V any](ctx context.Context, m Miner, v validator.Validator, previous block.Block[V], b block.Block[V]) (block.Block[V], error) {
	prev := previous.Header()
	hdr := b.Header()

	if !bytes.Equal(hdr.PreviousHash(), prev.Hash()) {
		return block.Block[V]{}, fmt.Errorf("%w: block[%d] does not link to %s", ErrNotPostAdjacent, hdr.Index(), prev.HashHex())
	}

	res, err := m.MineAppend(ctx, prev.Hash(), hdr.Binary())
	if err != nil {
		return block.Block[V]{}, err
	}

	nb, err := b.WithHeader(hdr.WithMinedResult(res.Timestamp, res.Nonce))
	if err != nil {
		return block.Block[V]{}, err
	}

	if !validator.IsValidToAppend(v, previous, nb) {
		return block.Block[V]{}, fmt.Errorf("%w: block[%d] hash %s", ErrMinedBlockRejected, hdr.Index(), nb.Header().HashHex())
	}

	return nb, nil
}
