package chain

import (
	"fmt"

	"github.com/ardanlabs/hashledger/foundation/blockchain/codec"
	"github.com/ardanlabs/hashledger/foundation/blockchain/hasher"
	"github.com/ardanlabs/hashledger/foundation/blockchain/miner"
	"github.com/ardanlabs/hashledger/foundation/blockchain/validator"
	validate "github.com/go-playground/validator/v10"
)

// DefaultVersion is the header version written into new blocks.
const DefaultVersion = 1

// EventHandler defines a function that is called when events occur in the
// processing of the chain.
type EventHandler func(v string, args ...any)

// Config represents the pluggable pieces a chain is built from.
type Config[V any] struct {
	Hasher    hasher.Hasher       `validate:"required"`
	Codec     codec.Codec[V]      `validate:"required"`
	Validator validator.Validator `validate:"required"`
	Miner     miner.Miner         // Nil means a concurrent miner with one worker per CPU.
	Version   uint32              // Zero means DefaultVersion.
	EvHandler EventHandler
}

// DefaultConfig returns the out of the box bundle: SHA-256 hashing, string
// content, magnitude difficulty 2 and a concurrent miner.
func DefaultConfig() Config[string] {
	return Config[string]{
		Hasher:    hasher.SHA256{},
		Codec:     codec.String{},
		Validator: validator.Magnitude{Difficulty: validator.DefaultDifficulty},
		Version:   DefaultVersion,
	}
}

func (cfg Config[V]) validate() error {
	if err := validate.New().Struct(cfg); err != nil {
		return fmt.Errorf("chain config: %w", err)
	}

	return nil
}

func (cfg Config[V]) version() uint32 {
	if cfg.Version == 0 {
		return DefaultVersion
	}
	return cfg.Version
}

func (cfg Config[V]) evHandler() EventHandler {
	if cfg.EvHandler == nil {
		return func(string, ...any) {}
	}
	return cfg.EvHandler
}

// miner returns the configured miner or builds the default concurrent one.
func (cfg Config[V]) miner() (miner.Miner, error) {
	if cfg.Miner != nil {
		return cfg.Miner, nil
	}

	mcfg := miner.Config{
		Hasher:    cfg.Hasher,
		Validator: cfg.Validator,
		EvHandler: miner.EventHandler(cfg.evHandler()),
	}

	return miner.NewConcurrent(mcfg)
}
