// Package ledger ties the blockchain packages together for the applications:
// it resolves configuration names into a chain configuration and opens the
// store a chain of string values is persisted in.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/ardanlabs/hashledger/foundation/blockchain/chain"
	"github.com/ardanlabs/hashledger/foundation/blockchain/codec"
	"github.com/ardanlabs/hashledger/foundation/blockchain/hasher"
	"github.com/ardanlabs/hashledger/foundation/blockchain/miner"
	"github.com/ardanlabs/hashledger/foundation/blockchain/storage"
	"github.com/ardanlabs/hashledger/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/hashledger/foundation/blockchain/storage/leveldb"
	"github.com/ardanlabs/hashledger/foundation/blockchain/validator"
	validate "github.com/go-playground/validator/v10"
)

// ErrEmpty is returned by Load when the store holds no chain yet.
var ErrEmpty = errors.New("store holds no chain")

// Set of validator names.
const (
	ValidatorMagnitude = "magnitude"
	ValidatorTarget    = "target"
)

// Set of store kinds.
const (
	KindFile    = "file"
	KindDisk    = "disk"
	KindLevelDB = "leveldb"
)

// Config represents the settings used to build a chain configuration.
type Config struct {
	Hasher     string `validate:"omitempty,oneof=sha256 double-sha256 keccak256"`
	Validator  string `validate:"omitempty,oneof=magnitude target"`
	Difficulty int    `validate:"gte=0,lte=32"`
	Workers    int    `validate:"gte=0,lte=4096"`
	Metrics    miner.Recorder
	EvHandler  func(v string, args ...any)
}

// ChainConfig builds the chain configuration for string values.
func ChainConfig(cfg Config) (chain.Config[string], error) {
	if err := validate.New().Struct(cfg); err != nil {
		return chain.Config[string]{}, fmt.Errorf("ledger config: %w", err)
	}

	h, ok := hasher.FromName(cfg.Hasher)
	if !ok {
		return chain.Config[string]{}, fmt.Errorf("unknown hasher %q", cfg.Hasher)
	}

	var v validator.Validator = validator.Magnitude{Difficulty: cfg.Difficulty}
	if cfg.Validator == ValidatorTarget {
		v = validator.NewTarget(uint(cfg.Difficulty) * 8)
	}

	m, err := miner.NewConcurrent(miner.Config{
		Hasher:    h,
		Validator: v,
		Workers:   cfg.Workers,
		EvHandler: cfg.EvHandler,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return chain.Config[string]{}, err
	}

	ccfg := chain.Config[string]{
		Hasher:    h,
		Codec:     codec.String{},
		Validator: v,
		Miner:     m,
		Version:   chain.DefaultVersion,
		EvHandler: cfg.EvHandler,
	}

	return ccfg, nil
}

// =============================================================================

// Store persists a chain either as a single file or block by block.
type Store struct {
	kind    string
	path    string
	storage storage.Storage
}

// Open opens the store of the specified kind at the path.
func Open(kind string, path string) (*Store, error) {
	s := Store{
		kind: kind,
		path: path,
	}

	var err error
	switch kind {
	case KindFile:
	case KindDisk:
		s.storage, err = disk.New(path)
	case KindLevelDB:
		s.storage, err = leveldb.New(path)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}

	if err != nil {
		return nil, fmt.Errorf("open %s store %s: %w", kind, path, err)
	}

	return &s, nil
}

// Kind returns the kind of the store.
func (s *Store) Kind() string {
	return s.kind
}

// Load reconstructs the stored chain.
func (s *Store) Load(cfg chain.Config[string]) (*chain.Chain[string], error) {
	if s.storage == nil {
		c, err := chain.LoadFromFile(cfg, s.path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrEmpty
		}
		return c, err
	}

	if _, err := s.storage.GetBlock(0); errors.Is(err, storage.ErrNotFound) {
		return nil, ErrEmpty
	}

	return chain.LoadFromStorage(cfg, s.storage)
}

// LoadOrCreate loads the stored chain. When the store is empty a new chain is
// mined from the genesis value and saved. The flag reports whether the chain
// was created.
func (s *Store) LoadOrCreate(ctx context.Context, cfg chain.Config[string], genesis string) (*chain.Chain[string], bool, error) {
	c, err := s.Load(cfg)
	switch {
	case err == nil:
		return c, false, nil
	case !errors.Is(err, ErrEmpty):
		return nil, false, err
	}

	if c, err = chain.NewWithValue(ctx, cfg, genesis); err != nil {
		return nil, false, err
	}

	if err := s.Save(c); err != nil {
		return nil, false, err
	}

	return c, true, nil
}

// Save writes the chain to the store.
func (s *Store) Save(c *chain.Chain[string]) error {
	if s.storage == nil {
		return c.SaveToFile(s.path)
	}

	return c.SaveToStorage(s.storage)
}

// Close releases the store.
func (s *Store) Close() error {
	if s.storage == nil {
		return nil
	}

	return s.storage.Close()
}
