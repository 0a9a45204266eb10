package miner

import (
	"context"
	"errors"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// errSolved is returned by the winning worker to cancel the group.
var errSolved = errors.New("solved")

// Concurrent searches disjoint nonce ranges in parallel. The first worker to
// find an admissible hash wins and every other worker stops.
type Concurrent struct {
	cfg     Config
	workers int
}

// NewConcurrent constructs a concurrent miner. When cfg.Workers is zero one
// worker is started per CPU.
func NewConcurrent(cfg Config) (*Concurrent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = max(runtime.NumCPU(), 1)
	}

	c := Concurrent{
		cfg:     cfg,
		workers: workers,
	}

	return &c, nil
}

// Workers returns the number of goroutines used per mining call.
func (c *Concurrent) Workers() int {
	return c.workers
}

// MineGenesis finds a timestamp and nonce that make the header an admissible
// genesis header.
func (c *Concurrent) MineGenesis(ctx context.Context, header []byte) (Result, error) {
	return c.mine(ctx, header, c.cfg.Validator.IsValidGenesisHash)
}

// MineAppend finds a timestamp and nonce that make the header admissible
// after the previous hash.
func (c *Concurrent) MineAppend(ctx context.Context, previousHash []byte, header []byte) (Result, error) {
	solved := func(hash []byte) bool {
		return c.cfg.Validator.IsValidAppendHash(previousHash, hash)
	}

	return c.mine(ctx, header, solved)
}

func (c *Concurrent) mine(ctx context.Context, header []byte, solved func(hash []byte) bool) (Result, error) {
	ev := c.cfg.evHandler()

	current, err := minedResult(header)
	if err != nil {
		return Result{}, err
	}

	// The header may already be admissible as it stands.
	if solved(c.cfg.Hasher.Hash(header)) {
		ev("miner: Concurrent: MINING: already solved: nonce[%d]", current.Nonce)
		return current, nil
	}

	ev("miner: Concurrent: MINING: started: workers[%d]", c.workers)
	start := time.Now()

	s := search{}

	g, gctx := errgroup.WithContext(ctx)

	// Cancelling the caller's context or a winning worker both halt the
	// remaining workers.
	stop := context.AfterFunc(gctx, s.halt)
	defer stop()

	for i, r := range partition(c.cfg.nonceMax(), c.workers) {
		w := worker{
			id:     i,
			cfg:    c.cfg,
			search: &s,
			solved: solved,
		}

		g.Go(func() error {
			if w.run(header, current, r) {
				return errSolved
			}
			return nil
		})
	}

	// Joins every worker before returning. errSolved only stops the group
	// once a worker publishes a result.
	if err := g.Wait(); err != nil && !errors.Is(err, errSolved) {
		return Result{}, err
	}

	res, ok := s.winner()
	if !ok {
		ev("miner: Concurrent: MINING: CANCELLED")
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		return Result{}, ErrHalted
	}

	duration := time.Since(start)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ObserveSolved(duration)
	}
	ev("miner: Concurrent: MINING: SOLVED: timestamp[%d]: nonce[%d]: duration[%v]", res.Timestamp, res.Nonce, duration)

	return res, nil
}
