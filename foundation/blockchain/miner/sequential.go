package miner

import (
	"context"
	"time"
)

// Sequential searches the whole nonce range on the calling goroutine.
type Sequential struct {
	cfg Config
}

// NewSequential constructs a single threaded miner.
func NewSequential(cfg Config) (*Sequential, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Sequential{cfg: cfg}, nil
}

// MineGenesis finds a timestamp and nonce that make the header an admissible
// genesis header.
func (s *Sequential) MineGenesis(ctx context.Context, header []byte) (Result, error) {
	return s.mine(ctx, header, s.cfg.Validator.IsValidGenesisHash)
}

// MineAppend finds a timestamp and nonce that make the header admissible
// after the previous hash.
func (s *Sequential) MineAppend(ctx context.Context, previousHash []byte, header []byte) (Result, error) {
	solved := func(hash []byte) bool {
		return s.cfg.Validator.IsValidAppendHash(previousHash, hash)
	}

	return s.mine(ctx, header, solved)
}

func (s *Sequential) mine(ctx context.Context, header []byte, solved func(hash []byte) bool) (Result, error) {
	ev := s.cfg.evHandler()

	current, err := minedResult(header)
	if err != nil {
		return Result{}, err
	}

	if solved(s.cfg.Hasher.Hash(header)) {
		ev("miner: Sequential: MINING: already solved: nonce[%d]", current.Nonce)
		return current, nil
	}

	ev("miner: Sequential: MINING: started")
	start := time.Now()

	sr := search{}

	stop := context.AfterFunc(ctx, sr.halt)
	defer stop()

	w := worker{
		cfg:    s.cfg,
		search: &sr,
		solved: solved,
	}
	w.run(header, current, nonceRange{start: 0, end: s.cfg.nonceMax()})

	res, ok := sr.winner()
	if !ok {
		ev("miner: Sequential: MINING: CANCELLED")
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		return Result{}, ErrHalted
	}

	duration := time.Since(start)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveSolved(duration)
	}
	ev("miner: Sequential: MINING: SOLVED: timestamp[%d]: nonce[%d]: attempts[%d]: duration[%v]", res.Timestamp, res.Nonce, w.attempts, duration)

	return res, nil
}
