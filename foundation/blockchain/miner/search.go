package miner

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ardanlabs/hashledger/foundation/blockchain/block"
)

// Offsets of the mined fields counted back from the end of a header.
const (
	nonceOffset     = 8
	timestampOffset = 16
)

// search is the coordination state of one mining invocation. It is shared
// only by the workers started for that invocation.
type search struct {
	halted atomic.Bool

	mu     sync.Mutex
	solved bool
	result Result
}

// halt tells every worker to stop at its next attempt.
func (s *search) halt() {
	s.halted.Store(true)
}

// publish records the result unless another worker got there first. It
// reports whether this result won.
func (s *search) publish(res Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.solved {
		return false
	}

	s.solved = true
	s.result = res
	s.halted.Store(true)

	return true
}

// winner returns the published result.
func (s *search) winner() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.result, s.solved
}

// =============================================================================

// nonceRange is the half open range of nonces [start, end) one worker owns.
type nonceRange struct {
	start uint64
	end   uint64
}

// partition splits [0, nonceMax) into n contiguous ranges. The last range
// absorbs the remainder.
func partition(nonceMax uint64, n int) []nonceRange {
	if n < 1 {
		n = 1
	}
	if uint64(n) > nonceMax {
		n = int(nonceMax)
	}

	size := nonceMax / uint64(n)
	ranges := make([]nonceRange, n)
	for i := range ranges {
		ranges[i] = nonceRange{
			start: uint64(i) * size,
			end:   uint64(i+1) * size,
		}
	}
	ranges[n-1].end = nonceMax

	return ranges
}

// minedResult reads the timestamp and nonce currently written in a header.
func minedResult(header []byte) (Result, error) {
	if len(header) < timestampOffset {
		return Result{}, fmt.Errorf("%w: header is %d bytes", block.ErrMalformedBinary, len(header))
	}

	res := Result{
		Timestamp: int64(binary.BigEndian.Uint64(header[len(header)-timestampOffset:])),
		Nonce:     binary.BigEndian.Uint64(header[len(header)-nonceOffset:]),
	}

	return res, nil
}

// =============================================================================

// worker searches one nonce range on its own copy of the header.
type worker struct {
	id       int
	cfg      Config
	search   *search
	solved   func(hash []byte) bool
	attempts uint64
}

// run increments the nonce through the range, rehashing the header on every
// attempt. When the range is exhausted the nonce starts over and the worker
// moves its own timestamp forward by one second.
func (w *worker) run(header []byte, start Result, r nonceRange) bool {
	ev := w.cfg.evHandler()
	interval := w.cfg.progressInterval()

	buf := bytes.Clone(header)
	tsField := buf[len(buf)-timestampOffset : len(buf)-nonceOffset]
	nonceField := buf[len(buf)-nonceOffset:]

	timestamp := start.Timestamp
	nonce := r.start

	var pending uint64
	defer func() { w.record(pending) }()

	for {
		if w.search.halted.Load() {
			return false
		}

		binary.BigEndian.PutUint64(nonceField, nonce)

		w.attempts++
		pending++
		if pending == interval {
			w.record(pending)
			pending = 0
			ev("miner: worker[%d]: MINING: attempts[%d]", w.id, w.attempts)
		}

		if w.solved(w.cfg.Hasher.Hash(buf)) {
			return w.search.publish(Result{Timestamp: timestamp, Nonce: nonce})
		}

		nonce++
		if nonce == r.end {
			nonce = r.start
			timestamp++
			binary.BigEndian.PutUint64(tsField, uint64(timestamp))
		}
	}
}

func (w *worker) record(n uint64) {
	if w.cfg.Metrics != nil && n > 0 {
		w.cfg.Metrics.AddAttempts(n)
	}
}
