package worker

import (
	"context"
	"sync"
	"time"
)

// miningOperations handles mining.
func (w *Worker[V]) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation mines the oldest pending value into the chain and
// persists the chain.
func (w *Worker[V]) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	value, ok := w.next()
	if !ok {
		w.evHandler("worker: runMiningOperation: MINING: no values to mine")
		return
	}

	// After running a mining operation, check if a new operation should
	// be signaled again.
	defer func() {
		if n := w.Pending(); n > 0 && !w.isShutdown() {
			w.evHandler("worker: runMiningOperation: MINING: signal new mining operation: pending[%d]", n)
			w.SignalStartMining()
		}
	}()

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained cancel channel")
	default:
	}

	// Create a context so mining can be cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the mining operation.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
		case <-w.shut:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: shutdown")
		case <-ctx.Done():
		}
	}()

	// This G is performing the mining.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		appended, err := w.cfg.Chain.AppendValue(ctx, value)
		duration := time.Since(t)

		w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

		switch {
		case err != nil && ctx.Err() != nil:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
			return
		case err != nil:
			// Mining the same value again fails the same way.
			pending := w.done()
			w.evHandler("worker: runMiningOperation: MINING: ERROR: value dropped: pending[%d]: %s", pending, err)
			return
		case !appended:
			w.evHandler("worker: runMiningOperation: MINING: WARNING: tail moved, mining again")
			return
		}

		pending := w.done()
		tail := w.cfg.Chain.Tail().Header()
		w.evHandler("worker: runMiningOperation: MINING: SOLVED: block[%d]: hash[%s]: pending[%d]", tail.Index(), tail.HashHex(), pending)

		if w.cfg.Metrics != nil {
			w.cfg.Metrics.SetChainSize(w.cfg.Chain.Size())
		}

		if w.cfg.Persist != nil {
			if err := w.cfg.Persist(w.cfg.Chain); err != nil {
				w.evHandler("worker: runMiningOperation: MINING: persist: ERROR: %s", err)
			}
		}
	}()

	// Wait for both G's to terminate.
	wg.Wait()
}
