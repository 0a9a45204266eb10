// Package worker implements the background mining of submitted values into
// a chain.
package worker

import (
	"fmt"
	"sync"

	"github.com/ardanlabs/hashledger/foundation/blockchain/chain"
	validate "github.com/go-playground/validator/v10"
)

// EventHandler defines a function that is called when events occur in the
// processing of the worker.
type EventHandler func(v string, args ...any)

// SizeRecorder represents the behavior required to record the chain size
// after every appended block.
type SizeRecorder interface {
	SetChainSize(n int)
}

// Config represents the configuration required to start a worker.
type Config[V any] struct {
	Chain     *chain.Chain[V] `validate:"required"`
	Persist   func(c *chain.Chain[V]) error
	Metrics   SizeRecorder
	EvHandler EventHandler
}

// Worker manages the mining workflow for a chain.
type Worker[V any] struct {
	cfg          Config[V]
	wg           sync.WaitGroup
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan bool
	evHandler    EventHandler

	mu      sync.Mutex
	pending []V
}

// Run creates a worker and starts the mining goroutine.
func Run[V any](cfg Config[V]) (*Worker[V], error) {
	if err := validate.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("worker config: %w", err)
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	w := Worker[V]{
		cfg:          cfg,
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan bool, 1),
		evHandler:    ev,
	}

	if cfg.Metrics != nil {
		cfg.Metrics.SetChainSize(cfg.Chain.Size())
	}

	w.wg.Add(1)

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	go func() {
		defer w.wg.Done()
		hasStarted <- true
		w.miningOperations()
	}()

	<-hasStarted

	return &w, nil
}

// Shutdown cancels any mining in progress and terminates the goroutine
// performing work. Values not yet mined stay pending.
func (w *Worker[V]) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// Submit queues a value to be mined into the chain and signals mining.
func (w *Worker[V]) Submit(value V) {
	w.mu.Lock()
	w.pending = append(w.pending, value)
	n := len(w.pending)
	w.mu.Unlock()

	w.evHandler("worker: Submit: pending[%d]", n)
	w.SignalStartMining()
}

// Pending returns the number of values waiting to be mined.
func (w *Worker[V]) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.pending)
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker[V]) SignalStartMining() {
	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately.
func (w *Worker[V]) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker[V]) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

// next returns the oldest pending value.
func (w *Worker[V]) next() (V, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		var zero V
		return zero, false
	}

	return w.pending[0], true
}

// done removes the oldest pending value once it has been mined and returns
// the number still pending.
func (w *Worker[V]) done() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = w.pending[1:]
	return len(w.pending)
}
