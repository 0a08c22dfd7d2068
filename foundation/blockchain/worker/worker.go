// Package worker implements the miner: candidate block assembly and the
// proof of work search, preempted by chain and mempool events.
package worker

import (
	"sync"
	"sync/atomic"

	"github.com/meridian-chain/meridian/foundation/blockchain/chain"
	"github.com/meridian-chain/meridian/foundation/blockchain/database"
	"github.com/meridian-chain/meridian/foundation/blockchain/mempool"
	"github.com/meridian-chain/meridian/foundation/events"
)

// EventHandler defines a function that is called when events occur in the
// processing of mining.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to run the worker.
type Config struct {
	Chain        *chain.Chain
	Mempool      *mempool.Mempool
	MinerAddress database.Address
	EvHandler    EventHandler
}

// Worker manages the proof of work workflows for the blockchain.
type Worker struct {
	chain        *chain.Chain
	mempool      *mempool.Mempool
	minerAddress database.Address
	evHandler    EventHandler

	wg           sync.WaitGroup
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan bool

	working        atomic.Bool
	mempoolChanged atomic.Bool
	attempts       atomic.Uint64

	blockMined      *events.Hub[database.Block]
	hashrateChanged *events.Hub[float64]
}

// Run creates a worker, wires it to the chain and mempool events, and
// starts up all the background processes.
func Run(cfg Config) *Worker {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	w := Worker{
		chain:           cfg.Chain,
		mempool:         cfg.Mempool,
		minerAddress:    cfg.MinerAddress,
		evHandler:       ev,
		shut:            make(chan struct{}),
		startMining:     make(chan bool, 1),
		cancelMining:    make(chan bool, 1),
		blockMined:      events.NewHub[database.Block](),
		hashrateChanged: events.NewHub[float64](),
	}

	// The mempool's sweep completion is the clean restart point after any
	// head change. A new pending transaction makes the current candidate
	// stale without invalidating its parent.
	cfg.Mempool.SubscribeTransactionsReady(func(struct{}) {
		w.SignalCancelMining()
		w.SignalStartMining()
	})
	cfg.Mempool.SubscribeTransactionAdded(func(database.Tx) {
		w.mempoolChanged.Store(true)
		w.SignalStartMining()
	})

	operations := []func(){
		w.miningOperations,
		w.hashrateOperations,
	}

	g := len(operations)
	w.wg.Add(g)

	hasStarted := make(chan bool)

	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	for i := 0; i < g; i++ {
		<-hasStarted
	}

	return &w
}

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.StopWork()
	close(w.shut)
	w.wg.Wait()
}

// =============================================================================

// StartWork puts the worker in the working state and kicks a mining
// operation.
func (w *Worker) StartWork() {
	w.working.Store(true)
	w.SignalStartMining()
}

// StopWork halts mining before the next attempt batch. A cancelled
// candidate is never pushed.
func (w *Worker) StopWork() {
	w.working.Store(false)
	w.SignalCancelMining()
}

// Working reports whether the worker is in the working state.
func (w *Worker) Working() bool {
	return w.working.Load()
}

// SignalStartMining starts a mining operation. If there is already a
// signal pending in the channel, just return since a mining operation
// will start.
func (w *Worker) SignalStartMining() {
	if !w.working.Load() {
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
}

// SignalCancelMining signals the goroutine executing the mining operation
// to stop immediately.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
}

// SubscribeBlockMined registers for successfully mined blocks.
func (w *Worker) SubscribeBlockMined(fn func(database.Block)) {
	w.blockMined.Subscribe(fn)
}

// SubscribeHashrateChanged registers for the once-per-second hashrate
// estimate.
func (w *Worker) SubscribeHashrateChanged(fn func(float64)) {
	w.hashrateChanged.Subscribe(fn)
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
