// Package mempool maintains the set of pending transactions, keyed by
// sender and nonce, and keeps the set jointly valid against the current
// chain head.
package mempool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/meridian-chain/meridian/foundation/blockchain/chain"
	"github.com/meridian-chain/meridian/foundation/blockchain/database"
	"github.com/meridian-chain/meridian/foundation/events"
)

// PushResult reports what happened to a transaction handed to
// PushTransaction.
type PushResult int

// The complete set of push outcomes.
const (
	Invalid PushResult = iota
	Known
	Added
)

// String implements the fmt.Stringer interface for logging.
func (pr PushResult) String() string {
	switch pr {
	case Invalid:
		return "INVALID"
	case Known:
		return "KNOWN"
	case Added:
		return "ADDED"
	}
	return "UNKNOWN"
}

// EventHandler defines a function that is called when events occur in the
// processing of transactions.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to construct a mempool.
type Config struct {
	Chain     *chain.Chain
	EvHandler EventHandler
}

// Mempool represents a cache of pending transactions organized by
// sender:nonce. It holds the chain read-only for validation and reacts to
// head changes by sweeping out entries the new state invalidates.
type Mempool struct {
	mu        sync.RWMutex
	pool      map[string]database.Tx
	chain     *chain.Chain
	evHandler EventHandler

	txAdded *events.Hub[database.Tx]
	txReady *events.Hub[struct{}]
}

// New constructs a mempool and subscribes it to the chain's head changes.
func New(cfg Config) *Mempool {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	mp := Mempool{
		pool:      make(map[string]database.Tx),
		chain:     cfg.Chain,
		evHandler: ev,
		txAdded:   events.NewHub[database.Tx](),
		txReady:   events.NewHub[struct{}](),
	}

	cfg.Chain.SubscribeHeadChanged(mp.onHeadChanged)

	return &mp
}

// SubscribeTransactionAdded registers for accepted transactions. Events
// are delivered in acceptance order.
func (mp *Mempool) SubscribeTransactionAdded(fn func(database.Tx)) {
	mp.txAdded.Subscribe(fn)
}

// SubscribeTransactionsReady registers for the completion of a head
// change sweep. The event fires exactly once per sweep and is the signal
// that the pool is consistent with the new head.
func (mp *Mempool) SubscribeTransactionsReady(fn func(struct{})) {
	mp.txReady.Subscribe(fn)
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// PushTransaction validates a transaction against the current head state
// and the already pending transactions from the same sender, then admits
// it.
func (mp *Mempool) PushTransaction(tx database.Tx) (PushResult, error) {
	mp.mu.Lock()

	key := mapKey(tx)
	if _, exists := mp.pool[key]; exists {
		mp.mu.Unlock()
		return Known, nil
	}

	if !tx.VerifySignature() {
		mp.mu.Unlock()
		return Invalid, fmt.Errorf("bad signature")
	}
	if tx.Value == 0 {
		mp.mu.Unlock()
		return Invalid, fmt.Errorf("zero value")
	}
	if tx.Fee < mp.chain.Genesis().MinFee {
		mp.mu.Unlock()
		return Invalid, fmt.Errorf("fee %d below minimum %d", tx.Fee, mp.chain.Genesis().MinFee)
	}

	sender := tx.Sender()
	account, err := mp.chain.Accounts().Get(sender)
	if err != nil {
		mp.mu.Unlock()
		return Invalid, err
	}

	pendingCount, pendingTotal := mp.pendingForSender(sender)

	if tx.Nonce != account.Nonce+pendingCount {
		mp.mu.Unlock()
		return Invalid, fmt.Errorf("nonce %d not contiguous, exp %d", tx.Nonce, account.Nonce+pendingCount)
	}
	if pendingTotal+tx.Value+tx.Fee > account.Balance {
		mp.mu.Unlock()
		return Invalid, fmt.Errorf("cumulative spend exceeds balance %d", account.Balance)
	}

	mp.pool[key] = tx
	mp.mu.Unlock()

	mp.evHandler("mempool: pushTransaction: tx[%s]: ADDED", tx)
	mp.txAdded.Publish(tx)

	return Added, nil
}

// PickBest returns a deterministic, jointly valid set of up to maxCount
// transactions: fee density first, then sender and nonce, never skipping
// a nonce within a sender and never overdrawing a sender's balance.
func (mp *Mempool) PickBest(maxCount int) []database.Tx {
	// Group the pool by sender, nonce ordered, so a sender's transactions
	// can only be taken front to back.
	mp.mu.RLock()
	queues := make(map[database.Address][]database.Tx)
	for _, tx := range mp.pool {
		sender := tx.Sender()
		queues[sender] = append(queues[sender], tx)
	}
	mp.mu.RUnlock()

	senders := make([]database.Address, 0, len(queues))
	for sender, txs := range queues {
		sort.Slice(txs, func(i, j int) bool { return txs[i].Nonce < txs[j].Nonce })
		senders = append(senders, sender)
	}
	sort.Slice(senders, func(i, j int) bool { return senders[i].String() < senders[j].String() })

	included := make(map[database.Address]uint32)
	spent := make(map[database.Address]uint64)
	accounts := make(map[database.Address]database.Account)

	// Repeatedly take the densest eligible transaction: the front of some
	// sender's queue whose nonce continues the sender's run and whose
	// spend still fits the balance.
	var picked []database.Tx
	for maxCount < 0 || len(picked) < maxCount {
		var best *database.Tx
		var bestSender database.Address

		for _, sender := range senders {
			queue := queues[sender]
			if len(queue) == 0 {
				continue
			}
			tx := queue[0]

			account, exists := accounts[sender]
			if !exists {
				acct, err := mp.chain.Accounts().Get(sender)
				if err != nil {
					continue
				}
				account, accounts[sender] = acct, acct
			}

			if tx.Nonce != account.Nonce+included[sender] {
				continue
			}
			if spent[sender]+tx.Value+tx.Fee > account.Balance {
				continue
			}

			if best == nil || tx.FeePerByte() > best.FeePerByte() {
				t := tx
				best, bestSender = &t, sender
			}
		}

		if best == nil {
			break
		}

		queues[bestSender] = queues[bestSender][1:]
		included[bestSender]++
		spent[bestSender] += best.Value + best.Fee
		picked = append(picked, *best)
	}

	return picked
}

// Copy returns a snapshot of every pending transaction.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]database.Tx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		txs = append(txs, tx)
	}
	return txs
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.Tx)
}

// =============================================================================

// onHeadChanged re-validates the whole pool against the new head state in
// one pass and drops everything the new state invalidates: transactions
// now included, stale nonces, and spends the balances no longer cover.
// transactions-ready fires exactly once when the sweep completes.
func (mp *Mempool) onHeadChanged(hc chain.HeadChange) {
	mp.mu.Lock()

	// Group the pool by sender, nonce ordered.
	bySender := make(map[database.Address][]database.Tx)
	for _, tx := range mp.pool {
		sender := tx.Sender()
		bySender[sender] = append(bySender[sender], tx)
	}

	dropped := 0
	for sender, txs := range bySender {
		sort.Slice(txs, func(i, j int) bool { return txs[i].Nonce < txs[j].Nonce })

		account, err := mp.chain.Accounts().Get(sender)
		if err != nil {
			continue
		}

		expected := account.Nonce
		var cumulative uint64
		for _, tx := range txs {
			valid := tx.Nonce == expected && cumulative+tx.Value+tx.Fee <= account.Balance
			if valid {
				expected++
				cumulative += tx.Value + tx.Fee
				continue
			}

			delete(mp.pool, mapKey(tx))
			dropped++
		}
	}

	remaining := len(mp.pool)
	mp.mu.Unlock()

	mp.evHandler("mempool: headChanged: head[%s]: dropped[%d] remaining[%d]", hc.HeadHash, dropped, remaining)
	mp.txReady.Publish(struct{}{})
}

// pendingForSender counts the pending transactions and the cumulative
// spend for a sender. Callers hold the lock.
func (mp *Mempool) pendingForSender(sender database.Address) (uint32, uint64) {
	var count uint32
	var total uint64
	for _, tx := range mp.pool {
		if tx.Sender() == sender {
			count++
			total += tx.Value + tx.Fee
		}
	}
	return count, total
}

// mapKey is used to generate the map key.
func mapKey(tx database.Tx) string {
	return fmt.Sprintf("%s:%d", tx.Sender(), tx.Nonce)
}
