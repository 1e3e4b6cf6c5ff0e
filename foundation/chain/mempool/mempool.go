// Package mempool maintains the pool of pending transactions waiting to be
// folded into a bundle.
package mempool

import (
	"strings"
	"sync"

	"github.com/codachain/node/foundation/chain/ledger"
	"github.com/codachain/node/foundation/chain/mempool/selector"
)

// Mempool represents a cache of transactions keyed by account:nonce.
type Mempool struct {
	mu       sync.RWMutex
	pool     map[string]ledger.Tx
	selectFn selector.Func
}

// New constructs a new mempool using the default sort strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFee)
}

// NewWithStrategy constructs a new mempool with the specified sort strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]ledger.Tx),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool. A transaction with
// the same account and nonce replaces the existing entry, which lets a
// sender raise the fee on a pending payment.
func (mp *Mempool) Upsert(tx ledger.Tx) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool[tx.UniqueKey()] = tx

	return len(mp.pool), nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx ledger.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, tx.UniqueKey())
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]ledger.Tx)
}

// Copy returns a list of the current transactions in the pool.
func (mp *Mempool) Copy() []ledger.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]ledger.Tx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		txs = append(txs, tx)
	}

	return txs
}

// PickBest uses the configured sort strategy to return the next set of
// transactions for the next bundle. The transactions remain in the pool.
func (mp *Mempool) PickBest(howMany int) []ledger.Tx {
	m := make(map[string][]ledger.Tx)
	mp.mu.RLock()
	{
		if howMany == -1 {
			howMany = len(mp.pool)
		}

		for key, tx := range mp.pool {
			addr := strings.Split(key, ":")[0]
			m[addr] = append(m[addr], tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, howMany)
}

// Get selects the best transactions and removes them from the pool in one
// critical section. A transaction handed to a bundle is never handed out a
// second time, even when two builders race.
func (mp *Mempool) Get(howMany int) []ledger.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if howMany == -1 {
		howMany = len(mp.pool)
	}

	m := make(map[string][]ledger.Tx)
	for key, tx := range mp.pool {
		addr := strings.Split(key, ":")[0]
		m[addr] = append(m[addr], tx)
	}

	txs := mp.selectFn(m, howMany)
	for _, tx := range txs {
		delete(mp.pool, tx.UniqueKey())
	}

	return txs
}

// Restore puts transactions back into the pool. The miner returns an
// attempt's transactions here when the attempt ends without a transition,
// whether cancelled or failed.
func (mp *Mempool) Restore(txs []ledger.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, tx := range txs {
		mp.pool[tx.UniqueKey()] = tx
	}
}
