package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/codachain/node/foundation/chain/signature"
)

// Info represents the information stored for an individual account.
type Info struct {
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Ledger manages the balances and nonces of every account that has
// transacted on the chain.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]uint64
	info     map[string]Info
}

// New constructs a ledger initialized from the specified genesis balances.
func New(balances map[string]uint64) *Ledger {
	lgr := Ledger{
		balances: balances,
		info:     make(map[string]Info),
	}

	for addr, balance := range balances {
		lgr.info[addr] = Info{Balance: balance}
	}

	return &lgr
}

// Reset re-initializes the ledger back to the genesis balances.
func (lgr *Ledger) Reset() {
	lgr.mu.Lock()
	defer lgr.mu.Unlock()

	lgr.info = make(map[string]Info)
	for addr, balance := range lgr.balances {
		lgr.info[addr] = Info{Balance: balance}
	}
}

// Replace swaps the account information for the specified ledger's.
func (lgr *Ledger) Replace(other *Ledger) {
	lgr.mu.Lock()
	defer lgr.mu.Unlock()

	lgr.info = other.info
}

// Clone makes an independent copy of the ledger. Bundle building works
// against a clone so a failed proof never corrupts the committed ledger.
func (lgr *Ledger) Clone() *Ledger {
	lgr.mu.RLock()
	defer lgr.mu.RUnlock()

	clone := New(lgr.balances)
	for addr, info := range lgr.info {
		clone.info[addr] = info
	}

	return clone
}

// Copy returns the current information for all accounts.
func (lgr *Ledger) Copy() map[string]Info {
	lgr.mu.RLock()
	defer lgr.mu.RUnlock()

	accounts := make(map[string]Info)
	for addr, info := range lgr.info {
		accounts[addr] = info
	}

	return accounts
}

// Query returns the information for the specified account.
func (lgr *Ledger) Query(address string) Info {
	lgr.mu.RLock()
	defer lgr.mu.RUnlock()

	return lgr.info[address]
}

// ValidateNonce validates the nonce for the specified transaction is larger
// than the last nonce committed by the account that signed the transaction.
func (lgr *Ledger) ValidateNonce(tx Tx) error {
	from, err := tx.FromAddress()
	if err != nil {
		return err
	}

	var info Info
	lgr.mu.RLock()
	{
		info = lgr.info[from]
	}
	lgr.mu.RUnlock()

	if tx.Nonce <= info.Nonce {
		return fmt.Errorf("invalid nonce, got %d, exp > %d", tx.Nonce, info.Nonce)
	}

	return nil
}

// ApplyProposerReward credits the proposer with the coinbase for a
// transition.
func (lgr *Ledger) ApplyProposerReward(proposerAddr string, coinbase uint64) {
	lgr.mu.Lock()
	defer lgr.mu.Unlock()

	info := lgr.info[proposerAddr]
	info.Balance += coinbase

	lgr.info[proposerAddr] = info
}

// ApplyTransaction performs the business logic for applying a transaction
// against the ledger.
func (lgr *Ledger) ApplyTransaction(proposerAddr string, tx Tx) error {
	from, err := tx.FromAddress()
	if err != nil {
		return fmt.Errorf("invalid signature, %s", err)
	}

	lgr.mu.Lock()
	defer lgr.mu.Unlock()
	{
		if from == tx.To {
			return fmt.Errorf("invalid transaction, sending money to yourself, from %s, to %s", from, tx.To)
		}

		fromInfo := lgr.info[from]
		if tx.Nonce <= fromInfo.Nonce {
			return fmt.Errorf("invalid transaction, nonce too small, last %d, tx %d", fromInfo.Nonce, tx.Nonce)
		}

		if tx.Value+tx.Fee > fromInfo.Balance {
			return fmt.Errorf("%s has an insufficient balance", from)
		}

		toInfo := lgr.info[tx.To]
		proposerInfo := lgr.info[proposerAddr]

		fromInfo.Balance -= tx.Value
		toInfo.Balance += tx.Value

		proposerInfo.Balance += tx.Fee
		fromInfo.Balance -= tx.Fee

		fromInfo.Nonce = tx.Nonce

		lgr.info[from] = fromInfo
		lgr.info[tx.To] = toInfo
		lgr.info[proposerAddr] = proposerInfo
	}

	return nil
}

// =============================================================================

// account pairs an address with its information for hashing. The ledger map
// has no stable order so the hash is taken over the sorted sequence.
type account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Hash returns the content hash of the ledger. Two ledgers holding the same
// accounts produce the same hash regardless of the order entries were
// applied in.
func (lgr *Ledger) Hash() string {
	lgr.mu.RLock()
	defer lgr.mu.RUnlock()

	accounts := make([]account, 0, len(lgr.info))
	for addr, info := range lgr.info {
		accounts = append(accounts, account{
			Address: addr,
			Balance: info.Balance,
			Nonce:   info.Nonce,
		})
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Address < accounts[j].Address
	})

	return signature.Hash(accounts)
}

// Stakes returns the balance of every account, read as its stake. The
// consensus layer freezes this distribution at epoch boundaries.
func (lgr *Ledger) Stakes() map[string]uint64 {
	lgr.mu.RLock()
	defer lgr.mu.RUnlock()

	stakes := make(map[string]uint64, len(lgr.info))
	for addr, info := range lgr.info {
		stakes[addr] = info.Balance
	}

	return stakes
}

// Total returns the sum of every account balance.
func (lgr *Ledger) Total() uint64 {
	lgr.mu.RLock()
	defer lgr.mu.RUnlock()

	var total uint64
	for _, info := range lgr.info {
		total += info.Balance
	}

	return total
}
