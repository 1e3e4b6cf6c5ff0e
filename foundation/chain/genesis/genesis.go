// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Genesis represents the genesis file. It fixes the chain identity: the
// starting balances, the initial difficulty target, the designated
// proposer for the signature mechanism and the starting epoch seed for the
// stake mechanism.
type Genesis struct {
	Date          time.Time         `json:"date"`
	ChainID       uint16            `json:"chain_id"`       // Unique id for this running instance.
	TxPerBundle   uint16            `json:"tx_per_bundle"`  // Maximum number of transactions folded into a bundle.
	InitialTarget string            `json:"initial_target"` // Starting difficulty target in hex.
	Coinbase      uint64            `json:"coinbase"`       // Reward for producing a transition.
	Proposer      string            `json:"proposer"`       // Designated signer under proof of signature.
	EpochSeed     string            `json:"epoch_seed"`     // Starting randomness under proof of stake.
	Balances      map[string]uint64 `json:"balances"`
}

// TotalCurrency returns the sum of the genesis balances. The stake
// mechanism measures eligibility against this value.
func (g Genesis) TotalCurrency() uint64 {
	var total uint64
	for _, balance := range g.Balances {
		total += balance
	}

	return total
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
