// Package archive persists adopted transitions. Every protocol state the
// controller takes is written with its transactions, keyed by state hash,
// with the parent link preserved so ancestry questions can be answered for
// fork choice.
package archive

import (
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/codachain/node/foundation/chain/consensus"
	"github.com/codachain/node/foundation/chain/ledger"
	"github.com/codachain/node/foundation/chain/prover"
	"github.com/codachain/node/foundation/chain/signature"
)

// tipKey stores the hash of the latest adopted state.
const tipKey = "tip"

// Record is one archived transition: the adopted protocol state, the
// evidence it was adopted on, and the transactions it committed.
type Record struct {
	State        consensus.ProtocolState  `json:"state"`
	Data         consensus.TransitionData `json:"consensus_transition_data"`
	Nonce        consensus.Nonce          `json:"nonce"`
	LedgerProof  prover.Proof             `json:"ledger_proof"`
	Transactions []ledger.Tx              `json:"transactions"`
}

// Archive provides disk backed storage of adopted transitions.
type Archive struct {
	db *leveldb.DB
}

// New opens the archive at the specified path, creating it when absent.
func New(path string) (*Archive, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close releases the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Write stores the record keyed by its state hash and moves the tip
// pointer to it.
func (a *Archive) Write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	hash := rec.State.Hash()

	batch := new(leveldb.Batch)
	batch.Put([]byte(hash), data)
	batch.Put([]byte(tipKey), []byte(hash))

	return a.db.Write(batch, nil)
}

// Read returns the record stored under the specified state hash.
func (a *Archive) Read(stateHash string) (Record, error) {
	data, err := a.db.Get([]byte(stateHash), nil)
	if err != nil {
		return Record{}, fmt.Errorf("read archive: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}

	return rec, nil
}

// TipHash returns the hash of the latest adopted state.
func (a *Archive) TipHash() (string, error) {
	data, err := a.db.Get([]byte(tipKey), nil)
	if err != nil {
		return "", fmt.Errorf("read archive tip: %w", err)
	}

	return string(data), nil
}

// Ancestors walks the parent links from the specified state, returning up
// to count records newest first. The walk stops at genesis.
func (a *Archive) Ancestors(stateHash string, count int) ([]Record, error) {
	records := make([]Record, 0, count)

	hash := stateHash
	for len(records) < count && hash != signature.ZeroHash {
		rec, err := a.Read(hash)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
		hash = rec.State.PreviousStateHash
	}

	return records, nil
}

// =============================================================================
// These methods answer the ancestry questions fork choice asks across
// epoch boundaries.

// FinalizedAncestor returns the hash of the state depth links behind the
// specified tip. The second return is false when the chain is shorter than
// depth or the walk leaves the archive.
func (a *Archive) FinalizedAncestor(tipHash string, depth uint64) (string, bool) {
	hash := tipHash
	for i := uint64(0); i < depth; i++ {
		if hash == signature.ZeroHash {
			return "", false
		}

		rec, err := a.Read(hash)
		if err != nil {
			return "", false
		}

		hash = rec.State.PreviousStateHash
	}

	if hash == signature.ZeroHash {
		return "", false
	}

	return hash, true
}

// HasAncestor reports whether ancestorHash appears on the parent walk
// starting at tipHash.
func (a *Archive) HasAncestor(tipHash string, ancestorHash string) bool {
	hash := tipHash
	for hash != signature.ZeroHash {
		if hash == ancestorHash {
			return true
		}

		rec, err := a.Read(hash)
		if err != nil {
			return false
		}

		hash = rec.State.PreviousStateHash
	}

	return false
}
