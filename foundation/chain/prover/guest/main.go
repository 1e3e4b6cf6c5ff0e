//go:build mipsle

// Program guest runs inside the zkVM for one ledger transition. The host
// feeds it the statement; the program commits the source ledger hash, each
// transaction hash in order and the target ledger hash as its public values,
// so the resulting proof binds them. It does not re-apply the transactions
// to a ledger.
package main

import (
	"github.com/ProjectZKM/Ziren/crates/go-runtime/zkvm_runtime"
)

type statement struct {
	SourceLedgerHash string   `json:"source_ledger_hash"`
	TargetLedgerHash string   `json:"target_ledger_hash"`
	TxHashes         []string `json:"tx_hashes"`
}

func main() {
	st := zkvm_runtime.Read[statement]()

	zkvm_runtime.Commit(st.SourceLedgerHash)
	for _, hash := range st.TxHashes {
		zkvm_runtime.Commit(hash)
	}
	zkvm_runtime.Commit(st.TargetLedgerHash)
}
