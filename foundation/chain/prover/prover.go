// Package prover defines the contract with the zero knowledge proving
// backend that certifies ledger transitions. The statement binds the source
// ledger, the target ledger and the exact transaction sequence between
// them. The backend itself is a collaborator; a development prover is
// provided for nodes running without one.
package prover

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/codachain/node/foundation/chain/signature"
)

// Statement is the public input a ledger proof is checked against.
type Statement struct {
	SourceLedgerHash string   `json:"source_ledger_hash"`
	TargetLedgerHash string   `json:"target_ledger_hash"`
	TxHashes         []string `json:"tx_hashes"`
}

// NewStatement constructs the statement for a transition from source to
// target applying the specified transaction hashes in order.
func NewStatement(sourceLedgerHash string, targetLedgerHash string, txHashes []string) Statement {
	return Statement{
		SourceLedgerHash: sourceLedgerHash,
		TargetLedgerHash: targetLedgerHash,
		TxHashes:         txHashes,
	}
}

// Hash returns the unique hash of the statement.
func (st Statement) Hash() string {
	return signature.Hash(st)
}

// =============================================================================

// Proof is an opaque certificate produced by a proving backend.
type Proof struct {
	Backend string `json:"backend"`
	Data    string `json:"data"`
}

// Prover produces and checks ledger transition proofs. Prove may take
// arbitrarily long and must honor context cancellation. Verify is pure.
type Prover interface {
	Prove(ctx context.Context, st Statement) (Proof, error)
	Verify(st Statement, proof Proof) error
}

// =============================================================================

// DevBackend is the backend name carried by development proofs.
const DevBackend = "development"

// DevProver is a proving backend for development and tests. Its proof is a
// keyed digest of the statement: unforgeable without the key, instant to
// produce, and worthless as a zero knowledge argument.
type DevProver struct {
	key []byte
}

// NewDevProver constructs a development prover with the specified key.
func NewDevProver(key []byte) *DevProver {
	return &DevProver{key: key}
}

// Prove produces the keyed digest for the statement.
func (dp *DevProver) Prove(ctx context.Context, st Statement) (Proof, error) {
	if err := ctx.Err(); err != nil {
		return Proof{}, err
	}

	data, err := dp.digest(st)
	if err != nil {
		return Proof{}, err
	}

	proof := Proof{
		Backend: DevBackend,
		Data:    "0x" + hex.EncodeToString(data),
	}

	return proof, nil
}

// Verify checks the proof was produced over this exact statement.
func (dp *DevProver) Verify(st Statement, proof Proof) error {
	if proof.Backend != DevBackend {
		return fmt.Errorf("proof backend %q is not %q", proof.Backend, DevBackend)
	}

	want, err := dp.digest(st)
	if err != nil {
		return err
	}

	got, err := hex.DecodeString(proof.Data[2:])
	if err != nil {
		return fmt.Errorf("proof data is not hex encoded: %w", err)
	}

	if subtle.ConstantTimeCompare(want, got) != 1 {
		return fmt.Errorf("proof does not verify against the statement")
	}

	return nil
}

// digest computes the keyed blake2b digest of the statement hash.
func (dp *DevProver) digest(st Statement) ([]byte, error) {
	h, err := blake2b.New256(dp.key)
	if err != nil {
		return nil, err
	}

	stmtHash := signature.ToBytes(st.Hash())
	h.Write(stmtHash[:])

	return h.Sum(nil), nil
}
