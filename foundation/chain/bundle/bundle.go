// Package bundle builds bundles: a batch of transactions applied against a
// ledger snapshot together with the proof the application was performed
// correctly. Building is asynchronous and cancellable; the target ledger
// hash is available immediately.
package bundle

import (
	"context"
	"errors"
	"sync"

	"github.com/codachain/node/foundation/chain/ledger"
	"github.com/codachain/node/foundation/chain/prover"
)

// ErrCancelled is returned by Result when the bundle was cancelled before
// the proof completed.
var ErrCancelled = errors.New("bundling cancelled")

// ErrFailed is returned by Result when the proving backend could not
// produce a proof.
var ErrFailed = errors.New("bundling failed")

// EventHandler defines a function that is called when things happen during
// the building of a bundle.
type EventHandler func(v string, args ...any)

// =============================================================================

// Bundle is the handle for one in-flight build. The target hash is fixed at
// construction; the proof arrives through Result.
type Bundle struct {
	sourceHash string
	targetHash string
	txs        []ledger.Tx
	statement  prover.Statement

	cancel   context.CancelFunc
	cancelMu sync.Once
	done     chan struct{}
	proof    prover.Proof
	err      error
}

// Build applies the transactions against a clone of the ledger to determine
// the target hash, then starts the proving backend in the background. The
// committed ledger is never touched. Transactions that fail to apply are
// dropped from the bundle.
func Build(pvr prover.Prover, lgr *ledger.Ledger, beneficiary string, txs []ledger.Tx, ev EventHandler) *Bundle {
	clone := lgr.Clone()
	sourceHash := clone.Hash()
	applied := make([]ledger.Tx, 0, len(txs))
	for _, tx := range txs {
		if err := clone.ApplyTransaction(beneficiary, tx); err != nil {
			ev("bundle: build: dropping tx[%s]: %s", tx, err)
			continue
		}
		applied = append(applied, tx)
	}

	targetHash := clone.Hash()
	statement := prover.NewStatement(sourceHash, targetHash, ledger.TxHashes(applied))

	ctx, cancel := context.WithCancel(context.Background())

	b := Bundle{
		sourceHash: sourceHash,
		targetHash: targetHash,
		txs:        applied,
		statement:  statement,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go func() {
		defer close(b.done)

		proof, err := pvr.Prove(ctx, statement)
		if err != nil {
			if ctx.Err() != nil {
				b.err = ErrCancelled
				return
			}
			ev("bundle: prove: ERROR: %s", err)
			b.err = ErrFailed
			return
		}

		if err := pvr.Verify(statement, proof); err != nil {
			ev("bundle: verify: ERROR: %s", err)
			b.err = ErrFailed
			return
		}

		b.proof = proof
	}()

	return &b
}

// SourceHash returns the hash of the ledger the bundle was built against.
func (b *Bundle) SourceHash() string {
	return b.sourceHash
}

// TargetHash returns the ledger hash the bundle's transactions produce.
// It is available before the proof completes.
func (b *Bundle) TargetHash() string {
	return b.targetHash
}

// Transactions returns the transactions folded into the bundle, in the
// order they were applied.
func (b *Bundle) Transactions() []ledger.Tx {
	return b.txs
}

// Statement returns the statement the bundle's proof certifies.
func (b *Bundle) Statement() prover.Statement {
	return b.statement
}

// Result blocks until the proof completes, the bundle is cancelled, or the
// context expires. It never returns a proof that does not verify against
// the statement.
func (b *Bundle) Result(ctx context.Context) (prover.Proof, error) {
	select {
	case <-b.done:
		return b.proof, b.err
	case <-ctx.Done():
		return prover.Proof{}, ctx.Err()
	}
}

// Cancel stops the build. It is idempotent and safe to call after the
// result has resolved.
func (b *Bundle) Cancel() {
	b.cancelMu.Do(func() {
		b.cancel()
	})
}
