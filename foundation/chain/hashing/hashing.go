// Package hashing implements the nonce search. A worker extends the
// previous protocol state with a candidate and walks the nonce space in
// small batches until a header digest meets the difficulty target carried
// by the previous state.
package hashing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/codachain/node/foundation/chain/consensus"
)

// ErrCancelled is returned by Result when the search was cancelled before
// a winning nonce was found.
var ErrCancelled = errors.New("hashing cancelled")

// EventHandler defines a function that is called when things happen during
// the nonce search.
type EventHandler func(v string, args ...any)

// batchSize is the number of nonces tried between cooperative pauses.
const batchSize = 10

// batchPause is how long the worker yields between batches. Cancellation
// is observed at these boundaries.
const batchPause = 10 * time.Millisecond

// =============================================================================

// Result is the winning candidate of a nonce search.
type Result struct {
	State consensus.State
	Nonce consensus.Nonce
}

// Worker is the handle for one in-flight nonce search.
type Worker struct {
	cancel   chan struct{}
	cancelMu sync.Once
	done     chan struct{}
	result   Result
	err      error
}

// New starts a nonce search for a successor of prev carrying the specified
// ledger hash. The search begins at a random nonce and advances by
// successor, re-extending the candidate each batch so the winning state
// carries the time it was formed. Memory use is constant for the life of
// the search.
func New(mech consensus.Mechanism, prev consensus.ProtocolState, nextLedgerHash string, ev EventHandler) *Worker {
	w := Worker{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(w.done)

		difficulty := prev.Consensus.NextDifficulty
		nonce, err := consensus.NewNonce()
		if err != nil {
			ev("hashing: search: nonce: ERROR: %s", err)
			w.err = err
			return
		}

		ev("hashing: search: started: target[%s]", difficulty.Target)

		for {
			candidate := mech.Extend(prev, nextLedgerHash, consensus.Now())

			for i := 0; i < batchSize; i++ {
				digest := consensus.HeaderDigest(candidate, nonce)
				if difficulty.Meets(digest) {
					ev("hashing: search: solved: digest[%s]", digest)
					w.result = Result{State: candidate, Nonce: nonce}
					return
				}

				nonce = nonce.Next()
			}

			select {
			case <-w.cancel:
				w.err = ErrCancelled
				return
			case <-time.After(batchPause):
			}
		}
	}()

	return &w
}

// Result blocks until the search resolves or the context expires.
func (w *Worker) Result(ctx context.Context) (Result, error) {
	select {
	case <-w.done:
		return w.result, w.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel stops the search at the next batch boundary. It is idempotent.
func (w *Worker) Cancel() {
	w.cancelMu.Do(func() {
		close(w.cancel)
	})
}
