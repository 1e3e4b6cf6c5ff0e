// Package miner coordinates transition production. For the current tip it
// runs one bundle builder and one hashing worker in parallel, emits a
// transition with its witness when both succeed, and cancels and restarts
// the pair whenever the tip changes.
package miner

import (
	"context"
	"errors"
	"fmt"

	"github.com/codachain/node/foundation/chain/bundle"
	"github.com/codachain/node/foundation/chain/consensus"
	"github.com/codachain/node/foundation/chain/hashing"
	"github.com/codachain/node/foundation/chain/ledger"
	"github.com/codachain/node/foundation/chain/mempool"
	"github.com/codachain/node/foundation/chain/prover"
)

// ErrMiningCancelled reports an attempt that was cancelled before both
// workers completed.
var ErrMiningCancelled = errors.New("mining cancelled")

// ErrBundlingFailed reports an attempt whose bundle could not be proved.
var ErrBundlingFailed = errors.New("bundling failed")

// ErrTipStreamClosed reports the tip change feeder terminated. This is a
// fatal condition.
var ErrTipStreamClosed = errors.New("tip change stream closed")

// ErrOutputFull reports the emission stream was full when a transition
// completed. This is a fatal condition, the consumer is stalled.
var ErrOutputFull = errors.New("transition stream full")

// EventHandler defines a function that is called when things happen during
// coordination.
type EventHandler func(v string, args ...any)

// defaultTxPerBundle is the number of transactions taken from the pool for
// each bundle when the configuration does not specify one.
const defaultTxPerBundle = 10

// outputCapacity is the capacity of the emission stream. Filling it is
// fatal, transitions are never dropped silently.
const outputCapacity = 64

// =============================================================================

// Tip is the head of chain the miner works against, with the ledger and
// pool that belong to it.
type Tip struct {
	State  consensus.ProtocolState
	Ledger *ledger.Ledger
	Pool   *mempool.Mempool
}

// TipChange announces a new tip to the miner. The first event establishes
// the initial tip.
type TipChange struct {
	Tip Tip
}

// Transition carries the data a winning attempt produced.
type Transition struct {
	State       consensus.State
	LedgerHash  string
	LedgerProof prover.Proof
	Timestamp   consensus.Timestamp
	Nonce       consensus.Nonce
}

// TransitionWithWitness pairs a transition with the transactions that back
// its ledger hash.
type TransitionWithWitness struct {
	Transition   Transition
	Transactions []ledger.Tx
}

// =============================================================================

// Config is the set of collaborators and parameters the miner needs.
type Config struct {
	Mechanism   consensus.Mechanism
	Prover      prover.Prover
	Beneficiary string
	TxPerBundle int
	EvHandler   EventHandler
}

// Miner is the coordinator. It owns the emission stream and runs at most
// one mining attempt at a time.
type Miner struct {
	mechanism   consensus.Mechanism
	prover      prover.Prover
	beneficiary string
	txPerBundle int
	evHandler   EventHandler

	tipChanges chan TipChange
	output     chan TransitionWithWitness
}

// New constructs a miner from the specified configuration.
func New(cfg Config) (*Miner, error) {
	if cfg.Mechanism == nil {
		return nil, errors.New("consensus mechanism is required")
	}
	if cfg.Prover == nil {
		return nil, errors.New("proving backend is required")
	}
	if !ledger.IsAddress(cfg.Beneficiary) {
		return nil, fmt.Errorf("beneficiary address is not properly formatted")
	}

	txPerBundle := cfg.TxPerBundle
	if txPerBundle <= 0 {
		txPerBundle = defaultTxPerBundle
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	m := Miner{
		mechanism:   cfg.Mechanism,
		prover:      cfg.Prover,
		beneficiary: cfg.Beneficiary,
		txPerBundle: txPerBundle,
		evHandler:   ev,
		tipChanges:  make(chan TipChange, 16),
		output:      make(chan TransitionWithWitness, outputCapacity),
	}

	return &m, nil
}

// TipChanges returns the channel the chain controller feeds tip changes
// into. Closing it shuts the miner down.
func (m *Miner) TipChanges() chan<- TipChange {
	return m.tipChanges
}

// Transitions returns the emission stream of completed transitions.
func (m *Miner) Transitions() <-chan TransitionWithWitness {
	return m.output
}

// =============================================================================

// Run drives the per-tip state machine until the context is cancelled or a
// fatal condition occurs. The first tip change is required before any
// mining starts.
func (m *Miner) Run(ctx context.Context) error {
	m.evHandler("miner: run: started")
	defer m.evHandler("miner: run: completed")

	tip, err := m.nextTip(ctx)
	if err != nil {
		return err
	}

	for {
		attempt := m.startAttempt(tip)

		select {
		case <-ctx.Done():
			attempt.cancelAndWait()
			return ctx.Err()

		case tc, ok := <-m.tipChanges:
			attempt.cancelAndWait()
			if !ok {
				return ErrTipStreamClosed
			}
			m.evHandler("miner: run: tip changed: restarting")
			tip = tc.Tip

		case res := <-attempt.done:
			if res.err != nil {
				m.evHandler("miner: run: attempt: ERROR: %s", res.err)
			} else {
				select {
				case m.output <- res.tw:
					m.evHandler("miner: run: emitted transition: ledgerHash[%s]", res.tw.Transition.LedgerHash)
				default:
					return ErrOutputFull
				}
			}

			// One attempt per tip. Success or failure, wait for the
			// next tip change before mining again.
			tip, err = m.nextTip(ctx)
			if err != nil {
				return err
			}
		}
	}
}

// nextTip blocks for the next tip change.
func (m *Miner) nextTip(ctx context.Context) (Tip, error) {
	select {
	case <-ctx.Done():
		return Tip{}, ctx.Err()
	case tc, ok := <-m.tipChanges:
		if !ok {
			return Tip{}, ErrTipStreamClosed
		}
		return tc.Tip, nil
	}
}

// =============================================================================

// attemptResult is the composite outcome of one bundle/hashing pair.
type attemptResult struct {
	tw  TransitionWithWitness
	err error
}

// attempt is one in-flight bundle/hashing pair.
type attempt struct {
	cancel func()
	done   chan attemptResult
}

// cancelAndWait cancels the pair and blocks until both workers have
// resolved. The next attempt is not created until this returns.
func (a *attempt) cancelAndWait() {
	a.cancel()
	<-a.done
}

// startAttempt takes transactions from the tip's pool, starts the bundle
// builder and the hashing worker, and joins their results.
func (m *Miner) startAttempt(tip Tip) *attempt {
	ctx, cancel := context.WithCancel(context.Background())

	a := attempt{
		cancel: cancel,
		done:   make(chan attemptResult, 1),
	}

	go func() {
		defer cancel()

		txs := tip.Pool.Get(m.txPerBundle)
		m.evHandler("miner: attempt: started: txs[%d]", len(txs))

		b := bundle.Build(m.prover, tip.Ledger, m.beneficiary, txs, bundle.EventHandler(m.evHandler))
		w := hashing.New(m.mechanism, tip.State, b.TargetHash(), hashing.EventHandler(m.evHandler))

		go func() {
			<-ctx.Done()
			b.Cancel()
			w.Cancel()
		}()

		tw, err := m.joinResults(ctx, tip, b, w)
		if err != nil {
			tip.Pool.Restore(txs)
		}

		a.done <- attemptResult{tw: tw, err: err}
	}()

	return &a
}

// joinResults waits for both workers and composes the transition. The
// bundle resolves first in program order, but either worker finishing with
// a cancellation collapses the attempt.
func (m *Miner) joinResults(ctx context.Context, tip Tip, b *bundle.Bundle, w *hashing.Worker) (TransitionWithWitness, error) {
	proof, err := b.Result(ctx)
	if err != nil {
		switch {
		case errors.Is(err, bundle.ErrCancelled), errors.Is(err, context.Canceled):
			return TransitionWithWitness{}, ErrMiningCancelled
		default:
			return TransitionWithWitness{}, ErrBundlingFailed
		}
	}

	res, err := w.Result(ctx)
	if err != nil {
		return TransitionWithWitness{}, ErrMiningCancelled
	}

	tw := TransitionWithWitness{
		Transition: Transition{
			State:       res.State,
			LedgerHash:  b.TargetHash(),
			LedgerProof: proof,
			Timestamp:   res.State.Timestamp,
			Nonce:       res.Nonce,
		},
		Transactions: b.Transactions(),
	}

	return tw, nil
}
