package miner_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/codachain/node/foundation/chain/consensus"
	"github.com/codachain/node/foundation/chain/ledger"
	"github.com/codachain/node/foundation/chain/mempool"
	"github.com/codachain/node/foundation/chain/miner"
	"github.com/codachain/node/foundation/chain/prover"
	"github.com/codachain/node/foundation/chain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func genKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %s", failed, err)
	}

	return pk, crypto.PubkeyToAddress(pk.PublicKey).String()
}

func sign(t *testing.T, pk *ecdsa.PrivateKey, nonce uint64, to string, value uint64, fee uint64) ledger.Tx {
	userTx, err := ledger.NewUserTx(nonce, to, value, fee)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create a transaction: %s", failed, err)
	}

	tx, err := userTx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign a transaction: %s", failed, err)
	}

	return tx
}

func mechanism(t *testing.T, proposer string, difficulty consensus.Difficulty) consensus.Mechanism {
	params := consensus.Params{
		ProposalInterval:      10 * time.Second,
		GenesisStateTimestamp: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		Coinbase:              600,
		GenesisLedgerHash:     signature.Hash("genesis ledger"),
		InitialDifficulty:     difficulty,
		TotalCurrency:         1000,
		Proposer:              proposer,
	}

	mech, err := consensus.New(consensus.ProofOfSignature, params, consensus.Deps{})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the mechanism: %s", failed, err)
	}

	return mech
}

func newTip(t *testing.T, state consensus.ProtocolState, balances map[string]uint64, txs ...ledger.Tx) miner.Tip {
	pool, err := mempool.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a mempool: %s", failed, err)
	}

	for _, tx := range txs {
		if _, err := pool.Upsert(tx); err != nil {
			t.Fatalf("\t%s\tShould be able to upsert a transaction: %s", failed, err)
		}
	}

	return miner.Tip{
		State:  state,
		Ledger: ledger.New(balances),
		Pool:   pool,
	}
}

func newMiner(t *testing.T, mech consensus.Mechanism, pvr prover.Prover, beneficiary string) *miner.Miner {
	m, err := miner.New(miner.Config{
		Mechanism:   mech,
		Prover:      pvr,
		Beneficiary: beneficiary,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a miner: %s", failed, err)
	}

	return m
}

// failingProver fails every statement once the release channel closes.
type failingProver struct {
	started chan struct{}
	release chan struct{}
}

func (fp *failingProver) Prove(ctx context.Context, st prover.Statement) (prover.Proof, error) {
	close(fp.started)
	<-fp.release
	return prover.Proof{}, errors.New("backend offline")
}

func (fp *failingProver) Verify(st prover.Statement, proof prover.Proof) error {
	return errors.New("backend offline")
}

// =============================================================================

func TestMineTransition(t *testing.T) {
	senderPK, senderAddr := genKey(t)
	_, toAddr := genKey(t)
	_, beneficiary := genKey(t)

	dp := prover.NewDevProver([]byte("test-proving-key"))
	mech := mechanism(t, beneficiary, consensus.MaxDifficulty())

	t.Log("Given the need to validate producing a transition for a tip.")
	{
		t.Logf("\tTest 0:\tWhen a tip with pending transactions arrives.")
		{
			m := newMiner(t, mech, dp, beneficiary)

			ctx, cancel := context.WithCancel(context.Background())
			runDone := make(chan error, 1)
			go func() {
				runDone <- m.Run(ctx)
			}()

			tip := newTip(t, mech.GenesisProtocolState(), map[string]uint64{senderAddr: 1000},
				sign(t, senderPK, 1, toAddr, 100, 10))
			m.TipChanges() <- miner.TipChange{Tip: tip}

			var tw miner.TransitionWithWitness
			select {
			case tw = <-m.Transitions():
			case <-time.After(10 * time.Second):
				t.Fatalf("\t%s\tTest 0:\tShould emit a transition.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould emit a transition.", success)

			if tw.Transition.State.PreviousStateHash != tip.State.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould extend the tip it was given.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould extend the tip it was given.", success)

			if len(tw.Transactions) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould carry the bundled transactions, got %d.", failed, len(tw.Transactions))
			}
			t.Logf("\t%s\tTest 0:\tShould carry the bundled transactions.", success)

			st := prover.NewStatement(tip.Ledger.Hash(), tw.Transition.LedgerHash, ledger.TxHashes(tw.Transactions))
			if err := dp.Verify(st, tw.Transition.LedgerProof); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould carry a proof over the witnessed transition: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould carry a proof over the witnessed transition.", success)

			digest := consensus.HeaderDigest(tw.Transition.State, tw.Transition.Nonce)
			if !tip.State.Consensus.NextDifficulty.Meets(digest) {
				t.Fatalf("\t%s\tTest 0:\tShould carry a nonce that meets the difficulty.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould carry a nonce that meets the difficulty.", success)

			cancel()
			if err := <-runDone; !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest 0:\tShould stop when the context is cancelled, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould stop when the context is cancelled.", success)
		}
	}
}

func TestTipChangeRestarts(t *testing.T) {
	_, beneficiary := genKey(t)

	dp := prover.NewDevProver([]byte("test-proving-key"))
	mech := mechanism(t, beneficiary, consensus.MaxDifficulty())
	stuck := mechanism(t, beneficiary, consensus.MinDifficulty())

	t.Log("Given the need to validate restarting on a tip change.")
	{
		t.Logf("\tTest 0:\tWhen a new tip arrives during an attempt.")
		{
			m := newMiner(t, mech, dp, beneficiary)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go m.Run(ctx)

			first := newTip(t, stuck.GenesisProtocolState(), map[string]uint64{})
			m.TipChanges() <- miner.TipChange{Tip: first}

			second := newTip(t, mech.GenesisProtocolState(), map[string]uint64{})
			m.TipChanges() <- miner.TipChange{Tip: second}

			var tw miner.TransitionWithWitness
			select {
			case tw = <-m.Transitions():
			case <-time.After(10 * time.Second):
				t.Fatalf("\t%s\tTest 0:\tShould emit a transition for the new tip.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould emit a transition for the new tip.", success)

			if tw.Transition.State.PreviousStateHash != second.State.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould abandon the old tip and extend the new one.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould abandon the old tip and extend the new one.", success)
		}
	}
}

func TestFatalConditions(t *testing.T) {
	_, beneficiary := genKey(t)

	dp := prover.NewDevProver([]byte("test-proving-key"))
	mech := mechanism(t, beneficiary, consensus.MaxDifficulty())

	t.Log("Given the need to validate fatal shutdown conditions.")
	{
		t.Logf("\tTest 0:\tWhen the tip change stream closes.")
		{
			m := newMiner(t, mech, dp, beneficiary)

			runDone := make(chan error, 1)
			go func() {
				runDone <- m.Run(context.Background())
			}()

			close(m.TipChanges())

			select {
			case err := <-runDone:
				if !errors.Is(err, miner.ErrTipStreamClosed) {
					t.Fatalf("\t%s\tTest 0:\tShould report the closed stream, got %v.", failed, err)
				}
			case <-time.After(10 * time.Second):
				t.Fatalf("\t%s\tTest 0:\tShould stop when the stream closes.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould report the closed stream.", success)
		}

		t.Logf("\tTest 1:\tWhen no tip ever arrives and the context expires.")
		{
			m := newMiner(t, mech, dp, beneficiary)

			ctx, cancel := context.WithCancel(context.Background())
			runDone := make(chan error, 1)
			go func() {
				runDone <- m.Run(ctx)
			}()

			cancel()
			if err := <-runDone; !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest 1:\tShould stop with the context error, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould stop with the context error.", success)
		}
	}
}

func TestFailedBundleRestoresPool(t *testing.T) {
	senderPK, senderAddr := genKey(t)
	_, toAddr := genKey(t)
	_, beneficiary := genKey(t)

	mech := mechanism(t, beneficiary, consensus.MinDifficulty())

	t.Log("Given the need to validate the pool survives a failed attempt.")
	{
		t.Logf("\tTest 0:\tWhen the proving backend fails.")
		{
			fp := failingProver{started: make(chan struct{}), release: make(chan struct{})}
			m := newMiner(t, mech, &fp, beneficiary)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go m.Run(ctx)

			tip := newTip(t, mech.GenesisProtocolState(), map[string]uint64{senderAddr: 1000},
				sign(t, senderPK, 1, toAddr, 100, 10))
			m.TipChanges() <- miner.TipChange{Tip: tip}

			<-fp.started
			if got := tip.Pool.Count(); got != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould hand the transactions to the attempt, got %d pooled.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould hand the transactions to the attempt.", success)

			close(fp.release)

			deadline := time.Now().Add(10 * time.Second)
			for tip.Pool.Count() != 1 {
				if time.Now().After(deadline) {
					t.Fatalf("\t%s\tTest 0:\tShould restore the transactions to the pool.", failed)
				}
				time.Sleep(10 * time.Millisecond)
			}
			t.Logf("\t%s\tTest 0:\tShould restore the transactions to the pool.", success)
		}
	}
}
