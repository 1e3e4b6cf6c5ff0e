// Package state is the core API for the chain and implements all the
// business rules and processing. It owns the current tip, feeds tip changes
// into the mining coordinator, validates the transitions that come back or
// arrive from peers, and applies adopted transitions to the ledger.
package state

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/codachain/node/foundation/chain/archive"
	"github.com/codachain/node/foundation/chain/consensus"
	"github.com/codachain/node/foundation/chain/genesis"
	"github.com/codachain/node/foundation/chain/ledger"
	"github.com/codachain/node/foundation/chain/mempool"
	"github.com/codachain/node/foundation/chain/miner"
	"github.com/codachain/node/foundation/chain/prover"
)

// EventHandler defines a function that is called when events occur in the
// processing of adopting transitions.
type EventHandler func(v string, args ...any)

// =============================================================================

// Config represents the configuration required to start the chain
// controller.
type Config struct {
	PrivateKey     *ecdsa.PrivateKey
	ArchivePath    string
	SelectStrategy string
	Genesis        genesis.Genesis
	Consensus      consensus.Params
	Mechanism      string
	Prover         prover.Prover
	TxPerBundle    int
	EvHandler      EventHandler
}

// State manages the chain: the tip, the ledger, the pool, the archive and
// the mining coordinator.
type State struct {
	privateKey  *ecdsa.PrivateKey
	beneficiary string
	evHandler   EventHandler

	genesis genesis.Genesis
	mempool *mempool.Mempool
	ledger  *ledger.Ledger
	archive *archive.Archive
	prover  prover.Prover

	mechanism consensus.Mechanism
	local     *consensus.LocalState
	miner     *miner.Miner

	mu          sync.Mutex
	tip         consensus.ProtocolState
	tipReceived uint64
}

// New constructs the chain controller from the specified configuration.
func New(cfg Config) (*State, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	mp, err := mempool.NewWithStrategy(cfg.SelectStrategy)
	if err != nil {
		return nil, err
	}

	lgr := ledger.New(cfg.Genesis.Balances)

	arch, err := archive.New(cfg.ArchivePath)
	if err != nil {
		return nil, err
	}

	local := consensus.NewLocalState(cfg.Genesis.EpochSeed, cfg.Genesis.Balances)

	mech, err := consensus.New(cfg.Mechanism, cfg.Consensus, consensus.Deps{
		Ancestry: arch,
		Local:    local,
	})
	if err != nil {
		return nil, err
	}

	beneficiary := crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey).String()

	mnr, err := miner.New(miner.Config{
		Mechanism:   mech,
		Prover:      cfg.Prover,
		Beneficiary: beneficiary,
		TxPerBundle: cfg.TxPerBundle,
		EvHandler:   miner.EventHandler(ev),
	})
	if err != nil {
		return nil, err
	}

	s := State{
		privateKey:  cfg.PrivateKey,
		beneficiary: beneficiary,
		evHandler:   ev,
		genesis:     cfg.Genesis,
		mempool:     mp,
		ledger:      lgr,
		archive:     arch,
		prover:      cfg.Prover,
		mechanism:   mech,
		local:       local,
		miner:       mnr,
		tip:         mech.GenesisProtocolState(),
		tipReceived: uint64(time.Now().UnixNano()),
	}

	return &s, nil
}

// Shutdown cleanly brings the controller down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	return s.archive.Close()
}

// =============================================================================

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Beneficiary returns the address rewards accrue to on this node.
func (s *State) Beneficiary() string {
	return s.beneficiary
}

// MechanismName returns the name of the running consensus mechanism.
func (s *State) MechanismName() string {
	return s.mechanism.Name()
}

// Tip returns the protocol state currently at the head of the chain.
func (s *State) Tip() consensus.ProtocolState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tip
}

// Accounts returns the current information for all accounts.
func (s *State) Accounts() map[string]ledger.Info {
	return s.ledger.Copy()
}

// QueryAccount returns the information for the specified account.
func (s *State) QueryAccount(address string) (ledger.Info, error) {
	if !ledger.IsAddress(address) {
		return ledger.Info{}, fmt.Errorf("address %q is not properly formatted", address)
	}

	return s.ledger.Query(address), nil
}

// MempoolCount returns the number of transactions waiting in the pool.
func (s *State) MempoolCount() int {
	return s.mempool.Count()
}

// Mempool returns a copy of the transactions waiting in the pool.
func (s *State) Mempool() []ledger.Tx {
	return s.mempool.Copy()
}

// Transitions returns up to count archived transitions walking back from
// the tip, newest first.
func (s *State) Transitions(count int) ([]archive.Record, error) {
	tip := s.Tip()

	// Only adopted states are archived, not genesis, so the walk covers at
	// most the chain length.
	if length := int(tip.Consensus.Length); count > length {
		count = length
	}

	return s.archive.Ancestors(tip.Hash(), count)
}

// =============================================================================

// UpsertTransaction accepts a signed transaction into the pool after
// checking its signature and nonce, then nudges the miner with a fresh tip
// so the transaction is considered for the next bundle.
func (s *State) UpsertTransaction(tx ledger.Tx) error {
	if err := tx.VerifySignature(); err != nil {
		return err
	}

	if err := s.ledger.ValidateNonce(tx); err != nil {
		return err
	}

	n, err := s.mempool.Upsert(tx)
	if err != nil {
		return err
	}
	s.evHandler("state: upsert transaction: tx[%s] pool[%d]", tx, n)

	s.signalTipChange()

	return nil
}

// =============================================================================

// Run starts the mining coordinator, feeds it the initial tip, and
// processes the transitions it emits until the context is cancelled or the
// miner reports a fatal condition.
func (s *State) Run(ctx context.Context) error {
	s.evHandler("state: run: started")
	defer s.evHandler("state: run: completed")

	minerErrors := make(chan error, 1)
	go func() {
		minerErrors <- s.miner.Run(ctx)
	}()

	s.signalTipChange()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-minerErrors:
			return err

		case tw := <-s.miner.Transitions():
			if err := s.adoptMined(tw); err != nil {
				s.evHandler("state: run: adopt mined: ERROR: %s", err)
			}
		}
	}
}

// signalTipChange hands the miner the current tip with the live ledger and
// pool. The bundle builder works on a clone of the ledger, and each attempt
// takes its transactions out of the pool when it starts.
func (s *State) signalTipChange() {
	s.miner.TipChanges() <- miner.TipChange{Tip: miner.Tip{
		State:  s.Tip(),
		Ledger: s.ledger,
		Pool:   s.mempool,
	}}
}

// =============================================================================

// adoptMined attaches the mechanism's evidence to a transition this node
// mined and runs it through the same adoption path a peer transition takes.
func (s *State) adoptMined(tw miner.TransitionWithWitness) error {
	tip := s.Tip()

	proposal, err := s.mechanism.GenerateTransition(consensus.GenerateInput{
		Previous:     tip,
		Blockchain:   consensus.BlockchainState{LedgerHash: tw.Transition.LedgerHash, Timestamp: tw.Transition.Timestamp},
		Local:        s.local,
		Time:         tw.Transition.Timestamp,
		PrivateKey:   s.privateKey,
		Transactions: ledger.TxHashes(tw.Transactions),
	})
	if err != nil {
		return err
	}
	if proposal == nil {
		return fmt.Errorf("not eligible to propose at time %d", tw.Transition.Timestamp)
	}

	rec := archive.Record{
		State:        proposal.State,
		Data:         proposal.Data,
		Nonce:        tw.Transition.Nonce,
		LedgerProof:  tw.Transition.LedgerProof,
		Transactions: tw.Transactions,
	}

	return s.ProcessTransition(rec)
}

// ProcessTransition validates a transition against the current tip, runs
// fork choice, and adopts it when it wins. Invalid transitions are dropped
// with an error, the tip never moves to a state that fails validation.
func (s *State) ProcessTransition(rec archive.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tipHash := s.tip.Hash()

	// The transition must extend the current tip.
	if rec.State.PreviousStateHash != tipHash {
		return fmt.Errorf("transition extends %s, tip is %s", rec.State.PreviousStateHash, tipHash)
	}
	if rec.State.Consensus.PreviousStateHash != tipHash {
		return fmt.Errorf("consensus state does not link to the tip")
	}

	t := consensus.SnarkTransition{
		Blockchain:        rec.State.Blockchain,
		PreviousStateHash: rec.State.PreviousStateHash,
		ConsensusData:     rec.Data,
	}

	if !s.mechanism.IsTransitionValidChecked(s.tip.Consensus, t) {
		return fmt.Errorf("transition evidence does not validate")
	}

	next := s.mechanism.NextStateChecked(s.tip.Consensus, rec.State.PreviousStateHash, t)
	if next.Hash() != rec.State.Consensus.Hash() {
		return fmt.Errorf("consensus state does not match the transition function")
	}

	digest := consensus.HeaderDigest(rec.State.Consensus, rec.Nonce)
	if !s.tip.Consensus.NextDifficulty.Meets(digest) {
		return fmt.Errorf("header digest does not meet the difficulty target")
	}

	statement := prover.NewStatement(s.ledger.Hash(), rec.State.Blockchain.LedgerHash, ledger.TxHashes(rec.Transactions))
	if err := s.prover.Verify(statement, rec.LedgerProof); err != nil {
		return fmt.Errorf("ledger proof does not verify: %w", err)
	}

	choice := s.mechanism.Select(
		consensus.Candidate{State: s.tip.Consensus, TimeReceived: s.tipReceived},
		consensus.Candidate{State: rec.State.Consensus, TimeReceived: uint64(time.Now().UnixNano())},
	)
	if choice == consensus.Keep {
		return fmt.Errorf("fork choice kept the current tip")
	}

	// Apply against a clone so a mismatch cannot corrupt the ledger. The
	// proof statement and the state bind the pre-reward ledger, the
	// coinbase lands after the hash check.
	proposer := s.transitionProposer(rec)
	work := s.ledger.Clone()
	for _, tx := range rec.Transactions {
		if err := work.ApplyTransaction(proposer, tx); err != nil {
			return fmt.Errorf("apply tx[%s]: %w", tx, err)
		}
	}

	if hash := work.Hash(); hash != rec.State.Blockchain.LedgerHash {
		return fmt.Errorf("ledger hash mismatch, got %s, exp %s", hash, rec.State.Blockchain.LedgerHash)
	}
	work.ApplyProposerReward(proposer, s.genesis.Coinbase)

	if err := s.archive.Write(rec); err != nil {
		return fmt.Errorf("archive transition: %w", err)
	}

	s.ledger.Replace(work)
	for _, tx := range rec.Transactions {
		s.mempool.Delete(tx)
	}

	old := s.tip.Consensus
	s.tip = rec.State
	s.tipReceived = uint64(time.Now().UnixNano())

	s.mechanism.LockTransition(old, s.tip.Consensus, s.ledger, s.local)

	s.evHandler("state: process transition: adopted: length[%d] ledgerHash[%s]", s.tip.Consensus.Length, s.tip.Consensus.LedgerHash)

	go s.signalTipChange()

	return nil
}

// transitionProposer recovers the address rewards for this transition
// accrue to.
func (s *State) transitionProposer(rec archive.Record) string {
	if rec.Data.ProposerPubKey != "" {
		if addr, err := proposerAddress(rec.Data.ProposerPubKey); err == nil {
			return addr
		}
	}

	if s.mechanism.Name() == consensus.ProofOfSignature {
		return s.genesis.Proposer
	}

	return s.beneficiary
}

// proposerAddress converts a compressed hex public key into its address.
func proposerAddress(pubKey string) (string, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(pubKey, "0x"))
	if err != nil {
		return "", err
	}

	key, err := crypto.DecompressPubkey(data)
	if err != nil {
		return "", err
	}

	return crypto.PubkeyToAddress(*key).String(), nil
}
