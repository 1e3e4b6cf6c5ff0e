// Package consensus implements the consensus mechanism behind transition
// production and fork choice. Two mechanisms are provided, selected once at
// startup: proof of signature, where a single designated key is allowed to
// propose, and proof of stake, where a verifiable random function run over
// the stake distribution elects proposers per slot.
package consensus

import (
	"crypto/ecdsa"
	"fmt"
	"time"
)

// Mechanism names recognized by the registry. These are the values accepted
// for the CODA_CONSENSUS_MECHANISM setting.
const (
	ProofOfSignature = "PROOF_OF_SIGNATURE"
	ProofOfStake     = "PROOF_OF_STAKE"
)

// Choice is the outcome of fork choice between the current tip and a
// candidate.
type Choice int

// Keep retains the current tip, Take adopts the candidate.
const (
	Keep Choice = iota
	Take
)

// String implements the fmt.Stringer interface.
func (c Choice) String() string {
	if c == Take {
		return "take"
	}
	return "keep"
}

// =============================================================================

// Params carries the consensus parameters fixed at startup.
type Params struct {
	ProposalInterval                time.Duration
	SlotInterval                    time.Duration
	UnforkableTransitionCount       uint64
	ProbableSlotsPerTransitionCount uint64
	ExpectedNetworkDelay            time.Duration
	ApproximateNetworkDiameter      uint64
	GenesisStateTimestamp           time.Time
	Coinbase                        uint64

	// Chain identity shared by both mechanisms.
	GenesisLedgerHash string
	InitialDifficulty Difficulty
	TotalCurrency     uint64

	// Proposer is the address of the designated signing key. Only used by
	// proof of signature.
	Proposer string
}

// Candidate pairs a consensus state with the local time it was first
// observed. Receipt times break ties in fork choice.
type Candidate struct {
	State        State
	TimeReceived uint64
}

// GenerateInput carries everything a proposer needs to attempt a transition.
type GenerateInput struct {
	Previous     ProtocolState
	Blockchain   BlockchainState
	Local        *LocalState
	Time         Timestamp
	PrivateKey   *ecdsa.PrivateKey
	Transactions []string
}

// Proposal is a successfully generated transition.
type Proposal struct {
	State ProtocolState
	Data  TransitionData
}

// StakeSource provides the stake distribution frozen when an epoch locks.
type StakeSource interface {
	Hash() string
	Stakes() map[string]uint64
	Total() uint64
}

// Ancestry reports chain ancestry. Fork choice across epochs needs to know
// whether one tip's finalized history is a prefix of the other.
type Ancestry interface {
	FinalizedAncestor(tipHash string, depth uint64) (string, bool)
	HasAncestor(tipHash string, ancestorHash string) bool
}

// =============================================================================

// Mechanism is the contract every consensus variant satisfies. A mechanism
// is selected once at startup and treated as immutable afterwards.
type Mechanism interface {

	// Name returns the registry name of the mechanism.
	Name() string

	// GenesisProtocolState returns the protocol state every chain under
	// this mechanism starts from.
	GenesisProtocolState() ProtocolState

	// GenerateTransition attempts to produce a transition at the given
	// time. It returns nil when the caller is not eligible to propose.
	GenerateTransition(in GenerateInput) (*Proposal, error)

	// IsTransitionValidChecked verifies the variant specific evidence on a
	// transition. It is the in-circuit validity predicate.
	IsTransitionValidChecked(prev State, t SnarkTransition) bool

	// NextStateChecked is the deterministic in-circuit transition function.
	NextStateChecked(prev State, prevStateHash string, t SnarkTransition) State

	// Extend produces the candidate state a hashing worker mines against.
	// It agrees with NextStateChecked on all inputs.
	Extend(prev ProtocolState, nextLedgerHash string, now Timestamp) State

	// Select decides fork choice between the current tip a and candidate b.
	Select(a, b Candidate) Choice

	// LockTransition updates mechanism local state when a locked-in tip
	// advances.
	LockTransition(old, next State, snarkedLedger StakeSource, ls *LocalState)
}

// =============================================================================

// Deps carries the collaborators a mechanism may need. Proof of signature
// uses none of them.
type Deps struct {
	Ancestry Ancestry
	Local    *LocalState
}

// New constructs the mechanism registered under the specified name.
func New(name string, p Params, deps Deps) (Mechanism, error) {
	switch name {
	case ProofOfSignature:
		return newSignatureMechanism(p), nil
	case ProofOfStake:
		return newStakeMechanism(p, deps), nil
	}

	return nil, fmt.Errorf("consensus mechanism %q does not exist", name)
}

// =============================================================================

// extendBase computes the mechanism independent portion of a successor
// state. Both mechanisms derive difficulty, strength, linkage and length
// the same way.
func extendBase(prev State, prevStateHash string, ledgerHash string, now Timestamp) State {
	return State{
		NextDifficulty:    prev.NextDifficulty.Next(prev.Timestamp, now),
		PreviousStateHash: prevStateHash,
		LedgerHash:        ledgerHash,
		Strength:          prev.Strength.Increase(prev.NextDifficulty),
		Timestamp:         now,
		Length:            prev.Length + 1,
	}
}
