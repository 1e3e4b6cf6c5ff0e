package consensus

import (
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/codachain/node/foundation/chain/signature"
)

// signatureMechanism implements proof of signature: the holder of a single
// designated key proposes transitions on a fixed interval, and fork choice
// is by accumulated strength, with receipt time breaking ties.
type signatureMechanism struct {
	params Params
}

func newSignatureMechanism(p Params) *signatureMechanism {
	return &signatureMechanism{params: p}
}

// Name returns the registry name of the mechanism.
func (m *signatureMechanism) Name() string {
	return ProofOfSignature
}

// GenesisProtocolState returns the protocol state the chain starts from.
func (m *signatureMechanism) GenesisProtocolState() ProtocolState {
	ts := Timestamp(m.params.GenesisStateTimestamp.UTC().UnixMilli())

	return ProtocolState{
		PreviousStateHash: signature.ZeroHash,
		Blockchain: BlockchainState{
			LedgerHash: m.params.GenesisLedgerHash,
			Timestamp:  ts,
		},
		Consensus: State{
			NextDifficulty:    m.params.InitialDifficulty,
			PreviousStateHash: signature.ZeroHash,
			LedgerHash:        m.params.GenesisLedgerHash,
			Strength:          ZeroStrength(),
			Timestamp:         ts,
			Length:            0,
		},
	}
}

// signedContent is the value the designated proposer signs.
type signedContent struct {
	PreviousStateHash string          `json:"previous_state_hash"`
	Blockchain        BlockchainState `json:"blockchain_state"`
}

// GenerateTransition produces a transition when the caller holds the
// designated key and the proposal interval has elapsed. It returns nil when
// the caller is not eligible.
func (m *signatureMechanism) GenerateTransition(in GenerateInput) (*Proposal, error) {
	addr := crypto.PubkeyToAddress(in.PrivateKey.PublicKey).String()
	if addr != m.params.Proposer {
		return nil, nil
	}

	elapsed := int64(in.Time) - int64(in.Previous.Consensus.Timestamp)
	if elapsed < m.params.ProposalInterval.Milliseconds() {
		return nil, nil
	}

	prevStateHash := in.Previous.Hash()

	content := signedContent{
		PreviousStateHash: prevStateHash,
		Blockchain:        in.Blockchain,
	}
	v, r, s, err := signature.Sign(content, in.PrivateKey)
	if err != nil {
		return nil, err
	}

	data := TransitionData{Signature: signature.String(v, r, s)}

	transition := SnarkTransition{
		Blockchain:        in.Blockchain,
		PreviousStateHash: prevStateHash,
		ConsensusData:     data,
	}

	proposal := Proposal{
		State: ProtocolState{
			PreviousStateHash: prevStateHash,
			Blockchain:        in.Blockchain,
			Consensus:         m.NextStateChecked(in.Previous.Consensus, prevStateHash, transition),
		},
		Data: data,
	}

	return &proposal, nil
}

// IsTransitionValidChecked verifies the proposer signature against the
// designated key.
func (m *signatureMechanism) IsTransitionValidChecked(prev State, t SnarkTransition) bool {
	v, r, s, err := signature.FromHex(t.ConsensusData.Signature)
	if err != nil {
		return false
	}

	if err := signature.VerifyValues(v, r, s); err != nil {
		return false
	}

	content := signedContent{
		PreviousStateHash: t.PreviousStateHash,
		Blockchain:        t.Blockchain,
	}
	addr, err := signature.FromAddress(content, v, r, s)
	if err != nil {
		return false
	}

	return addr == m.params.Proposer
}

// NextStateChecked is the deterministic transition function.
func (m *signatureMechanism) NextStateChecked(prev State, prevStateHash string, t SnarkTransition) State {
	return extendBase(prev, prevStateHash, t.Blockchain.LedgerHash, t.Blockchain.Timestamp)
}

// Extend produces the candidate state a hashing worker mines against.
func (m *signatureMechanism) Extend(prev ProtocolState, nextLedgerHash string, now Timestamp) State {
	t := SnarkTransition{
		Blockchain: BlockchainState{LedgerHash: nextLedgerHash, Timestamp: now},
	}

	return m.NextStateChecked(prev.Consensus, prev.Hash(), t)
}

// Select prefers the stronger chain. On equal strength the earlier received
// candidate wins, which keeps the current tip on a true tie.
func (m *signatureMechanism) Select(a, b Candidate) Choice {
	switch a.State.Strength.Cmp(b.State.Strength) {
	case -1:
		return Take
	case 1:
		return Keep
	}

	if b.TimeReceived < a.TimeReceived {
		return Take
	}

	return Keep
}

// LockTransition is a no-op, proof of signature carries no local state.
func (m *signatureMechanism) LockTransition(old, next State, snarkedLedger StakeSource, ls *LocalState) {
}
