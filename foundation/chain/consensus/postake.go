package consensus

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"

	"github.com/codachain/node/foundation/chain/signature"
)

// stakeMechanism implements proof of stake: the chain is partitioned into
// slots grouped into epochs, and at each slot a participant is eligible to
// propose when a VRF over the epoch seed and their frozen stake falls below
// their share of the total currency.
type stakeMechanism struct {
	params   Params
	ancestry Ancestry
	local    *LocalState
}

func newStakeMechanism(p Params, deps Deps) *stakeMechanism {
	return &stakeMechanism{
		params:   p,
		ancestry: deps.Ancestry,
		local:    deps.Local,
	}
}

// Name returns the registry name of the mechanism.
func (m *stakeMechanism) Name() string {
	return ProofOfStake
}

// slotsPerEpoch returns the epoch length in slots.
func (m *stakeMechanism) slotsPerEpoch() uint64 {
	return m.params.ProbableSlotsPerTransitionCount * m.params.UnforkableTransitionCount
}

// globalSlot returns the number of whole slot intervals elapsed since the
// genesis timestamp. Times before genesis land in slot zero.
func (m *stakeMechanism) globalSlot(ts Timestamp) uint64 {
	genesis := m.params.GenesisStateTimestamp.UTC().UnixMilli()
	elapsed := int64(ts) - genesis
	if elapsed < 0 {
		return 0
	}

	return uint64(elapsed) / uint64(m.params.SlotInterval.Milliseconds())
}

// globalSlotOf reconstructs the global slot from a state's epoch and slot.
func (m *stakeMechanism) globalSlotOf(s State) uint64 {
	return s.Epoch*m.slotsPerEpoch() + s.Slot
}

// GenesisProtocolState returns the protocol state the chain starts from.
func (m *stakeMechanism) GenesisProtocolState() ProtocolState {
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
			Epoch:             0,
			Slot:              0,
			TotalCurrency:     m.params.TotalCurrency,
			LastVRFOutput:     signature.ZeroHash,
		},
	}
}

// GenerateTransition produces a transition when the caller wins the VRF
// lottery for the current slot. It returns nil when the caller is not
// eligible.
func (m *stakeMechanism) GenerateTransition(in GenerateInput) (*Proposal, error) {
	local := in.Local
	if local == nil {
		local = m.local
	}

	slot := m.globalSlot(in.Time)
	if slot <= m.globalSlotOf(in.Previous.Consensus) {
		return nil, nil
	}

	addr := crypto.PubkeyToAddress(in.PrivateKey.PublicKey).String()
	stake, total := local.Stake(addr)

	pubKey := "0x" + hex.EncodeToString(crypto.CompressPubkey(&in.PrivateKey.PublicKey))

	vrf := evaluateVRF(local.EpochSeed(), slot, pubKey, stake)
	if !eligible(vrf, stake, total) {
		return nil, nil
	}

	prevStateHash := in.Previous.Hash()

	data := TransitionData{
		Slot:           slot,
		VRFOutput:      vrf,
		ProposerPubKey: pubKey,
	}

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

// IsTransitionValidChecked recomputes the VRF from the frozen distribution
// and checks the slot advanced past the previous state.
func (m *stakeMechanism) IsTransitionValidChecked(prev State, t SnarkTransition) bool {
	if t.ConsensusData.Slot <= m.globalSlotOf(prev) {
		return false
	}

	pubKeyData, err := hex.DecodeString(strings.TrimPrefix(t.ConsensusData.ProposerPubKey, "0x"))
	if err != nil {
		return false
	}
	pubKey, err := crypto.DecompressPubkey(pubKeyData)
	if err != nil {
		return false
	}

	addr := crypto.PubkeyToAddress(*pubKey).String()
	stake, total := m.local.Stake(addr)

	vrf := evaluateVRF(m.local.EpochSeed(), t.ConsensusData.Slot, t.ConsensusData.ProposerPubKey, stake)
	if vrf != t.ConsensusData.VRFOutput {
		return false
	}

	return eligible(vrf, stake, total)
}

// NextStateChecked is the deterministic transition function.
func (m *stakeMechanism) NextStateChecked(prev State, prevStateHash string, t SnarkTransition) State {
	next := extendBase(prev, prevStateHash, t.Blockchain.LedgerHash, t.Blockchain.Timestamp)

	spe := m.slotsPerEpoch()
	next.Epoch = t.ConsensusData.Slot / spe
	next.Slot = t.ConsensusData.Slot % spe
	next.TotalCurrency = prev.TotalCurrency + m.params.Coinbase
	next.LastVRFOutput = t.ConsensusData.VRFOutput

	return next
}

// Extend produces the candidate state a hashing worker mines against. The
// VRF evidence is attached by the proposer, not the nonce search, so the
// candidate carries an empty output.
func (m *stakeMechanism) Extend(prev ProtocolState, nextLedgerHash string, now Timestamp) State {
	t := SnarkTransition{
		Blockchain: BlockchainState{LedgerHash: nextLedgerHash, Timestamp: now},
		ConsensusData: TransitionData{
			Slot: m.globalSlot(now),
		},
	}

	return m.NextStateChecked(prev.Consensus, prev.Hash(), t)
}

// Select decides fork choice. Within an epoch the longer chain wins, with
// strength, VRF output and receipt time breaking ties. Across epochs the
// tip whose finalized history the other still extends is preferred.
func (m *stakeMechanism) Select(a, b Candidate) Choice {
	if a.State.Epoch != b.State.Epoch && m.ancestry != nil {
		depth := m.params.UnforkableTransitionCount

		if fa, ok := m.ancestry.FinalizedAncestor(a.State.Hash(), depth); ok {
			if m.ancestry.HasAncestor(b.State.Hash(), fa) {
				return Keep
			}
		}
		if fb, ok := m.ancestry.FinalizedAncestor(b.State.Hash(), depth); ok {
			if m.ancestry.HasAncestor(a.State.Hash(), fb) {
				return Take
			}
		}
	}

	switch {
	case b.State.Length > a.State.Length:
		return Take
	case b.State.Length < a.State.Length:
		return Keep
	}

	switch a.State.Strength.Cmp(b.State.Strength) {
	case -1:
		return Take
	case 1:
		return Keep
	}

	switch {
	case b.State.LastVRFOutput > a.State.LastVRFOutput:
		return Take
	case b.State.LastVRFOutput < a.State.LastVRFOutput:
		return Keep
	}

	if b.TimeReceived < a.TimeReceived {
		return Take
	}

	return Keep
}

// LockTransition freezes the stake distribution and refreshes the epoch
// seed when a locked-in tip crosses an epoch boundary.
func (m *stakeMechanism) LockTransition(old, next State, snarkedLedger StakeSource, ls *LocalState) {
	if next.Epoch <= old.Epoch {
		return
	}

	seed := nextEpochSeed(ls.EpochSeed(), next.LastVRFOutput)
	ls.freeze(next.Epoch, seed, snarkedLedger.Stakes(), snarkedLedger.Total())
}

// =============================================================================

// evaluateVRF computes the verifiable random function output for a slot.
// The output is a blake2b digest over the epoch seed, the slot, the
// participant key and the participant stake.
func evaluateVRF(epochSeed string, slot uint64, pubKey string, stake uint64) string {
	seed := signature.ToBytes(epochSeed)

	var slotBuf [8]byte
	binary.BigEndian.PutUint64(slotBuf[:], slot)

	var stakeBuf [8]byte
	binary.BigEndian.PutUint64(stakeBuf[:], stake)

	keyData, err := hex.DecodeString(strings.TrimPrefix(pubKey, "0x"))
	if err != nil {
		keyData = nil
	}

	data := make([]byte, 0, len(seed)+len(slotBuf)+len(keyData)+len(stakeBuf))
	data = append(data, seed[:]...)
	data = append(data, slotBuf[:]...)
	data = append(data, keyData...)
	data = append(data, stakeBuf[:]...)

	digest := blake2b.Sum256(data)
	return "0x" + hex.EncodeToString(digest[:])
}

// nextEpochSeed folds the last VRF output of the closing epoch into the
// running seed.
func nextEpochSeed(seed string, lastVRF string) string {
	prev := signature.ToBytes(seed)
	last := signature.ToBytes(lastVRF)

	digest := blake2b.Sum256(append(prev[:], last[:]...))
	return "0x" + hex.EncodeToString(digest[:])
}

// eligible reports whether the VRF output, read as a fraction of the digest
// space, falls below the participant's share of the total currency.
func eligible(vrf string, stake uint64, total uint64) bool {
	if stake == 0 || total == 0 {
		return false
	}

	digest := signature.ToBytes(vrf)
	out := new(big.Int).SetBytes(digest[:])

	// out / 2^256 < stake / total, rearranged to avoid division.
	space := new(big.Int).Lsh(big.NewInt(1), 256)

	lhs := new(big.Int).Mul(out, new(big.Int).SetUint64(total))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(stake), space)

	return lhs.Cmp(rhs) < 0
}
