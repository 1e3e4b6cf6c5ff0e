package consensus

import (
	"time"

	"github.com/codachain/node/foundation/chain/signature"
)

// Timestamp is a moment in chain time expressed as milliseconds since the
// Unix epoch.
type Timestamp uint64

// Now returns the current chain time.
func Now() Timestamp {
	return Timestamp(time.Now().UTC().UnixMilli())
}

// Time converts the timestamp back into wall clock time.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// =============================================================================

// State is the head-of-chain summary every transition carries and fork
// choice depends on. The proof-of-signature mechanism uses the first group
// of fields; proof-of-stake additionally maintains the epoch group, which
// stays zero valued under proof-of-signature.
type State struct {
	NextDifficulty    Difficulty `json:"next_difficulty"`
	PreviousStateHash string     `json:"previous_state_hash"`
	LedgerHash        string     `json:"ledger_hash"`
	Strength          Strength   `json:"strength"`
	Timestamp         Timestamp  `json:"timestamp"`
	Length            uint64     `json:"length"`

	// Epoch group, proof of stake only.
	Epoch         uint64 `json:"epoch"`
	Slot          uint64 `json:"slot"`
	TotalCurrency uint64 `json:"total_currency"`
	LastVRFOutput string `json:"last_vrf_output"`
}

// Hash returns the unique hash for the consensus state.
func (s State) Hash() string {
	return signature.Hash(s)
}

// =============================================================================

// BlockchainState carries the ledger facing portion of a protocol state.
type BlockchainState struct {
	LedgerHash string    `json:"ledger_hash"`
	Timestamp  Timestamp `json:"timestamp"`
}

// ProtocolState is the full per-transition state. Its hash is the parent
// link recorded by the next transition.
type ProtocolState struct {
	PreviousStateHash string          `json:"previous_state_hash"`
	Blockchain        BlockchainState `json:"blockchain_state"`
	Consensus         State           `json:"consensus_state"`
}

// Hash returns the unique hash for the protocol state.
func (ps ProtocolState) Hash() string {
	return signature.Hash(ps)
}

// =============================================================================

// TransitionData is the variant specific evidence attached to a transition.
// Proof of signature populates the signature group, proof of stake the
// slot group.
type TransitionData struct {
	// Signature over (previous_state_hash, blockchain_state), hex encoded
	// in [R|S|V] form.
	Signature string `json:"signature,omitempty"`

	// Slot group.
	Slot           uint64 `json:"slot,omitempty"`
	VRFOutput      string `json:"vrf_output,omitempty"`
	ProposerPubKey string `json:"proposer_pub_key,omitempty"`
}

// SnarkTransition is the statement shape handed to the proving backend for
// a single transition.
type SnarkTransition struct {
	Blockchain        BlockchainState `json:"blockchain_state"`
	PreviousStateHash string          `json:"previous_state_hash"`
	ConsensusData     TransitionData  `json:"consensus_transition_data"`
	Proof             string          `json:"proof"`
}

// =============================================================================

// header is the value hashed during the nonce search. Hashing the summary
// and not the transaction payload keeps header-only validation possible.
type header struct {
	State State `json:"state"`
	Nonce Nonce `json:"nonce"`
}

// HeaderDigest returns the digest of a candidate state and nonce pair. This
// is the value compared against the difficulty target.
func HeaderDigest(s State, n Nonce) string {
	return signature.Hash(header{State: s, Nonce: n})
}
