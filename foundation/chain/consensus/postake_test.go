package consensus_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/codachain/node/foundation/chain/consensus"
	"github.com/codachain/node/foundation/chain/signature"
)

func stakeParams() consensus.Params {
	return consensus.Params{
		SlotInterval:                    3 * time.Second,
		UnforkableTransitionCount:       2,
		ProbableSlotsPerTransitionCount: 8,
		GenesisStateTimestamp:           time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		Coinbase:                        600,
		GenesisLedgerHash:               signature.Hash("genesis ledger"),
		InitialDifficulty:               consensus.MaxDifficulty(),
		TotalCurrency:                   1000,
	}
}

func TestProofOfStakeGenerate(t *testing.T) {
	pk, err := crypto.HexToECDSA(proposerKeyHex)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the staker key: %s", failed, err)
	}
	staker := crypto.PubkeyToAddress(pk.PublicKey).String()

	local := consensus.NewLocalState(signature.Hash("seed"), map[string]uint64{staker: 1000})

	mech, err := consensus.New(consensus.ProofOfStake, stakeParams(), consensus.Deps{Local: local})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the mechanism: %s", failed, err)
	}

	gen := mech.GenesisProtocolState()
	ledgerHash := signature.Hash("next ledger")

	t.Log("Given the need to validate proof of stake proposals.")
	{
		t.Logf("\tTest 0:\tWhen a staker holding all the currency reaches slot one.")
		{
			now := gen.Consensus.Timestamp + 3_000

			proposal, err := mech.GenerateTransition(consensus.GenerateInput{
				Previous:   gen,
				Blockchain: consensus.BlockchainState{LedgerHash: ledgerHash, Timestamp: now},
				Local:      local,
				Time:       now,
				PrivateKey: pk,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to generate a transition: %s", failed, err)
			}
			if proposal == nil {
				t.Fatalf("\t%s\tTest 0:\tShould win the lottery with the full stake.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould win the lottery with the full stake.", success)

			if proposal.Data.Slot != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould propose for slot 1, got %d.", failed, proposal.Data.Slot)
			}
			t.Logf("\t%s\tTest 0:\tShould propose for slot 1.", success)

			if proposal.State.Consensus.TotalCurrency != 1600 {
				t.Fatalf("\t%s\tTest 0:\tShould fold the coinbase into the total currency, got %d.", failed, proposal.State.Consensus.TotalCurrency)
			}
			t.Logf("\t%s\tTest 0:\tShould fold the coinbase into the total currency.", success)

			transition := consensus.SnarkTransition{
				Blockchain:        proposal.State.Blockchain,
				PreviousStateHash: proposal.State.PreviousStateHash,
				ConsensusData:     proposal.Data,
			}
			if !mech.IsTransitionValidChecked(gen.Consensus, transition) {
				t.Fatalf("\t%s\tTest 0:\tShould produce a transition that validates.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould produce a transition that validates.", success)

			transition.ConsensusData.VRFOutput = signature.Hash("forged")
			if mech.IsTransitionValidChecked(gen.Consensus, transition) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a forged VRF output.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a forged VRF output.", success)
		}

		t.Logf("\tTest 1:\tWhen the slot has not advanced past the previous state.")
		{
			now := gen.Consensus.Timestamp + 1_000

			proposal, err := mech.GenerateTransition(consensus.GenerateInput{
				Previous:   gen,
				Blockchain: consensus.BlockchainState{LedgerHash: ledgerHash, Timestamp: now},
				Local:      local,
				Time:       now,
				PrivateKey: pk,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould not error when ineligible: %s", failed, err)
			}
			if proposal != nil {
				t.Fatalf("\t%s\tTest 1:\tShould not propose inside the current slot.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould not propose inside the current slot.", success)
		}

		t.Logf("\tTest 2:\tWhen a key without stake tries to propose.")
		{
			stranger, err := crypto.HexToECDSA(strangerKeyHex)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to parse the stranger key: %s", failed, err)
			}

			now := gen.Consensus.Timestamp + 3_000
			proposal, err := mech.GenerateTransition(consensus.GenerateInput{
				Previous:   gen,
				Blockchain: consensus.BlockchainState{LedgerHash: ledgerHash, Timestamp: now},
				Local:      local,
				Time:       now,
				PrivateKey: stranger,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould not error when ineligible: %s", failed, err)
			}
			if proposal != nil {
				t.Fatalf("\t%s\tTest 2:\tShould not allow a zero stake key to propose.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould not allow a zero stake key to propose.", success)
		}
	}
}

func TestProofOfStakeSelect(t *testing.T) {
	local := consensus.NewLocalState(signature.Hash("seed"), map[string]uint64{})

	mech, err := consensus.New(consensus.ProofOfStake, stakeParams(), consensus.Deps{Local: local})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the mechanism: %s", failed, err)
	}

	short := consensus.State{Length: 3, Strength: consensus.ZeroStrength()}
	long := consensus.State{Length: 4, Strength: consensus.ZeroStrength()}
	lowVRF := consensus.State{Length: 3, Strength: consensus.ZeroStrength(), LastVRFOutput: "0x01"}
	highVRF := consensus.State{Length: 3, Strength: consensus.ZeroStrength(), LastVRFOutput: "0x02"}

	type table struct {
		name   string
		tip    consensus.Candidate
		cand   consensus.Candidate
		choice consensus.Choice
	}

	tt := []table{
		{name: "longer chain", tip: consensus.Candidate{State: short, TimeReceived: 1}, cand: consensus.Candidate{State: long, TimeReceived: 2}, choice: consensus.Take},
		{name: "shorter chain", tip: consensus.Candidate{State: long, TimeReceived: 1}, cand: consensus.Candidate{State: short, TimeReceived: 2}, choice: consensus.Keep},
		{name: "vrf breaks length tie", tip: consensus.Candidate{State: lowVRF, TimeReceived: 1}, cand: consensus.Candidate{State: highVRF, TimeReceived: 2}, choice: consensus.Take},
		{name: "full tie keeps tip", tip: consensus.Candidate{State: short, TimeReceived: 1}, cand: consensus.Candidate{State: short, TimeReceived: 2}, choice: consensus.Keep},
	}

	t.Log("Given the need to validate fork choice under proof of stake.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen comparing %s.", testID, tst.name)
			{
				f := func(t *testing.T) {
					if got := mech.Select(tst.tip, tst.cand); got != tst.choice {
						t.Fatalf("\t%s\tTest %d:\tShould choose %s, got %s.", failed, testID, tst.choice, got)
					}
					t.Logf("\t%s\tTest %d:\tShould choose %s.", success, testID, tst.choice)
				}

				t.Run(tst.name, f)
			}
		}
	}
}
