package prover_test

import (
	"context"
	"testing"

	"github.com/codachain/node/foundation/chain/prover"
	"github.com/codachain/node/foundation/chain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestDevProver(t *testing.T) {
	st := prover.NewStatement(
		signature.Hash("source"),
		signature.Hash("target"),
		[]string{signature.Hash("tx1"), signature.Hash("tx2")},
	)

	dp := prover.NewDevProver([]byte("test-proving-key"))

	t.Log("Given the need to validate the development proving backend.")
	{
		t.Logf("\tTest 0:\tWhen proving and verifying a statement.")
		{
			proof, err := dp.Prove(context.Background(), st)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to produce a proof: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to produce a proof.", success)

			if proof.Backend != prover.DevBackend {
				t.Fatalf("\t%s\tTest 0:\tShould carry the development backend name, got %q.", failed, proof.Backend)
			}
			t.Logf("\t%s\tTest 0:\tShould carry the development backend name.", success)

			if err := dp.Verify(st, proof); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould verify against the statement: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould verify against the statement.", success)
		}

		t.Logf("\tTest 1:\tWhen the statement changes after proving.")
		{
			proof, err := dp.Prove(context.Background(), st)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to produce a proof: %s", failed, err)
			}

			other := st
			other.TargetLedgerHash = signature.Hash("tampered")

			if err := dp.Verify(other, proof); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould reject a proof over a different statement.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould reject a proof over a different statement.", success)
		}

		t.Logf("\tTest 2:\tWhen the proof is tampered with.")
		{
			proof, err := dp.Prove(context.Background(), st)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to produce a proof: %s", failed, err)
			}

			flipped := []byte(proof.Data)
			if flipped[2] == 'f' {
				flipped[2] = '0'
			} else {
				flipped[2] = 'f'
			}
			proof.Data = string(flipped)

			if err := dp.Verify(st, proof); err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould reject a tampered proof.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould reject a tampered proof.", success)
		}

		t.Logf("\tTest 3:\tWhen the proof names a different backend.")
		{
			proof, err := dp.Prove(context.Background(), st)
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to produce a proof: %s", failed, err)
			}

			proof.Backend = "snark"
			if err := dp.Verify(st, proof); err == nil {
				t.Fatalf("\t%s\tTest 3:\tShould reject an unknown backend.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould reject an unknown backend.", success)
		}

		t.Logf("\tTest 4:\tWhen a different key verifies the proof.")
		{
			proof, err := dp.Prove(context.Background(), st)
			if err != nil {
				t.Fatalf("\t%s\tTest 4:\tShould be able to produce a proof: %s", failed, err)
			}

			other := prover.NewDevProver([]byte("other-proving-key"))
			if err := other.Verify(st, proof); err == nil {
				t.Fatalf("\t%s\tTest 4:\tShould reject a proof under a different key.", failed)
			}
			t.Logf("\t%s\tTest 4:\tShould reject a proof under a different key.", success)
		}

		t.Logf("\tTest 5:\tWhen the context is already cancelled.")
		{
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			if _, err := dp.Prove(ctx, st); err == nil {
				t.Fatalf("\t%s\tTest 5:\tShould honor context cancellation.", failed)
			}
			t.Logf("\t%s\tTest 5:\tShould honor context cancellation.", success)
		}
	}
}
