package ledger_test

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/codachain/node/foundation/chain/ledger"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func keys(t *testing.T) (from *ecdsa.PrivateKey, fromAddr string, toAddr string, proposerAddr string) {
	from, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the sender key: %s", failed, err)
	}

	to, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate the receiver key: %s", failed, err)
	}

	proposer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate the proposer key: %s", failed, err)
	}

	return from,
		crypto.PubkeyToAddress(from.PublicKey).String(),
		crypto.PubkeyToAddress(to.PublicKey).String(),
		crypto.PubkeyToAddress(proposer.PublicKey).String()
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

func TestApplyTransaction(t *testing.T) {
	pk, fromAddr, toAddr, proposerAddr := keys(t)

	t.Log("Given the need to validate applying transactions to the ledger.")
	{
		t.Logf("\tTest 0:\tWhen applying a valid transaction.")
		{
			lgr := ledger.New(map[string]uint64{fromAddr: 1000})

			tx := sign(t, pk, 1, toAddr, 100, 15)
			if err := lgr.ApplyTransaction(proposerAddr, tx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the transaction: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to apply the transaction.", success)

			if got := lgr.Query(fromAddr).Balance; got != 885 {
				t.Fatalf("\t%s\tTest 0:\tShould debit value and fee from the sender, got %d exp 885.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould debit value and fee from the sender.", success)

			if got := lgr.Query(toAddr).Balance; got != 100 {
				t.Fatalf("\t%s\tTest 0:\tShould credit the value to the receiver, got %d exp 100.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould credit the value to the receiver.", success)

			if got := lgr.Query(proposerAddr).Balance; got != 15 {
				t.Fatalf("\t%s\tTest 0:\tShould credit the fee to the proposer, got %d exp 15.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould credit the fee to the proposer.", success)

			if got := lgr.Query(fromAddr).Nonce; got != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould record the sender nonce, got %d exp 1.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould record the sender nonce.", success)
		}

		t.Logf("\tTest 1:\tWhen the nonce does not advance.")
		{
			lgr := ledger.New(map[string]uint64{fromAddr: 1000})

			if err := lgr.ApplyTransaction(proposerAddr, sign(t, pk, 1, toAddr, 100, 0)); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to apply the first transaction: %s", failed, err)
			}

			if err := lgr.ApplyTransaction(proposerAddr, sign(t, pk, 1, toAddr, 100, 0)); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould reject a replayed nonce.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould reject a replayed nonce.", success)
		}

		t.Logf("\tTest 2:\tWhen the sender cannot cover value plus fee.")
		{
			lgr := ledger.New(map[string]uint64{fromAddr: 100})

			if err := lgr.ApplyTransaction(proposerAddr, sign(t, pk, 1, toAddr, 90, 20)); err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould reject an insufficient balance.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould reject an insufficient balance.", success)
		}

		t.Logf("\tTest 3:\tWhen the sender pays themselves.")
		{
			lgr := ledger.New(map[string]uint64{fromAddr: 1000})

			if err := lgr.ApplyTransaction(proposerAddr, sign(t, pk, 1, fromAddr, 100, 0)); err == nil {
				t.Fatalf("\t%s\tTest 3:\tShould reject a self payment.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould reject a self payment.", success)
		}
	}
}

func TestLedgerHash(t *testing.T) {
	pk, fromAddr, toAddr, proposerAddr := keys(t)

	t.Log("Given the need to validate ledger content hashing.")
	{
		t.Logf("\tTest 0:\tWhen cloning a ledger.")
		{
			lgr := ledger.New(map[string]uint64{fromAddr: 1000})
			clone := lgr.Clone()

			if lgr.Hash() != clone.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould produce the same hash for identical content.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould produce the same hash for identical content.", success)

			if err := clone.ApplyTransaction(proposerAddr, sign(t, pk, 1, toAddr, 100, 0)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply against the clone: %s", failed, err)
			}

			if lgr.Hash() == clone.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould change the clone hash without touching the original.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould change the clone hash without touching the original.", success)

			if lgr.Query(fromAddr).Balance != 1000 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the original ledger untouched.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the original ledger untouched.", success)
		}

		t.Logf("\tTest 1:\tWhen crediting the proposer reward.")
		{
			lgr := ledger.New(map[string]uint64{fromAddr: 1000})
			before := lgr.Hash()

			lgr.ApplyProposerReward(proposerAddr, 600)

			if lgr.Query(proposerAddr).Balance != 600 {
				t.Fatalf("\t%s\tTest 1:\tShould credit the coinbase to the proposer.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould credit the coinbase to the proposer.", success)

			if lgr.Hash() == before {
				t.Fatalf("\t%s\tTest 1:\tShould change the ledger hash.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould change the ledger hash.", success)
		}
	}
}

func TestValidateNonce(t *testing.T) {
	pk, fromAddr, toAddr, proposerAddr := keys(t)

	t.Log("Given the need to validate nonce checks against the committed ledger.")
	{
		t.Logf("\tTest 0:\tWhen the account has committed a nonce.")
		{
			lgr := ledger.New(map[string]uint64{fromAddr: 1000})

			if err := lgr.ApplyTransaction(proposerAddr, sign(t, pk, 5, toAddr, 100, 0)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the transaction: %s", failed, err)
			}

			if err := lgr.ValidateNonce(sign(t, pk, 5, toAddr, 100, 0)); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject a nonce that does not advance.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a nonce that does not advance.", success)

			if err := lgr.ValidateNonce(sign(t, pk, 6, toAddr, 100, 0)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the next nonce: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept the next nonce.", success)
		}
	}
}
