package consensus_test

import (
	"math/big"
	"testing"

	"github.com/codachain/node/foundation/chain/consensus"
)

func TestStrength(t *testing.T) {
	d1 := consensus.NewDifficulty(new(big.Int).Lsh(big.NewInt(1), 250))
	d2 := consensus.NewDifficulty(new(big.Int).Lsh(big.NewInt(1), 240))

	t.Log("Given the need to validate the strength accumulator.")
	{
		t.Logf("\tTest 0:\tWhen increasing from zero.")
		{
			s := consensus.ZeroStrength().Increase(consensus.MaxDifficulty())
			if s.Cmp(consensus.ZeroStrength()) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould be strictly greater after any increase.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be strictly greater after any increase.", success)
		}

		t.Logf("\tTest 1:\tWhen increasing by the same difficulties in different orders.")
		{
			a := consensus.ZeroStrength().Increase(d1).Increase(d2)
			b := consensus.ZeroStrength().Increase(d2).Increase(d1)

			if a.Cmp(b) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould accumulate to the same value, got %s exp %s.", failed, a.Work, b.Work)
			}
			t.Logf("\t%s\tTest 1:\tShould accumulate to the same value.", success)
		}

		t.Logf("\tTest 2:\tWhen comparing chains of different work.")
		{
			weak := consensus.ZeroStrength().Increase(d1)
			strong := consensus.ZeroStrength().Increase(d2)

			if weak.Cmp(strong) != -1 {
				t.Fatalf("\t%s\tTest 2:\tShould rank the harder target strictly stronger.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould rank the harder target strictly stronger.", success)
		}
	}
}
