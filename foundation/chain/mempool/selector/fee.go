package selector

import (
	"sort"

	"github.com/codachain/node/foundation/chain/ledger"
)

// feeSelect returns transactions with the best fee while respecting the
// nonce ordering for each account.
var feeSelect = func(m map[string][]ledger.Tx, howMany int) []ledger.Tx {

	// Sort the transactions per account by nonce.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
	}

	// Pick the first transaction in the slice for each account. Each
	// iteration represents a new row of selections. Keep doing that until
	// all the transactions have been selected.
	var rows [][]ledger.Tx
	for {
		var row []ledger.Tx
		for key := range m {
			if len(m[key]) > 0 {
				row = append(row, m[key][0])
				m[key] = m[key][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	// Sort each row by fee unless we will take all transactions from that
	// row anyway. Then try to select the number of requested transactions.
	// Keep pulling transactions from each row until the amount is fulfilled
	// or there are no more transactions.
	final := []ledger.Tx{}
done:
	for _, row := range rows {
		need := howMany - len(final)
		if howMany != -1 && len(row) > need {
			sort.Sort(byFee(row))
			final = append(final, row[:need]...)
			break done
		}
		final = append(final, row...)
	}

	return final
}
