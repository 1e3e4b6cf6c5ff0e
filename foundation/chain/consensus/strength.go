package consensus

import "math/big"

// Strength is the monotone accumulator of work along a chain. Increasing it
// by the same difficulties in any association yields the same value, so it
// can be compared across competing forks.
type Strength struct {
	Work string `json:"work"` // decimal accumulated expected digest count
}

// ZeroStrength is the strength of the genesis state.
func ZeroStrength() Strength {
	return Strength{Work: "0"}
}

// workInt returns the accumulated work as a big integer. A malformed value
// decodes as zero.
func (s Strength) workInt() *big.Int {
	w, ok := new(big.Int).SetString(s.Work, 10)
	if !ok {
		return big.NewInt(0)
	}

	return w
}

// Increase folds the work implied by the difficulty into the accumulator.
// The result is strictly greater than the receiver.
func (s Strength) Increase(d Difficulty) Strength {
	w := s.workInt()
	w.Add(w, d.Work())

	// Even a target accepting every digest represents one unit of work, the
	// accumulator must be strictly monotone along a chain.
	w.Add(w, big.NewInt(1))

	return Strength{Work: w.String()}
}

// Cmp compares two strengths, returning -1, 0 or 1.
func (s Strength) Cmp(o Strength) int {
	return s.workInt().Cmp(o.workInt())
}
