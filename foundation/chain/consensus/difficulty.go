package consensus

import (
	"encoding/hex"
	"math/big"
	"strings"
)

// targetBlockTime is the spacing the retarget rule steers toward. A chain
// producing transitions faster than this shrinks the target, slower grows it.
const targetBlockTime = 10_000 // milliseconds

// retargetClamp bounds how much a single retarget can move the target in
// either direction.
const retargetClamp = 4

// maxTarget is 2^256 - 1, the threshold that accepts every digest.
var maxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Difficulty is a 256 bit threshold target. A header digest meets the
// difficulty when, interpreted as a big endian integer, it is less than or
// equal to the target.
type Difficulty struct {
	Target string `json:"target"` // 0x prefixed 32 byte big endian threshold.
}

// NewDifficulty constructs a difficulty from a raw target value. Values
// above the maximum representable target are capped.
func NewDifficulty(target *big.Int) Difficulty {
	if target.Sign() <= 0 {
		target = big.NewInt(1)
	}
	if target.Cmp(maxTarget) > 0 {
		target = maxTarget
	}

	digest := make([]byte, 32)
	target.FillBytes(digest)

	return Difficulty{Target: "0x" + hex.EncodeToString(digest)}
}

// MaxDifficulty returns the target that accepts every digest.
func MaxDifficulty() Difficulty {
	return NewDifficulty(maxTarget)
}

// MinDifficulty returns the smallest target, 1, which accepts only the
// digests 0 and 1. Useful to keep a hashing worker searching forever in tests.
func MinDifficulty() Difficulty {
	return NewDifficulty(big.NewInt(0))
}

// TargetInt returns the threshold as a big integer. A malformed target
// decodes as zero, which accepts only the zero digest.
func (d Difficulty) TargetInt() *big.Int {
	data, err := hex.DecodeString(strings.TrimPrefix(d.Target, "0x"))
	if err != nil {
		return big.NewInt(0)
	}

	return new(big.Int).SetBytes(data)
}

// Meets reports whether the 0x prefixed header digest satisfies the target.
func (d Difficulty) Meets(digest string) bool {
	data, err := hex.DecodeString(strings.TrimPrefix(digest, "0x"))
	if err != nil || len(data) != 32 {
		return false
	}

	return new(big.Int).SetBytes(data).Cmp(d.TargetInt()) <= 0
}

// Next derives the target for the following transition from the time elapsed
// between the previous two. The adjustment is proportional to the ratio of
// actual to desired spacing, clamped to a factor of retargetClamp.
func (d Difficulty) Next(lastTS Timestamp, thisTS Timestamp) Difficulty {
	elapsed := int64(thisTS) - int64(lastTS)
	if elapsed < 1 {
		elapsed = 1
	}

	prev := d.TargetInt()

	next := new(big.Int).Mul(prev, big.NewInt(elapsed))
	next.Div(next, big.NewInt(targetBlockTime))

	upper := new(big.Int).Mul(prev, big.NewInt(retargetClamp))
	lower := new(big.Int).Div(prev, big.NewInt(retargetClamp))
	if lower.Sign() == 0 {
		lower = big.NewInt(1)
	}

	switch {
	case next.Cmp(upper) > 0:
		next = upper
	case next.Cmp(lower) < 0:
		next = lower
	}

	return NewDifficulty(next)
}

// Work returns the expected number of digests that must be tried to meet
// this target, 2^256 / (target + 1).
func (d Difficulty) Work() *big.Int {
	space := new(big.Int).Add(maxTarget, big.NewInt(1))
	tries := new(big.Int).Add(d.TargetInt(), big.NewInt(1))

	return new(big.Int).Div(space, tries)
}
