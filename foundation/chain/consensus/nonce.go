package consensus

import (
	"crypto/rand"
	"math"
	"math/big"
)

// Nonce is the opaque counter a hashing worker varies while searching for a
// header digest that meets the difficulty target.
type Nonce uint64

// NewNonce returns a nonce drawn from a cryptographically random source.
// Starting the search at a random point keeps independent workers from
// re-walking the same region of the nonce space.
func NewNonce() (Nonce, error) {
	nBig, err := rand.Int(rand.Reader, new(big.Int).SetUint64(math.MaxUint64))
	if err != nil {
		return 0, err
	}

	return Nonce(nBig.Uint64()), nil
}

// Next returns the successor nonce. Wrapping around is fine, the search just
// continues from the bottom of the space.
func (n Nonce) Next() Nonce {
	return n + 1
}
