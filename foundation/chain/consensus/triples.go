package consensus

import (
	"encoding/binary"
	"math/big"

	"github.com/codachain/node/foundation/chain/signature"
)

// The canonical bit layout of a consensus state. Every field is written at
// a fixed width so the encoding has the same shape for every state:
// five 256 bit fields and five 64 bit fields, padded up to a whole number
// of triples.
const (
	stateBits = 5*256 + 5*64

	// LengthInTriples is the fixed number of boolean triples in the
	// canonical encoding of a consensus state.
	LengthInTriples = (stateBits + 2) / 3
)

// Triple is a group of three booleans from the canonical encoding.
type Triple [3]bool

// Bits returns the canonical bit encoding of the state. The result always
// holds exactly LengthInTriples*3 booleans.
func (s State) Bits() []bool {
	bits := make([]bool, 0, LengthInTriples*3)

	bits = appendHashBits(bits, s.NextDifficulty.Target)
	bits = appendHashBits(bits, s.PreviousStateHash)
	bits = appendHashBits(bits, s.LedgerHash)
	bits = appendStrengthBits(bits, s.Strength)
	bits = appendUint64Bits(bits, uint64(s.Timestamp))
	bits = appendUint64Bits(bits, s.Length)
	bits = appendUint64Bits(bits, s.Epoch)
	bits = appendUint64Bits(bits, s.Slot)
	bits = appendUint64Bits(bits, s.TotalCurrency)
	bits = appendHashBits(bits, s.LastVRFOutput)

	for len(bits) < LengthInTriples*3 {
		bits = append(bits, false)
	}

	return bits
}

// Triples returns the canonical encoding grouped into triples.
func (s State) Triples() []Triple {
	bits := s.Bits()

	triples := make([]Triple, 0, LengthInTriples)
	for i := 0; i < len(bits); i += 3 {
		triples = append(triples, Triple{bits[i], bits[i+1], bits[i+2]})
	}

	return triples
}

// Fold walks every boolean of the canonical encoding in order, threading an
// accumulator through the provided function. It visits exactly
// LengthInTriples*3 booleans.
func Fold[T any](s State, init T, f func(acc T, bit bool) T) T {
	acc := init
	for _, bit := range s.Bits() {
		acc = f(acc, bit)
	}

	return acc
}

// =============================================================================

// appendHashBits writes a 0x prefixed 32 byte hex value as 256 bits, most
// significant bit first. Malformed or empty values write 256 zero bits.
func appendHashBits(bits []bool, hash string) []bool {
	digest := signature.ToBytes(hash)
	for _, b := range digest {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>uint(i))&1 == 1)
		}
	}

	return bits
}

// appendStrengthBits writes the accumulated work as 256 bits.
func appendStrengthBits(bits []bool, s Strength) []bool {
	w, ok := new(big.Int).SetString(s.Work, 10)
	if !ok {
		w = big.NewInt(0)
	}

	var buf [32]byte
	w.FillBytes(buf[:])

	for _, b := range buf {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>uint(i))&1 == 1)
		}
	}

	return bits
}

// appendUint64Bits writes a 64 bit value, most significant bit first.
func appendUint64Bits(bits []bool, v uint64) []bool {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)

	for _, b := range buf {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>uint(i))&1 == 1)
		}
	}

	return bits
}
