// Package signature provides the hashing and signing primitives used by the
// consensus core.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// codaID is an arbitrary number added to the recovery id when signing
// consensus data and transactions. It makes the signatures unambiguous against other chains
// that also use recoverable ECDSA signatures.
const codaID = 31

// =============================================================================

// Hash returns a unique string for the value.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// HashBytes returns the raw 32 byte digest for the value.
func HashBytes(value any) [32]byte {
	data, err := json.Marshal(value)
	if err != nil {
		return [32]byte{}
	}

	return sha256.Sum256(data)
}

// ToBytes converts a 0x prefixed hash string to its raw 32 bytes. A malformed
// string converts to the zero digest.
func ToBytes(hash string) [32]byte {
	var digest [32]byte

	data, err := hex.DecodeString(strings.TrimPrefix(hash, "0x"))
	if err != nil || len(data) != 32 {
		return digest
	}

	copy(digest[:], data)
	return digest
}

// Sign uses the specified private key to sign the value.
func Sign(value any, privateKey *ecdsa.PrivateKey) (v, r, s *big.Int, err error) {
	data, err := stamp(value)
	if err != nil {
		return nil, nil, nil, err
	}

	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, nil, nil, err
	}

	// Extract the public key from the data and the signature and make sure
	// what was produced verifies before handing it out.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return nil, nil, nil, err
	}

	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return nil, nil, nil, errors.New("invalid signature produced")
	}

	v, r, s = toSignatureValues(sig)

	return v, r, s, nil
}

// VerifyValues verifies the signature values conform to our standards.
func VerifyValues(v, r, s *big.Int) error {
	uintV := v.Uint64() - codaID
	if uintV != 0 && uintV != 1 {
		return errors.New("invalid recovery id")
	}

	if !crypto.ValidateSignatureValues(byte(uintV), r, s, false) {
		return errors.New("invalid signature values")
	}

	return nil
}

// FromAddress extracts the address of the account that signed the value.
func FromAddress(value any, v, r, s *big.Int) (string, error) {
	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	sig := ToSignatureBytes(v, r, s)

	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return "", err
	}

	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// String returns the signature as a single hex string.
func String(v, r, s *big.Int) string {
	return hexutil.Encode(toSignatureBytesWithCodaID(v, r, s))
}

// FromHex converts a hex representation of the signature into its
// R, S and V parts.
func FromHex(sigStr string) (v, r, s *big.Int, err error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigStr, "0x"))
	if err != nil {
		return nil, nil, nil, err
	}
	if len(sig) != crypto.SignatureLength {
		return nil, nil, nil, errors.New("invalid signature length")
	}

	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:64])
	v = new(big.Int).SetBytes([]byte{sig[64]})

	return v, r, s, nil
}

// =============================================================================

// stamp returns a 32 byte hash of the value with the chain stamp embedded.
func stamp(value any) ([]byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	txHash := crypto.Keccak256(v)

	// The stamp keeps these signatures from being valid for anything other
	// than consensus data and transactions on this chain.
	stamp := []byte("\x19Coda Signed Transition:\n32")

	return crypto.Keccak256(stamp, txHash), nil
}

// toSignatureValues converts a 65 byte signature into the [R|S|V] format.
func toSignatureValues(sig []byte) (v, r, s *big.Int) {
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:64])
	v = new(big.Int).SetBytes([]byte{sig[64] + codaID})

	return v, r, s
}

// ToSignatureBytes converts the [R|S|V] format into a 65 byte signature with
// the recovery id normalized back to 0 or 1.
func ToSignatureBytes(v, r, s *big.Int) []byte {
	sig := make([]byte, crypto.SignatureLength)

	rBytes := make([]byte, 32)
	r.FillBytes(rBytes)
	copy(sig, rBytes)

	sBytes := make([]byte, 32)
	s.FillBytes(sBytes)
	copy(sig[32:], sBytes)

	sig[64] = byte(v.Uint64() - codaID)

	return sig
}

// toSignatureBytesWithCodaID converts the [R|S|V] format into a 65 byte
// signature keeping the chain id in the recovery byte.
func toSignatureBytesWithCodaID(v, r, s *big.Int) []byte {
	sig := ToSignatureBytes(v, r, s)
	sig[64] = byte(v.Uint64())

	return sig
}
