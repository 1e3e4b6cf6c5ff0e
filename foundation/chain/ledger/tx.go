// Package ledger maintains the account ledger the consensus core applies
// transactions against.
package ledger

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"regexp"

	"github.com/codachain/node/foundation/chain/signature"
)

// addressRx matches a 0x prefixed 20 byte hex address.
var addressRx = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")

// =============================================================================

// UserTx is the payment data submitted by a user.
type UserTx struct {
	Nonce uint64 `json:"nonce"` // Sequence number supplied by the sender.
	To    string `json:"to"`    // Address receiving the payment.
	Value uint64 `json:"value"` // Amount transferred in minor units.
	Fee   uint64 `json:"fee"`   // Fee offered to the proposer.
}

// NewUserTx constructs a new user transaction.
func NewUserTx(nonce uint64, to string, value uint64, fee uint64) (UserTx, error) {
	if !IsAddress(to) {
		return UserTx{}, fmt.Errorf("to address is not properly formatted")
	}

	userTx := UserTx{
		Nonce: nonce,
		To:    to,
		Value: value,
		Fee:   fee,
	}

	return userTx, nil
}

// Sign uses the specified private key to sign the user transaction.
func (tx UserTx) Sign(privateKey *ecdsa.PrivateKey) (Tx, error) {
	if !IsAddress(tx.To) {
		return Tx{}, fmt.Errorf("to address is not properly formatted")
	}

	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return Tx{}, err
	}

	signedTx := Tx{
		UserTx: tx,
		V:      v,
		R:      r,
		S:      s,
	}

	return signedTx, nil
}

// =============================================================================

// Tx is a signed transaction as carried in bundles and the pool.
type Tx struct {
	UserTx
	V *big.Int `json:"v"` // Recovery identifier with the chain id embedded.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// VerifySignature verifies the signature conforms to our standards and is
// associated with the data claimed to be signed.
func (tx Tx) VerifySignature() error {
	return signature.VerifyValues(tx.V, tx.R, tx.S)
}

// FromAddress extracts the address of the account that signed the
// transaction.
func (tx Tx) FromAddress() (string, error) {
	return signature.FromAddress(tx.UserTx, tx.V, tx.R, tx.S)
}

// Hash returns the unique hash for the transaction.
func (tx Tx) Hash() string {
	return signature.Hash(tx)
}

// UniqueKey returns the key used to index the transaction in the pool.
func (tx Tx) UniqueKey() string {
	from, err := tx.FromAddress()
	if err != nil {
		from = "unknown"
	}

	return fmt.Sprintf("%s:%d", from, tx.Nonce)
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return tx.UniqueKey()
}

// =============================================================================

// IsAddress reports whether the value is a properly formatted address.
func IsAddress(address string) bool {
	return addressRx.MatchString(address)
}

// TxHashes returns the hashes of the transactions in order. This is the
// value folded into proof statements.
func TxHashes(txs []Tx) []string {
	hashes := make([]string, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}

	return hashes
}
