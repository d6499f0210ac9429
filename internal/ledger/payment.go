package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// TokenID names a token class. The native coin is NativeToken.
type TokenID string

// NativeToken is the ledger's native coin.
const NativeToken TokenID = "NATIVE"

// Payment is a value transfer of one token class.
// Fungible tokens use nonce 0; non-fungible tokens carry their nonce.
type Payment struct {
	Token  TokenID      `json:"token"`
	Nonce  uint64       `json:"nonce"`
	Amount *uint256.Int `json:"amount"`
}

// NewPayment builds a payment for a uint64 amount.
func NewPayment(token TokenID, nonce, amount uint64) Payment {
	return Payment{Token: token, Nonce: nonce, Amount: uint256.NewInt(amount)}
}

// Native is a native coin payment.
func Native(amount uint64) Payment {
	return NewPayment(NativeToken, 0, amount)
}

// IsZero reports whether the payment moves no value.
func (p Payment) IsZero() bool {
	return p.Amount == nil || p.Amount.IsZero()
}

// SameAsset reports whether p and o are the same token class and nonce.
func (p Payment) SameAsset(o Payment) bool {
	return p.Token == o.Token && p.Nonce == o.Nonce
}

// Value returns the amount, treating nil as zero.
func (p Payment) Value() *uint256.Int {
	if p.Amount == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(p.Amount)
}

func (p Payment) String() string {
	if p.Nonce == 0 {
		return fmt.Sprintf("%s %s", p.Value().Dec(), p.Token)
	}
	return fmt.Sprintf("%s %s-%d", p.Value().Dec(), p.Token, p.Nonce)
}
