package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Balances live in the ledger's own key space, outside every program prefix.
var bankPrefix = []byte("bank/")

func balanceKey(owner Address, token TokenID, nonce uint64) []byte {
	return concat(bankPrefix, owner[:], U64(nonce), []byte(token))
}

func balanceOf(r Reader, owner Address, token TokenID, nonce uint64) (*uint256.Int, error) {
	raw, ok, err := r.Get(balanceKey(owner, token, nonce))
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func setBalance(w Writer, owner Address, token TokenID, nonce uint64, v *uint256.Int) {
	key := balanceKey(owner, token, nonce)
	if v.IsZero() {
		w.Delete(key)
		return
	}
	b := v.Bytes32()
	w.Put(key, b[:])
}

// credit adds p to owner's balance.
func credit(w Writer, owner Address, p Payment) error {
	if p.IsZero() {
		return nil
	}
	bal, err := balanceOf(w, owner, p.Token, p.Nonce)
	if err != nil {
		return err
	}
	if _, overflow := bal.AddOverflow(bal, p.Amount); overflow {
		return ErrBalanceOverflow
	}
	setBalance(w, owner, p.Token, p.Nonce, bal)
	return nil
}

// move transfers p from one account to another. A zero payment is a no-op.
func move(w Writer, from, to Address, p Payment) error {
	if p.IsZero() {
		return nil
	}
	bal, err := balanceOf(w, from, p.Token, p.Nonce)
	if err != nil {
		return err
	}
	if bal.Lt(p.Amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Short(), bal.Dec(), p.String())
	}
	bal.Sub(bal, p.Amount)
	setBalance(w, from, p.Token, p.Nonce, bal)
	return credit(w, to, p)
}

// Holding is one non-zero balance entry.
type Holding struct {
	Token  TokenID      `json:"token"`
	Nonce  uint64       `json:"nonce"`
	Amount *uint256.Int `json:"amount"`
}

func holdingsOf(r Reader, owner Address) ([]Holding, error) {
	prefix := concat(bankPrefix, owner[:])
	var out []Holding
	err := r.Iterate(prefix, func(k, v []byte) bool {
		rest := k[len(prefix):]
		out = append(out, Holding{
			Nonce:  DecodeU64(rest[:8]),
			Token:  TokenID(rest[8:]),
			Amount: new(uint256.Int).SetBytes(v),
		})
		return true
	})
	return out, err
}
