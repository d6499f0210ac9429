// Package ledger is the execution host for the marketplace programs.
//
// A Ledger serializes calls, gives each call a journaled transaction over the
// backing store, moves attached payments, and publishes the events a call
// emitted once it has committed. Programs are plain Go values that register
// entry functions; they see the world only through a CallContext.
package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressLength is the size of an account or program address in bytes.
const AddressLength = 32

// Address identifies an account or a deployed program.
type Address [AddressLength]byte

// ZeroAddress is the caller of views.
var ZeroAddress Address

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// BytesToAddress left-pads or truncates b into an Address.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// AddressFromSeed derives a stable address from a human readable seed.
// Used for genesis accounts, tests and the dev faucet.
func AddressFromSeed(seed string) Address {
	return BytesToAddress(Keccak256([]byte("account:"), []byte(seed)))
}

// DeriveAddress returns the address a program named name gets when deployed
// by deployer.
func DeriveAddress(deployer Address, name string) Address {
	return BytesToAddress(Keccak256([]byte("program:"), deployer[:], []byte(name)))
}

// ParseAddress decodes a 0x-prefixed (or bare) hex address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*AddressLength {
		return Address{}, fmt.Errorf("invalid address length %d", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address: %w", err)
	}
	return BytesToAddress(raw), nil
}

func (a Address) Hex() string    { return "0x" + hex.EncodeToString(a[:]) }
func (a Address) String() string { return a.Hex() }
func (a Address) IsZero() bool   { return a == ZeroAddress }
func (a Address) Bytes() []byte  { return a[:] }

// Short returns an abbreviated form for log lines.
func (a Address) Short() string {
	h := hex.EncodeToString(a[:])
	return "0x" + h[:6] + ".." + h[len(h)-4:]
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
