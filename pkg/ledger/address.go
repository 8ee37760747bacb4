package ledger

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressLength is the size of a ledger account key in bytes.
const AddressLength = 32

// ErrInvalidAddress is returned when an address is empty or not a 32-byte base58 key.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a base58-encoded 32-byte account key.
type Address string

// Well-known program addresses.
const (
	// SystemProgram doubles as the "empty slot" marker inside fixed-size listings.
	SystemProgram Address = "11111111111111111111111111111111"
	TokenProgram  Address = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	MemoProgram   Address = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
)

// ParseAddress validates s and returns it as an Address.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
	}

	if len(raw) != AddressLength {
		return "", fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, s, len(raw))
	}

	return Address(s), nil
}

// MustParseAddress is ParseAddress for constants and tests. It panics on error.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// AddressFromBytes encodes a raw 32-byte key.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return "", fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLength, len(b))
	}
	return Address(base58.Encode(b)), nil
}

// Validate reports whether the address is a well-formed key.
func (a Address) Validate() error {
	_, err := ParseAddress(string(a))
	return err
}

// Bytes returns the raw key. Invalid addresses yield nil.
func (a Address) Bytes() []byte {
	raw, err := base58.Decode(string(a))
	if err != nil || len(raw) != AddressLength {
		return nil
	}
	return raw
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}

// Commitment is the consistency level requested from the ledger.
type Commitment string

// Supported commitment levels.
const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Account is the raw state of one ledger account.
type Account struct {
	Data     []byte
	Owner    Address
	Lamports uint64
	Slot     uint64
}

// SubscriptionID is the handle returned by a push subscription.
type SubscriptionID uint64

// Signature identifies a submitted transaction.
type Signature string
