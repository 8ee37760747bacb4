// Package protocol derives the lending program's account addresses.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
)

const (
	pageSeed  = "users_page"
	priceSeed = "asset_price"
)

// AddressBook derives program-owned account keys.
type AddressBook struct {
	program      ledger.Address
	positionSeed string
}

// NewAddressBook validates the program id.
func NewAddressBook(program ledger.Address, positionSeed string) (*AddressBook, error) {
	if err := program.Validate(); err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	if positionSeed == "" {
		return nil, fmt.Errorf("position seed cannot be empty")
	}
	return &AddressBook{program: program, positionSeed: positionSeed}, nil
}

// Program returns the lending program id.
func (b *AddressBook) Program() ledger.Address {
	return b.program
}

// PageAddress returns the listing account for page.
func (b *AddressBook) PageAddress(page uint16) (ledger.Address, error) {
	idx := binary.LittleEndian.AppendUint16(nil, page)
	addr, _, err := ledger.FindProgramAddress([][]byte{[]byte(pageSeed), idx}, b.program)
	if err != nil {
		return "", fmt.Errorf("derive page %d: %w", page, err)
	}
	return addr, nil
}

// PositionAddress returns the position record owned by wallet.
func (b *AddressBook) PositionAddress(wallet ledger.Address) (ledger.Address, error) {
	raw := wallet.Bytes()
	if raw == nil {
		return "", fmt.Errorf("wallet: %w", ledger.ErrInvalidAddress)
	}
	addr, _, err := ledger.FindProgramAddress([][]byte{[]byte(b.positionSeed), raw}, b.program)
	if err != nil {
		return "", fmt.Errorf("derive position for %s: %w", wallet, err)
	}
	return addr, nil
}

// PriceAddress returns the price record for mint.
func (b *AddressBook) PriceAddress(mint ledger.Address) (ledger.Address, error) {
	raw := mint.Bytes()
	if raw == nil {
		return "", fmt.Errorf("mint: %w", ledger.ErrInvalidAddress)
	}
	addr, _, err := ledger.FindProgramAddress([][]byte{[]byte(priceSeed), raw}, b.program)
	if err != nil {
		return "", fmt.Errorf("derive price for %s: %w", mint, err)
	}
	return addr, nil
}
