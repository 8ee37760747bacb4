package ledger

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

// ErrNoViableBump is returned when every bump seed yields an on-curve point.
var ErrNoViableBump = errors.New("no viable bump seed")

// CreateProgramAddress derives an address from seeds and a program id.
// It fails when the derived key lies on the ed25519 curve.
func CreateProgramAddress(seeds [][]byte, programID Address) (Address, error) {
	if len(seeds) > maxSeeds {
		return "", fmt.Errorf("too many seeds: %d", len(seeds))
	}

	program := programID.Bytes()
	if program == nil {
		return "", fmt.Errorf("program id: %w", ErrInvalidAddress)
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return "", fmt.Errorf("seed exceeds %d bytes", maxSeedLength)
		}
		h.Write(seed)
	}
	h.Write(program)
	h.Write([]byte(pdaMarker))
	sum := h.Sum(nil)

	if isOnCurve(sum) {
		return "", errors.New("derived key is on curve")
	}

	return AddressFromBytes(sum)
}

// FindProgramAddress searches bump seeds from 255 down and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID Address) (Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if errors.Is(err, ErrInvalidAddress) {
			return "", 0, err
		}
	}

	return "", 0, ErrNoViableBump
}

// FindAssociatedTokenAddress derives the canonical token account of owner for mint.
func FindAssociatedTokenAddress(owner, mint Address) (Address, error) {
	if owner.Bytes() == nil || mint.Bytes() == nil {
		return "", ErrInvalidAddress
	}

	addr, _, err := FindProgramAddress(
		[][]byte{owner.Bytes(), TokenProgram.Bytes(), mint.Bytes()},
		AssociatedTokenProgram,
	)
	if err != nil {
		return "", fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}

// AssociatedTokenProgram owns the canonical per-mint token accounts.
const AssociatedTokenProgram Address = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"

func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
