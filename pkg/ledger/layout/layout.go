// Package layout decodes the fixed little-endian account layouts of the
// lending program:
//
//	page listing:      N x 32-byte borrower keys
//	borrower position: u16 page_id | u8 count | count x (u8 pool | u64 deposit | u64 borrow)
//	price record:      u8 pool | u64 price, 9 implied decimals
package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/types"
)

const (
	positionHeaderSize = 3
	positionEntrySize  = 17
	priceRecordSize    = 9
	priceScale         = 1e9
)

// ErrShortData is returned when an account is smaller than its layout requires.
var ErrShortData = errors.New("account data too short")

// Decoder decodes raw account bytes. The zero value is ready to use.
type Decoder struct{}

// DecodePage returns the keys in a page listing, in slot order. Empty slots hold
// the system program key and are returned as-is.
func (Decoder) DecodePage(data []byte) ([]ledger.Address, error) {
	if len(data)%ledger.AddressLength != 0 {
		return nil, fmt.Errorf("page length %d not a multiple of %d", len(data), ledger.AddressLength)
	}

	keys := make([]ledger.Address, 0, len(data)/ledger.AddressLength)
	for off := 0; off < len(data); off += ledger.AddressLength {
		addr, err := ledger.AddressFromBytes(data[off : off+ledger.AddressLength])
		if err != nil {
			return nil, err
		}
		keys = append(keys, addr)
	}
	return keys, nil
}

// DecodePosition decodes a borrower position record.
func (Decoder) DecodePosition(data []byte) (*types.PositionSnapshot, error) {
	if len(data) < positionHeaderSize {
		return nil, fmt.Errorf("position header: %w", ErrShortData)
	}

	count := int(data[2])
	need := positionHeaderSize + count*positionEntrySize
	if len(data) < need {
		return nil, fmt.Errorf("position with %d entries needs %d bytes, got %d: %w", count, need, len(data), ErrShortData)
	}

	snap := &types.PositionSnapshot{
		PageID:  binary.LittleEndian.Uint16(data[0:2]),
		Entries: make([]types.PositionEntry, 0, count),
	}
	for i := 0; i < count; i++ {
		off := positionHeaderSize + i*positionEntrySize
		snap.Entries = append(snap.Entries, types.PositionEntry{
			Pool:    types.PoolID(data[off]),
			Deposit: binary.LittleEndian.Uint64(data[off+1 : off+9]),
			Borrow:  binary.LittleEndian.Uint64(data[off+9 : off+17]),
		})
	}
	return snap, nil
}

// DecodePrice decodes a price record into its pool and USD price.
func (Decoder) DecodePrice(data []byte) (types.PoolID, float64, error) {
	if len(data) < priceRecordSize {
		return 0, 0, fmt.Errorf("price record: %w", ErrShortData)
	}
	raw := binary.LittleEndian.Uint64(data[1:9])
	return types.PoolID(data[0]), float64(raw) / priceScale, nil
}

// EncodePage is the inverse of DecodePage.
func EncodePage(keys []ledger.Address) []byte {
	out := make([]byte, 0, len(keys)*ledger.AddressLength)
	for _, k := range keys {
		b := k.Bytes()
		if b == nil {
			b = make([]byte, ledger.AddressLength)
		}
		out = append(out, b...)
	}
	return out
}

// EncodePosition is the inverse of DecodePosition.
func EncodePosition(snap *types.PositionSnapshot) []byte {
	out := make([]byte, positionHeaderSize, positionHeaderSize+len(snap.Entries)*positionEntrySize)
	binary.LittleEndian.PutUint16(out[0:2], snap.PageID)
	out[2] = byte(len(snap.Entries))
	for _, e := range snap.Entries {
		out = append(out, byte(e.Pool))
		out = binary.LittleEndian.AppendUint64(out, e.Deposit)
		out = binary.LittleEndian.AppendUint64(out, e.Borrow)
	}
	return out
}

// EncodePrice is the inverse of DecodePrice.
func EncodePrice(pool types.PoolID, price float64) []byte {
	out := []byte{byte(pool)}
	return binary.LittleEndian.AppendUint64(out, uint64(math.Round(price*priceScale)))
}
