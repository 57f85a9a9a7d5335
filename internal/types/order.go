package types

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Order is a single seller-authored sale authorization. Orders are built and
// signed off-chain; the engine only ever sees them as call parameters and
// identifies them by their canonical hash.
type Order struct {
	Seller          common.Address `json:"seller"`
	ExecuteBySeller bool           `json:"execute_by_seller"`
	Collection      common.Address `json:"collection"`
	ItemIDs         []*big.Int     `json:"item_ids"`
	ItemAmounts     []*big.Int     `json:"item_amounts"`
	ItemHashes      []common.Hash  `json:"item_hashes"`
	MinPrice        *big.Int       `json:"min_price"`
	ValidUntil      uint64         `json:"valid_until"`
	// IsSingleStandard selects the one-owner-per-item transfer path;
	// multi-unit orders move amounts instead and ignore ItemHashes.
	IsSingleStandard bool `json:"is_single_standard"`
	SpecialVenue     bool `json:"special_venue"`
}

// Signature is a raw (v, r, s) secp256k1 signature. V is 27 or 28.
type Signature struct {
	V uint8       `json:"v"`
	R common.Hash `json:"r"`
	S common.Hash `json:"s"`
}

// SignedBatch is a set of order hashes covered by one seller signature.
// Any single order in the set can be executed independently by presenting
// the full hash set plus the index of the order being executed.
type SignedBatch struct {
	OrderHashes []common.Hash `json:"order_hashes"`
	Sig         Signature     `json:"signature"`
}

// Hash computes the canonical identity of the order: keccak256 over the
// tightly packed field encoding. Addresses pack to 20 bytes, bools to one
// byte, big integers and hashes to 32-byte words, ValidUntil to 8 bytes.
func (o Order) Hash() common.Hash {
	size := 20 + 1 + 20 + 32*(len(o.ItemIDs)+len(o.ItemAmounts)+len(o.ItemHashes)) + 32 + 8 + 1 + 1
	buf := make([]byte, 0, size)

	buf = append(buf, o.Seller.Bytes()...)
	buf = append(buf, boolByte(o.ExecuteBySeller))
	buf = append(buf, o.Collection.Bytes()...)
	for _, id := range o.ItemIDs {
		buf = append(buf, common.BigToHash(id).Bytes()...)
	}
	for _, amount := range o.ItemAmounts {
		buf = append(buf, common.BigToHash(amount).Bytes()...)
	}
	for _, h := range o.ItemHashes {
		buf = append(buf, h.Bytes()...)
	}
	buf = append(buf, common.BigToHash(o.MinPrice).Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, o.ValidUntil)
	buf = append(buf, boolByte(o.IsSingleStandard))
	buf = append(buf, boolByte(o.SpecialVenue))

	return crypto.Keccak256Hash(buf)
}

// TotalUnits sums ItemAmounts; it seeds the remaining-fill counter for
// multi-unit orders.
func (o Order) TotalUnits() *big.Int {
	total := new(big.Int)
	for _, amount := range o.ItemAmounts {
		total.Add(total, amount)
	}
	return total
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
