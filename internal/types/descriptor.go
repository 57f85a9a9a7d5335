package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ItemDescriptor describes a parcel that exists only as a Merkle commitment
// until it is minted on first transfer. To is the grantee the commitment was
// originally issued for; a marketplace-authorized lazy mint may deliver the
// item to a different buyer, but the leaf always binds the original grantee.
type ItemDescriptor struct {
	To       common.Address `json:"to"`
	ItemID   *big.Int       `json:"item_id"`
	Category *big.Int       `json:"category"`
	Size     *big.Int       `json:"size"`
}

// LeafHash computes the Merkle leaf for the descriptor: keccak256 over the
// four fields encoded as 32-byte words. This encoding must match the tree
// construction used by the off-chain commitment tooling.
func (d ItemDescriptor) LeafHash() common.Hash {
	buf := make([]byte, 0, 4*32)
	buf = append(buf, common.LeftPadBytes(d.To.Bytes(), 32)...)
	buf = append(buf, common.BigToHash(d.ItemID).Bytes()...)
	buf = append(buf, common.BigToHash(d.Category).Bytes()...)
	buf = append(buf, common.BigToHash(d.Size).Bytes()...)
	return crypto.Keccak256Hash(buf)
}

// HashPair combines two Merkle nodes, smaller-first, matching the sorted
// pair construction of the commitment trees.
func HashPair(a, b common.Hash) common.Hash {
	if cmpHash(a, b) <= 0 {
		return crypto.Keccak256Hash(a.Bytes(), b.Bytes())
	}
	return crypto.Keccak256Hash(b.Bytes(), a.Bytes())
}

func cmpHash(a, b common.Hash) int {
	for i := 0; i < common.HashLength; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
