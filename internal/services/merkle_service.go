package services

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/parcelverse/marketplace-api/internal/logger"
	"github.com/parcelverse/marketplace-api/internal/store"
	"github.com/parcelverse/marketplace-api/internal/types"
	"go.uber.org/zap"
)

// MerkleService owns the root registry and the consumed-leaf set. It is the
// only component that mutates either; consumption is monotonic and a leaf
// can be consumed at most once.
type MerkleService struct {
	store  store.MarketStore
	logger *zap.Logger
}

// NewMerkleService creates a merkle authorizer over the given store
func NewMerkleService(st store.MarketStore) *MerkleService {
	return &MerkleService{store: st, logger: logger.Log}
}

// LazyClaim is one not-yet-minted item with its commitment proof
type LazyClaim struct {
	Root       common.Hash          `json:"root"`
	Descriptor types.ItemDescriptor `json:"descriptor"`
	Proof      []common.Hash        `json:"proof"`
}

// SetRoot registers or deactivates a root. Idempotent; deactivation blocks
// future consumption but cannot undo past consumptions.
func (s *MerkleService) SetRoot(ctx context.Context, root common.Hash, active bool) error {
	if err := s.store.SetRoot(ctx, root, active); err != nil {
		return err
	}
	s.logger.Info("Merkle root updated",
		zap.String("root", root.Hex()),
		zap.Bool("active", active),
	)
	return nil
}

// Verify checks a claim against the registered roots without consuming the
// leaf. Pure with respect to store state.
func (s *MerkleService) Verify(ctx context.Context, claim LazyClaim) error {
	active, err := s.store.RootActive(ctx, claim.Root)
	if err != nil {
		return err
	}
	if !active {
		return types.ErrUnregisteredRoot
	}

	node := claim.Descriptor.LeafHash()
	for _, sibling := range claim.Proof {
		node = types.HashPair(node, sibling)
	}
	if node != claim.Root {
		return types.ErrInvalidProof
	}

	consumed, err := s.store.LeafConsumed(ctx, claim.Descriptor.LeafHash())
	if err != nil {
		return err
	}
	if consumed {
		return types.ErrAlreadyConsumed
	}
	return nil
}

// VerifyAndConsume verifies the claim and marks its leaf consumed. At most
// one caller succeeds for a given leaf.
func (s *MerkleService) VerifyAndConsume(ctx context.Context, claim LazyClaim) error {
	if err := s.Verify(ctx, claim); err != nil {
		return err
	}
	return s.store.ConsumeLeaf(ctx, claim.Descriptor.LeafHash())
}

// VerifyAndConsumeBatch consumes a set of claims all-or-nothing: any single
// failure aborts the batch with no partial consumption.
func (s *MerkleService) VerifyAndConsumeBatch(ctx context.Context, claims []LazyClaim) error {
	leaves := make([]common.Hash, len(claims))
	for i, claim := range claims {
		if err := s.Verify(ctx, claim); err != nil {
			return err
		}
		leaves[i] = claim.Descriptor.LeafHash()
	}
	return s.store.ConsumeLeaves(ctx, leaves)
}
