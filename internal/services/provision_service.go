package services

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/parcelverse/marketplace-api/internal/chain"
	"github.com/parcelverse/marketplace-api/internal/logger"
	"github.com/parcelverse/marketplace-api/internal/types"
	"go.uber.org/zap"
)

// ProvisionService makes an order's items available to the buyer: items
// already in the registry are transferred from the seller, items that exist
// only as Merkle commitments are minted directly to the buyer after proof
// verification and leaf consumption.
type ProvisionService struct {
	registry chain.ItemRegistry
	merkle   *MerkleService
	operator common.Address
	logger   *zap.Logger
}

// NewProvisionService creates a provisioner acting as the given marketplace operator
func NewProvisionService(registry chain.ItemRegistry, merkle *MerkleService, operator common.Address) *ProvisionService {
	return &ProvisionService{
		registry: registry,
		merkle:   merkle,
		operator: operator,
		logger:   logger.Log,
	}
}

type provisionKind int

const (
	provisionDirect provisionKind = iota
	provisionUnits
	provisionLazy
)

// provisionItem is the resolved form of one item in an order. The direct
// vs. lazy decision is made once here, not re-branched during execution.
type provisionItem struct {
	kind   provisionKind
	id     *big.Int
	amount *big.Int
	claim  LazyClaim
}

// Plan is a fully resolved provisioning of one order
type Plan struct {
	order *types.Order
	items []provisionItem
}

// Resolve validates the shape of the order against the supplied lazy claims
// and fill amounts and resolves every item to a direct, unit or lazy
// provisioning. No state is touched.
func (s *ProvisionService) Resolve(order *types.Order, claims []LazyClaim, fillAmounts []*big.Int) (*Plan, error) {
	plan := &Plan{order: order}

	if order.IsSingleStandard {
		if len(claims) != len(order.ItemHashes) {
			return nil, types.ErrInvalidProof
		}
		for i, claim := range claims {
			// the proof must be for the exact commitment the seller signed
			if claim.Descriptor.LeafHash() != order.ItemHashes[i] {
				return nil, types.ErrInvalidProof
			}
			plan.items = append(plan.items, provisionItem{kind: provisionLazy, claim: claim})
		}
		for _, id := range order.ItemIDs {
			plan.items = append(plan.items, provisionItem{kind: provisionDirect, id: id})
		}
		return plan, nil
	}

	// multi-unit orders move amounts of already-minted items only
	if len(order.ItemHashes) != 0 || len(claims) != 0 {
		return nil, types.ErrInvalidProof
	}
	if len(order.ItemIDs) != len(order.ItemAmounts) || len(fillAmounts) != len(order.ItemIDs) {
		return nil, types.ErrOrderExhausted
	}
	for i, id := range order.ItemIDs {
		if fillAmounts[i] == nil || fillAmounts[i].Sign() <= 0 {
			return nil, types.ErrOrderExhausted
		}
		plan.items = append(plan.items, provisionItem{kind: provisionUnits, id: id, amount: fillAmounts[i]})
	}
	return plan, nil
}

// Preflight runs every check that could fail during provisioning without
// mutating anything: ownership, operator approval, unit balances, root
// registration, proof validity and leaf availability.
func (s *ProvisionService) Preflight(ctx context.Context, plan *Plan) error {
	seller := plan.order.Seller
	for _, item := range plan.items {
		switch item.kind {
		case provisionDirect:
			owner, err := s.registry.OwnerOf(ctx, item.id)
			if err != nil {
				return err
			}
			if owner != seller {
				return types.ErrNotOwner
			}
			if err := s.checkApproval(ctx, seller); err != nil {
				return err
			}
		case provisionUnits:
			bal, err := s.registry.UnitBalance(ctx, seller, item.id)
			if err != nil {
				return err
			}
			if bal.Cmp(item.amount) < 0 {
				return types.ErrNotOwner
			}
			if err := s.checkApproval(ctx, seller); err != nil {
				return err
			}
		case provisionLazy:
			if err := s.merkle.Verify(ctx, item.claim); err != nil {
				return err
			}
		}
	}
	return nil
}

// Execute performs the resolved provisioning for the buyer. Lazy leaves are
// consumed as one all-or-nothing batch before any mint, so a late proof
// failure cannot leave a partially consumed order.
func (s *ProvisionService) Execute(ctx context.Context, plan *Plan, buyer common.Address) error {
	var lazy []LazyClaim
	for _, item := range plan.items {
		if item.kind == provisionLazy {
			lazy = append(lazy, item.claim)
		}
	}
	if len(lazy) > 0 {
		if err := s.merkle.VerifyAndConsumeBatch(ctx, lazy); err != nil {
			return err
		}
	}

	seller := plan.order.Seller
	for _, item := range plan.items {
		switch item.kind {
		case provisionDirect:
			if err := s.registry.TransferFrom(ctx, seller, buyer, item.id); err != nil {
				return err
			}
		case provisionUnits:
			if err := s.registry.TransferUnits(ctx, seller, buyer, item.id, item.amount); err != nil {
				return err
			}
		case provisionLazy:
			id, err := s.registry.MintTo(ctx, buyer, item.claim.Descriptor)
			if err != nil {
				return err
			}
			s.logger.Info("Lazy-minted item",
				zap.String("item_id", id.String()),
				zap.String("buyer", buyer.Hex()),
				zap.String("root", item.claim.Root.Hex()),
			)
		}
	}
	return nil
}

func (s *ProvisionService) checkApproval(ctx context.Context, seller common.Address) error {
	if seller == s.operator {
		return nil
	}
	approved, err := s.registry.IsApprovedForAll(ctx, seller, s.operator)
	if err != nil {
		return err
	}
	if !approved {
		return types.ErrTransferNotApproved
	}
	return nil
}
