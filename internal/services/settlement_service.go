package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/parcelverse/marketplace-api/internal/logger"
	"github.com/parcelverse/marketplace-api/internal/store"
	"github.com/parcelverse/marketplace-api/internal/types"
	"go.uber.org/zap"
)

// SettlementService validates a selected order out of a signed batch and
// atomically settles it: the item moves, the payment moves, the fee is
// collected, or nothing happens at all.
//
// There is no rollback primitive here, so atomicity is two-phase: every
// check that can fail runs before the first mutation, and the mutations are
// ordered so the payment transfer comes last.
type SettlementService struct {
	mu          sync.Mutex
	store       store.MarketStore
	signatures  *SignatureService
	provisioner *ProvisionService
	fees        *FeeService
	operator    common.Address
	now         func() time.Time
	logger      *zap.Logger
}

// NewSettlementService wires the settlement engine
func NewSettlementService(
	st store.MarketStore,
	signatures *SignatureService,
	provisioner *ProvisionService,
	fees *FeeService,
	operator common.Address,
) *SettlementService {
	return &SettlementService{
		store:       st,
		signatures:  signatures,
		provisioner: provisioner,
		fees:        fees,
		operator:    operator,
		now:         time.Now,
		logger:      logger.Log,
	}
}

// BuyRequest carries everything a caller submits for one settlement: the
// signed batch, the single order being executed with its index, proofs for
// not-yet-minted items, fill amounts for multi-unit orders, and the offered
// payment.
type BuyRequest struct {
	Buyer         common.Address
	Batch         types.SignedBatch
	Index         int
	Order         types.Order
	Claims        []LazyClaim
	FillAmounts   []*big.Int
	PaymentAmount *big.Int
}

// Buy executes one settlement call. Calls are serialized; the first caller
// to consume a leaf or exhaust an order wins and every later call aborts
// with no side effects.
func (s *SettlementService) Buy(ctx context.Context, req *BuyRequest) (*types.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := &req.Order

	// BatchVerified
	if req.Index < 0 || req.Index >= len(req.Batch.OrderHashes) {
		return nil, types.ErrInvalidBatchMembership
	}
	if err := s.signatures.VerifyBatch(order.Seller, req.Batch.OrderHashes, req.Batch.Sig); err != nil {
		return nil, err
	}
	orderHash := order.Hash()
	if orderHash != req.Batch.OrderHashes[req.Index] {
		return nil, types.ErrInvalidBatchMembership
	}

	// ConstraintsChecked
	selfExecute := req.Buyer == order.Seller && order.ExecuteBySeller
	if !selfExecute && uint64(s.now().Unix()) > order.ValidUntil {
		return nil, types.ErrExpiredOrder
	}

	allowed, err := s.store.CollectionAllowed(ctx, order.Collection)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, types.ErrNotWhitelisted
	}

	if req.PaymentAmount == nil || req.PaymentAmount.Sign() < 0 {
		return nil, types.ErrPriceTooLow
	}
	treasuryCfg, err := s.store.TreasuryConfig(ctx)
	if err != nil {
		return nil, err
	}
	split := s.fees.ComputeSplit(req.PaymentAmount, treasuryCfg)
	if !selfExecute {
		// under fee-on-top the buyer's total charge counts toward the floor
		effective := req.PaymentAmount
		if treasuryCfg.FeeOnTop {
			effective = split.TotalCharge
		}
		if effective.Cmp(order.MinPrice) < 0 {
			return nil, types.ErrPriceTooLow
		}
	}

	remaining, err := s.checkFill(ctx, orderHash, order, req.FillAmounts)
	if err != nil {
		return nil, err
	}

	// Provisioned preflight: everything that could fail, checked pure
	plan, err := s.provisioner.Resolve(order, req.Claims, req.FillAmounts)
	if err != nil {
		return nil, err
	}
	if err := s.provisioner.Preflight(ctx, plan); err != nil {
		return nil, err
	}
	if err := s.fees.PreflightFunds(ctx, req.Buyer, s.operator, split.TotalCharge); err != nil {
		return nil, err
	}

	// Mutations: items first, payment last
	if err := s.provisioner.Execute(ctx, plan, req.Buyer); err != nil {
		return nil, err
	}
	if err := s.fees.MoveFunds(ctx, req.Buyer, order.Seller, treasuryCfg, split); err != nil {
		return nil, err
	}

	// Settled
	if err := s.commitFill(ctx, orderHash, order, remaining, req.FillAmounts); err != nil {
		return nil, err
	}

	rec := types.SettlementRecord{
		ID:        uuid.New(),
		OrderHash: orderHash,
		Buyer:     req.Buyer,
		Seller:    order.Seller,
		Price:     new(big.Int).Set(req.PaymentAmount),
		Fee:       new(big.Int).Add(split.Fee, split.SecondaryFee),
		SettledAt: s.now().UTC(),
	}
	if err := s.store.RecordSettlement(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("Order settled",
		zap.String("order_hash", orderHash.Hex()),
		zap.String("buyer", req.Buyer.Hex()),
		zap.String("seller", order.Seller.Hex()),
		zap.String("price", req.PaymentAmount.String()),
		zap.String("fee", rec.Fee.String()),
	)
	return &rec, nil
}

// checkFill verifies the order still has capacity for this execution and
// returns the current remaining-fill vector for multi-unit orders.
func (s *SettlementService) checkFill(ctx context.Context, orderHash common.Hash, order *types.Order, fillAmounts []*big.Int) ([]*big.Int, error) {
	retired, err := s.store.OrderRetired(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	if retired {
		return nil, types.ErrOrderExhausted
	}
	if order.IsSingleStandard {
		return nil, nil
	}

	remaining, ok, err := s.store.RemainingFill(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		remaining = make([]*big.Int, len(order.ItemAmounts))
		for i, amount := range order.ItemAmounts {
			remaining[i] = new(big.Int).Set(amount)
		}
	}
	if len(fillAmounts) != len(remaining) {
		return nil, types.ErrOrderExhausted
	}
	for i, fill := range fillAmounts {
		if fill == nil || fill.Sign() <= 0 || remaining[i].Cmp(fill) < 0 {
			return nil, types.ErrOrderExhausted
		}
	}
	return remaining, nil
}

// commitFill decrements the remaining amounts and retires the order when
// nothing is left. Single-standard orders retire after their first fill.
func (s *SettlementService) commitFill(ctx context.Context, orderHash common.Hash, order *types.Order, remaining, fillAmounts []*big.Int) error {
	if order.IsSingleStandard {
		return s.store.RetireOrder(ctx, orderHash)
	}

	exhausted := true
	for i, fill := range fillAmounts {
		remaining[i] = new(big.Int).Sub(remaining[i], fill)
		if remaining[i].Sign() > 0 {
			exhausted = false
		}
	}
	if err := s.store.SetRemainingFill(ctx, orderHash, remaining); err != nil {
		return err
	}
	if exhausted {
		return s.store.RetireOrder(ctx, orderHash)
	}
	return nil
}
