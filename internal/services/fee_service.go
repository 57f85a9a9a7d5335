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

// FeeService computes the marketplace fee split and routes settlement funds
// between buyer, seller, treasury and the optional secondary pool.
type FeeService struct {
	ledger chain.TokenLedger
	logger *zap.Logger
}

// NewFeeService creates a fee router over the payment token ledger
func NewFeeService(ledger chain.TokenLedger) *FeeService {
	return &FeeService{ledger: ledger, logger: logger.Log}
}

// Split is the result of a fee computation. The conservation invariant
// SellerProceeds + Fee + SecondaryFee == TotalCharge holds for every split.
type Split struct {
	SellerProceeds *big.Int
	Fee            *big.Int
	SecondaryFee   *big.Int
	TotalCharge    *big.Int
}

// ComputeSplit derives the fee amounts from the actual payment price.
// Fees truncate toward zero; the rounding remainder stays with the seller.
func (s *FeeService) ComputeSplit(price *big.Int, cfg types.TreasuryConfig) Split {
	denominator := big.NewInt(types.FeeDenominator)
	fee := new(big.Int).Div(new(big.Int).Mul(price, new(big.Int).SetUint64(cfg.FeeBps)), denominator)
	secondary := new(big.Int).Div(new(big.Int).Mul(price, new(big.Int).SetUint64(cfg.SecondaryFeeBps)), denominator)

	split := Split{Fee: fee, SecondaryFee: secondary}
	if cfg.FeeOnTop {
		split.SellerProceeds = new(big.Int).Set(price)
		split.TotalCharge = new(big.Int).Add(price, new(big.Int).Add(fee, secondary))
	} else {
		split.SellerProceeds = new(big.Int).Sub(price, new(big.Int).Add(fee, secondary))
		split.TotalCharge = new(big.Int).Set(price)
	}
	return split
}

// MoveFunds pulls the total charge from the buyer and credits seller,
// treasury and the secondary pool. Ledger failures propagate unwrapped so
// the engine aborts settlement with the token primitive's own error.
func (s *FeeService) MoveFunds(ctx context.Context, buyer, seller common.Address, cfg types.TreasuryConfig, split Split) error {
	if err := s.ledger.TransferFrom(ctx, buyer, seller, split.SellerProceeds); err != nil {
		return err
	}
	if split.Fee.Sign() > 0 {
		if err := s.ledger.TransferFrom(ctx, buyer, cfg.Treasury, split.Fee); err != nil {
			return err
		}
	}
	if split.SecondaryFee.Sign() > 0 {
		dest := cfg.SecondaryPool
		if dest == (common.Address{}) {
			dest = cfg.Treasury
		}
		if err := s.ledger.TransferFrom(ctx, buyer, dest, split.SecondaryFee); err != nil {
			return err
		}
	}

	s.logger.Debug("Funds routed",
		zap.String("buyer", buyer.Hex()),
		zap.String("seller", seller.Hex()),
		zap.String("proceeds", split.SellerProceeds.String()),
		zap.String("fee", split.Fee.String()),
	)
	return nil
}

// PreflightFunds checks the buyer can cover the total charge before any
// state is mutated, so a doomed payment never follows a completed
// provisioning step.
func (s *FeeService) PreflightFunds(ctx context.Context, buyer common.Address, operator common.Address, total *big.Int) error {
	allowance, err := s.ledger.Allowance(ctx, buyer, operator)
	if err != nil {
		return err
	}
	if allowance.Cmp(total) < 0 {
		return types.ErrInsufficientAllowance
	}
	balance, err := s.ledger.BalanceOf(ctx, buyer)
	if err != nil {
		return err
	}
	if balance.Cmp(total) < 0 {
		return types.ErrInsufficientBalance
	}
	return nil
}
