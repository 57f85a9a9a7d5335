package services

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/parcelverse/marketplace-api/internal/chain"
	"github.com/parcelverse/marketplace-api/internal/logger"
	"github.com/parcelverse/marketplace-api/internal/types"
	"go.uber.org/zap"
)

// StakingService accrues linear per-block rewards for staked items, scaled
// by a per-item tier multiplier. Staked items move into the marketplace
// custody address; rewards are paid out of a funded pool.
type StakingService struct {
	mu             sync.Mutex
	registry       chain.ItemRegistry
	ledger         chain.TokenLedger
	custody        common.Address
	pool           common.Address
	rewardPerBlock *big.Int
	tiers          map[string]*big.Int
	stakes         map[string]*stakeEntry
	totalTiers     *big.Int
	block          func() uint64
	logger         *zap.Logger
}

type stakeEntry struct {
	staker     common.Address
	itemID     *big.Int
	tier       *big.Int
	sinceBlock uint64
}

// NewStakingService creates a staking pool. block supplies the current
// block height of the host ledger.
func NewStakingService(registry chain.ItemRegistry, ledger chain.TokenLedger, custody, pool common.Address, block func() uint64) *StakingService {
	return &StakingService{
		registry:       registry,
		ledger:         ledger,
		custody:        custody,
		pool:           pool,
		rewardPerBlock: new(big.Int),
		tiers:          make(map[string]*big.Int),
		stakes:         make(map[string]*stakeEntry),
		totalTiers:     new(big.Int),
		block:          block,
		logger:         logger.Log,
	}
}

// SetRewardPerBlock updates the emission rate; administrative.
func (s *StakingService) SetRewardPerBlock(reward *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewardPerBlock = new(big.Int).Set(reward)
}

// SetTierInfo assigns the tier multiplier for an item; administrative.
func (s *StakingService) SetTierInfo(itemID, multiplier *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[itemID.String()] = new(big.Int).Set(multiplier)
}

// TotalTiers is the sum of tier multipliers currently staked
func (s *StakingService) TotalTiers() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.totalTiers)
}

// Stake moves the item into custody and starts reward accrual. Fails
// ErrInvalidTier when no tier is configured for the item.
func (s *StakingService) Stake(ctx context.Context, staker common.Address, itemID *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if itemID == nil || itemID.Sign() <= 0 {
		return types.ErrInvalidTier
	}
	tier, ok := s.tiers[itemID.String()]
	if !ok {
		return types.ErrInvalidTier
	}
	if err := s.registry.TransferFrom(ctx, staker, s.custody, itemID); err != nil {
		return err
	}

	s.stakes[itemID.String()] = &stakeEntry{
		staker:     staker,
		itemID:     new(big.Int).Set(itemID),
		tier:       tier,
		sinceBlock: s.block(),
	}
	s.totalTiers = new(big.Int).Add(s.totalTiers, tier)

	s.logger.Info("Item staked",
		zap.String("item_id", itemID.String()),
		zap.String("staker", staker.Hex()),
	)
	return nil
}

// Pending reports the unclaimed reward for a staker across all their items
func (s *StakingService) Pending(staker common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked(staker)
}

// Claim pays out all accrued rewards for the staker and resets accrual.
// Fails ErrNothingStaked when the staker holds no stakes. Accrual is reset
// only after a successful payout, so a failed transfer leaves the pending
// reward intact for a retry.
func (s *StakingService) Claim(ctx context.Context, staker common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := false
	for _, entry := range s.stakes {
		if entry.staker == staker {
			held = true
		}
	}
	if !held {
		return nil, types.ErrNothingStaked
	}

	current := s.block()
	reward := s.pendingLocked(staker)
	if reward.Sign() > 0 {
		if err := s.ledger.TransferFrom(ctx, s.pool, staker, reward); err != nil {
			return nil, err
		}
	}
	for _, entry := range s.stakes {
		if entry.staker == staker {
			entry.sinceBlock = current
		}
	}
	return reward, nil
}

// Withdraw returns the item to the staker, paying out its accrued reward.
// The item transfer and stake removal happen before the payout: a failed
// payout cannot be retried into a second reward for the same accrual.
func (s *StakingService) Withdraw(ctx context.Context, staker common.Address, itemID *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.stakes[itemID.String()]
	if !ok || entry.staker != staker {
		return nil, types.ErrNothingStaked
	}

	reward := s.rewardLocked(entry)
	if err := s.registry.TransferFrom(ctx, s.custody, staker, itemID); err != nil {
		return nil, err
	}
	delete(s.stakes, itemID.String())
	s.totalTiers = new(big.Int).Sub(s.totalTiers, entry.tier)

	if reward.Sign() > 0 {
		if err := s.ledger.TransferFrom(ctx, s.pool, staker, reward); err != nil {
			return nil, err
		}
	}
	return reward, nil
}

func (s *StakingService) pendingLocked(staker common.Address) *big.Int {
	total := new(big.Int)
	for _, entry := range s.stakes {
		if entry.staker == staker {
			total.Add(total, s.rewardLocked(entry))
		}
	}
	return total
}

func (s *StakingService) rewardLocked(entry *stakeEntry) *big.Int {
	current := s.block()
	if current <= entry.sinceBlock {
		return new(big.Int)
	}
	blocks := new(big.Int).SetUint64(current - entry.sinceBlock)
	reward := new(big.Int).Mul(s.rewardPerBlock, entry.tier)
	return reward.Mul(reward, blocks)
}
