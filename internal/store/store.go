package store

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/parcelverse/marketplace-api/internal/types"
)

// MarketStore owns the durable marketplace state: the Merkle root registry,
// the consumed-leaf set, per-order remaining-fill counters, the treasury
// configuration and the collection whitelist. Consumption is monotonic:
// consumed leaves and retired orders are never removed.
type MarketStore interface {
	// SetRoot toggles a Merkle root's active flag; idempotent.
	SetRoot(ctx context.Context, root common.Hash, active bool) error
	RootActive(ctx context.Context, root common.Hash) (bool, error)

	// ConsumeLeaf marks a leaf as consumed. Returns ErrAlreadyConsumed on a
	// duplicate; at most one caller ever succeeds for a given leaf.
	ConsumeLeaf(ctx context.Context, leaf common.Hash) error
	// ConsumeLeaves consumes a set of leaves all-or-nothing: a duplicate
	// anywhere in the set (against the store or within the set itself)
	// fails the whole call with nothing consumed.
	ConsumeLeaves(ctx context.Context, leaves []common.Hash) error
	LeafConsumed(ctx context.Context, leaf common.Hash) (bool, error)

	// RemainingFill reports the per-item remaining units for a multi-unit
	// order. ok is false if no fill has been recorded yet.
	RemainingFill(ctx context.Context, orderHash common.Hash) (remaining []*big.Int, ok bool, err error)
	SetRemainingFill(ctx context.Context, orderHash common.Hash, remaining []*big.Int) error

	// RetireOrder permanently marks an order as non-reexecutable.
	RetireOrder(ctx context.Context, orderHash common.Hash) error
	OrderRetired(ctx context.Context, orderHash common.Hash) (bool, error)

	TreasuryConfig(ctx context.Context) (types.TreasuryConfig, error)
	SetTreasuryConfig(ctx context.Context, cfg types.TreasuryConfig) error

	CollectionAllowed(ctx context.Context, collection common.Address) (bool, error)
	SetCollectionAllowed(ctx context.Context, collection common.Address, allowed bool) error

	RecordSettlement(ctx context.Context, rec types.SettlementRecord) error
	Settlements(ctx context.Context, orderHash common.Hash) ([]types.SettlementRecord, error)
}
