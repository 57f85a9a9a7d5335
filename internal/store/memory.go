package store

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/parcelverse/marketplace-api/internal/types"
)

// MemoryStore is the in-process MarketStore used for local deployments and
// tests. A single mutex guards all state, which also serializes interleaved
// settlement calls the way the host ledger would.
type MemoryStore struct {
	mu          sync.Mutex
	roots       map[common.Hash]bool
	consumed    map[common.Hash]struct{}
	fills       map[common.Hash][]*big.Int
	retired     map[common.Hash]struct{}
	treasury    types.TreasuryConfig
	collections map[common.Address]bool
	settlements map[common.Hash][]types.SettlementRecord
}

// NewMemoryStore creates an empty in-memory market store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roots:       make(map[common.Hash]bool),
		consumed:    make(map[common.Hash]struct{}),
		fills:       make(map[common.Hash][]*big.Int),
		retired:     make(map[common.Hash]struct{}),
		collections: make(map[common.Address]bool),
		settlements: make(map[common.Hash][]types.SettlementRecord),
	}
}

func (s *MemoryStore) SetRoot(_ context.Context, root common.Hash, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots[root] = active
	return nil
}

func (s *MemoryStore) RootActive(_ context.Context, root common.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roots[root], nil
}

func (s *MemoryStore) ConsumeLeaf(_ context.Context, leaf common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consumed[leaf]; ok {
		return types.ErrAlreadyConsumed
	}
	s.consumed[leaf] = struct{}{}
	return nil
}

func (s *MemoryStore) ConsumeLeaves(_ context.Context, leaves []common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[common.Hash]struct{}, len(leaves))
	for _, leaf := range leaves {
		if _, ok := s.consumed[leaf]; ok {
			return types.ErrAlreadyConsumed
		}
		if _, ok := seen[leaf]; ok {
			return types.ErrAlreadyConsumed
		}
		seen[leaf] = struct{}{}
	}
	for _, leaf := range leaves {
		s.consumed[leaf] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) LeafConsumed(_ context.Context, leaf common.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.consumed[leaf]
	return ok, nil
}

func (s *MemoryStore) RemainingFill(_ context.Context, orderHash common.Hash) ([]*big.Int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining, ok := s.fills[orderHash]
	if !ok {
		return nil, false, nil
	}
	out := make([]*big.Int, len(remaining))
	for i, r := range remaining {
		out[i] = new(big.Int).Set(r)
	}
	return out, true, nil
}

func (s *MemoryStore) SetRemainingFill(_ context.Context, orderHash common.Hash, remaining []*big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]*big.Int, len(remaining))
	for i, r := range remaining {
		stored[i] = new(big.Int).Set(r)
	}
	s.fills[orderHash] = stored
	return nil
}

func (s *MemoryStore) RetireOrder(_ context.Context, orderHash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired[orderHash] = struct{}{}
	return nil
}

func (s *MemoryStore) OrderRetired(_ context.Context, orderHash common.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.retired[orderHash]
	return ok, nil
}

func (s *MemoryStore) TreasuryConfig(_ context.Context) (types.TreasuryConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.treasury, nil
}

func (s *MemoryStore) SetTreasuryConfig(_ context.Context, cfg types.TreasuryConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.treasury = cfg
	return nil
}

func (s *MemoryStore) CollectionAllowed(_ context.Context, collection common.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections[collection], nil
}

func (s *MemoryStore) SetCollectionAllowed(_ context.Context, collection common.Address, allowed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = allowed
	return nil
}

func (s *MemoryStore) RecordSettlement(_ context.Context, rec types.SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements[rec.OrderHash] = append(s.settlements[rec.OrderHash], rec)
	return nil
}

func (s *MemoryStore) Settlements(_ context.Context, orderHash common.Hash) ([]types.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.settlements[orderHash]
	out := make([]types.SettlementRecord, len(recs))
	copy(out, recs)
	return out, nil
}
