package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/parcelverse/marketplace-api/internal/types"
)

// ItemRegistry is the ownership-registry primitive the settlement engine
// consumes. Single-standard items have exactly one owner per ID; multi-unit
// items track per-address unit balances.
type ItemRegistry interface {
	// TransferFrom moves a single-standard item from its current owner.
	// The registry rejects the call unless owner holds the item and has
	// approved the marketplace as operator.
	TransferFrom(ctx context.Context, owner, to common.Address, id *big.Int) error
	// TransferUnits moves amount units of a multi-unit item.
	TransferUnits(ctx context.Context, from, to common.Address, id, amount *big.Int) error
	// MintTo creates a new single-standard item directly for to, bypassing
	// the usual mint-to-grantee step. Only the settlement engine is
	// authorized to mint to an arbitrary recipient.
	MintTo(ctx context.Context, to common.Address, desc types.ItemDescriptor) (*big.Int, error)
	OwnerOf(ctx context.Context, id *big.Int) (common.Address, error)
	UnitBalance(ctx context.Context, owner common.Address, id *big.Int) (*big.Int, error)
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
}

// MemoryRegistry simulates the on-ledger ownership registry. The operator
// address plays the role of the settlement engine's on-ledger identity:
// transfers require the owner to have approved it.
type MemoryRegistry struct {
	mu        sync.Mutex
	operator  common.Address
	owners    map[string]common.Address
	units     map[string]map[common.Address]*big.Int
	approvals map[common.Address]map[common.Address]bool
	nextID    *big.Int
}

// NewMemoryRegistry creates a registry operated by the given marketplace address
func NewMemoryRegistry(operator common.Address) *MemoryRegistry {
	return &MemoryRegistry{
		operator:  operator,
		owners:    make(map[string]common.Address),
		units:     make(map[string]map[common.Address]*big.Int),
		approvals: make(map[common.Address]map[common.Address]bool),
		nextID:    big.NewInt(0),
	}
}

// Mint assigns a fresh item ID to owner; test and bootstrap helper standing
// in for the registry's normal mint path.
func (r *MemoryRegistry) Mint(owner common.Address) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID.Add(r.nextID, big.NewInt(1))
	id := new(big.Int).Set(r.nextID)
	r.owners[id.String()] = owner
	return id
}

// MintUnits credits amount units of item id to owner
func (r *MemoryRegistry) MintUnits(owner common.Address, id, amount *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := id.String()
	if r.units[key] == nil {
		r.units[key] = make(map[common.Address]*big.Int)
	}
	bal := r.units[key][owner]
	if bal == nil {
		bal = new(big.Int)
	}
	r.units[key][owner] = new(big.Int).Add(bal, amount)
}

// SetApprovalForAll records owner's operator approval
func (r *MemoryRegistry) SetApprovalForAll(owner, operator common.Address, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.approvals[owner] == nil {
		r.approvals[owner] = make(map[common.Address]bool)
	}
	r.approvals[owner][operator] = approved
}

func (r *MemoryRegistry) TransferFrom(_ context.Context, owner, to common.Address, id *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.owners[id.String()]
	if !ok || current != owner {
		return types.ErrNotOwner
	}
	if owner != r.operator && !r.approvals[owner][r.operator] {
		return types.ErrTransferNotApproved
	}
	r.owners[id.String()] = to
	return nil
}

func (r *MemoryRegistry) TransferUnits(_ context.Context, from, to common.Address, id, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := id.String()
	bal := r.units[key][from]
	if bal == nil || bal.Cmp(amount) < 0 {
		return types.ErrNotOwner
	}
	if from != r.operator && !r.approvals[from][r.operator] {
		return types.ErrTransferNotApproved
	}
	r.units[key][from] = new(big.Int).Sub(bal, amount)
	if r.units[key][to] == nil {
		r.units[key][to] = new(big.Int)
	}
	r.units[key][to] = new(big.Int).Add(r.units[key][to], amount)
	return nil
}

func (r *MemoryRegistry) MintTo(_ context.Context, to common.Address, _ types.ItemDescriptor) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID.Add(r.nextID, big.NewInt(1))
	id := new(big.Int).Set(r.nextID)
	r.owners[id.String()] = to
	return id, nil
}

func (r *MemoryRegistry) OwnerOf(_ context.Context, id *big.Int) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[id.String()]
	if !ok {
		return common.Address{}, types.ErrNotOwner
	}
	return owner, nil
}

func (r *MemoryRegistry) IsApprovedForAll(_ context.Context, owner, operator common.Address) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.approvals[owner][operator], nil
}

// UnitBalance reports owner's balance of a multi-unit item
func (r *MemoryRegistry) UnitBalance(_ context.Context, owner common.Address, id *big.Int) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal := r.units[id.String()][owner]
	if bal == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bal), nil
}
