package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/parcelverse/marketplace-api/internal/types"
)

// TokenLedger is the fungible payment-token primitive. TransferFrom pulls
// funds on behalf of the marketplace operator and fails when the source
// balance or the operator allowance is insufficient.
type TokenLedger interface {
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
}

// MemoryLedger simulates the payment token. Pulls through TransferFrom
// spend the allowance granted to the configured operator, mirroring how an
// on-ledger marketplace draws approved funds.
type MemoryLedger struct {
	mu         sync.Mutex
	operator   common.Address
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// NewMemoryLedger creates a ledger operated by the given marketplace address
func NewMemoryLedger(operator common.Address) *MemoryLedger {
	return &MemoryLedger{
		operator:   operator,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Credit adds amount to addr's balance; bootstrap and test helper.
func (l *MemoryLedger) Credit(addr common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] = new(big.Int).Add(l.balanceLocked(addr), amount)
}

// Approve grants spender an allowance over owner's balance
func (l *MemoryLedger) Approve(owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[common.Address]*big.Int)
	}
	l.allowances[owner][spender] = new(big.Int).Set(amount)
}

func (l *MemoryLedger) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance := l.allowanceLocked(from, l.operator)
	if from != l.operator && allowance.Cmp(amount) < 0 {
		return types.ErrInsufficientAllowance
	}
	balance := l.balanceLocked(from)
	if balance.Cmp(amount) < 0 {
		return types.ErrInsufficientBalance
	}

	l.balances[from] = new(big.Int).Sub(balance, amount)
	l.balances[to] = new(big.Int).Add(l.balanceLocked(to), amount)
	if from != l.operator {
		l.allowances[from][l.operator] = new(big.Int).Sub(allowance, amount)
	}
	return nil
}

func (l *MemoryLedger) BalanceOf(_ context.Context, addr common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(addr)), nil
}

func (l *MemoryLedger) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.allowanceLocked(owner, spender)), nil
}

func (l *MemoryLedger) balanceLocked(addr common.Address) *big.Int {
	if bal := l.balances[addr]; bal != nil {
		return bal
	}
	return new(big.Int)
}

func (l *MemoryLedger) allowanceLocked(owner, spender common.Address) *big.Int {
	if l.allowances[owner] == nil {
		return new(big.Int)
	}
	if a := l.allowances[owner][spender]; a != nil {
		return a
	}
	return new(big.Int)
}
