package services_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/parcelverse/marketplace-api/internal/chain"
	"github.com/parcelverse/marketplace-api/internal/services"
	"github.com/parcelverse/marketplace-api/internal/store"
	"github.com/parcelverse/marketplace-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// settlementFixture wires the full engine over the in-memory collaborators
type settlementFixture struct {
	store      *store.MemoryStore
	registry   *chain.MemoryRegistry
	ledger     *chain.MemoryLedger
	merkle     *services.MerkleService
	sigs       *services.SignatureService
	svc        *services.SettlementService
	seller     testKey
	buyer      common.Address
	collection common.Address
}

func newSettlementFixture(t *testing.T) *settlementFixture {
	t.Helper()
	f := &settlementFixture{
		store:      store.NewMemoryStore(),
		registry:   chain.NewMemoryRegistry(testOperator),
		ledger:     chain.NewMemoryLedger(testOperator),
		sigs:       newSignatureService(),
		seller:     newKey(t),
		buyer:      common.HexToAddress("0x00000000000000000000000000000000000000f1"),
		collection: common.HexToAddress("0x00000000000000000000000000000000000000c1"),
	}
	f.merkle = services.NewMerkleService(f.store)
	provisioner := services.NewProvisionService(f.registry, f.merkle, testOperator)
	fees := services.NewFeeService(f.ledger)
	f.svc = services.NewSettlementService(f.store, f.sigs, provisioner, fees, testOperator)

	ctx := context.Background()
	require.NoError(t, f.store.SetCollectionAllowed(ctx, f.collection, true))
	require.NoError(t, f.store.SetTreasuryConfig(ctx, types.TreasuryConfig{
		Treasury: testTreasury,
		FeeBps:   250,
	}))
	f.registry.SetApprovalForAll(f.seller.addr, testOperator, true)
	f.fund(f.buyer, 1_000_000)
	return f
}

func (f *settlementFixture) fund(addr common.Address, amount int64) {
	f.ledger.Credit(addr, big.NewInt(amount))
	f.ledger.Approve(addr, testOperator, big.NewInt(amount))
}

// directOrder builds a signed single-item sale of a freshly minted item
func (f *settlementFixture) directOrder(t *testing.T, price int64) (*types.Order, types.SignedBatch, *big.Int) {
	t.Helper()
	itemID := f.registry.Mint(f.seller.addr)
	order := &types.Order{
		Seller:           f.seller.addr,
		Collection:       f.collection,
		ItemIDs:          []*big.Int{itemID},
		MinPrice:         big.NewInt(price),
		ValidUntil:       uint64(time.Now().Add(time.Hour).Unix()),
		IsSingleStandard: true,
	}
	return order, f.signOrders(t, order), itemID
}

func (f *settlementFixture) signOrders(t *testing.T, orders ...*types.Order) types.SignedBatch {
	t.Helper()
	hashes := make([]common.Hash, len(orders))
	for i, o := range orders {
		hashes[i] = o.Hash()
	}
	return types.SignedBatch{
		OrderHashes: hashes,
		Sig:         signBatch(t, f.sigs, f.seller, f.seller.addr, hashes),
	}
}

func (f *settlementFixture) balance(t *testing.T, addr common.Address) int64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(context.Background(), addr)
	require.NoError(t, err)
	return bal.Int64()
}

func TestSettlementService_Buy_Direct(t *testing.T) {
	ctx := context.Background()
	f := newSettlementFixture(t)
	order, batch, itemID := f.directOrder(t, 10000)

	req := &services.BuyRequest{
		Buyer:         f.buyer,
		Batch:         batch,
		Index:         0,
		Order:         *order,
		PaymentAmount: big.NewInt(10000),
	}
	rec, err := f.svc.Buy(ctx, req)
	require.NoError(t, err)

	owner, err := f.registry.OwnerOf(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, f.buyer, owner)
	assert.EqualValues(t, 1_000_000-10000, f.balance(t, f.buyer))
	assert.EqualValues(t, 9750, f.balance(t, f.seller.addr))
	assert.EqualValues(t, 250, f.balance(t, testTreasury))

	assert.Equal(t, order.Hash(), rec.OrderHash)
	assert.EqualValues(t, 250, rec.Fee.Int64())

	recs, err := f.store.Settlements(ctx, order.Hash())
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	t.Run("replay is rejected with no side effects", func(t *testing.T) {
		_, err := f.svc.Buy(ctx, req)
		assert.ErrorIs(t, err, types.ErrOrderExhausted)
		assert.EqualValues(t, 1_000_000-10000, f.balance(t, f.buyer))
	})
}

func TestSettlementService_Buy_BatchMembership(t *testing.T) {
	ctx := context.Background()
	f := newSettlementFixture(t)
	order, batch, _ := f.directOrder(t, 10000)

	t.Run("index out of range", func(t *testing.T) {
		req := &services.BuyRequest{Buyer: f.buyer, Batch: batch, Index: 3, Order: *order, PaymentAmount: big.NewInt(10000)}
		_, err := f.svc.Buy(ctx, req)
		assert.ErrorIs(t, err, types.ErrInvalidBatchMembership)
	})

	t.Run("order body not matching the indexed hash", func(t *testing.T) {
		// the batch signature still verifies; only the membership check fails
		altered := *order
		altered.MinPrice = big.NewInt(1)
		req := &services.BuyRequest{Buyer: f.buyer, Batch: batch, Index: 0, Order: altered, PaymentAmount: big.NewInt(10000)}
		_, err := f.svc.Buy(ctx, req)
		assert.ErrorIs(t, err, types.ErrInvalidBatchMembership)
	})

	t.Run("tampered signature", func(t *testing.T) {
		bad := batch
		bad.Sig.R = common.Hash{1}
		req := &services.BuyRequest{Buyer: f.buyer, Batch: bad, Index: 0, Order: *order, PaymentAmount: big.NewInt(10000)}
		_, err := f.svc.Buy(ctx, req)
		assert.ErrorIs(t, err, types.ErrInvalidSignature)
	})
}

func TestSettlementService_Buy_Constraints(t *testing.T) {
	ctx := context.Background()

	t.Run("expired order", func(t *testing.T) {
		f := newSettlementFixture(t)
		itemID := f.registry.Mint(f.seller.addr)
		order := &types.Order{
			Seller:           f.seller.addr,
			Collection:       f.collection,
			ItemIDs:          []*big.Int{itemID},
			MinPrice:         big.NewInt(10000),
			ValidUntil:       uint64(time.Now().Add(-time.Hour).Unix()),
			IsSingleStandard: true,
		}
		batch := f.signOrders(t, order)
		req := &services.BuyRequest{Buyer: f.buyer, Batch: batch, Index: 0, Order: *order, PaymentAmount: big.NewInt(10000)}
		_, err := f.svc.Buy(ctx, req)
		assert.ErrorIs(t, err, types.ErrExpiredOrder)
	})

	t.Run("payment below the floor", func(t *testing.T) {
		f := newSettlementFixture(t)
		order, batch, _ := f.directOrder(t, 10000)
		req := &services.BuyRequest{Buyer: f.buyer, Batch: batch, Index: 0, Order: *order, PaymentAmount: big.NewInt(9999)}
		_, err := f.svc.Buy(ctx, req)
		assert.ErrorIs(t, err, types.ErrPriceTooLow)
	})

	t.Run("collection not whitelisted", func(t *testing.T) {
		f := newSettlementFixture(t)
		order, batch, _ := f.directOrder(t, 10000)
		require.NoError(t, f.store.SetCollectionAllowed(ctx, f.collection, false))
		req := &services.BuyRequest{Buyer: f.buyer, Batch: batch, Index: 0, Order: *order, PaymentAmount: big.NewInt(10000)}
		_, err := f.svc.Buy(ctx, req)
		assert.ErrorIs(t, err, types.ErrNotWhitelisted)
	})

	t.Run("fee on top counts toward the floor", func(t *testing.T) {
		f := newSettlementFixture(t)
		require.NoError(t, f.store.SetTreasuryConfig(ctx, types.TreasuryConfig{
			Treasury: testTreasury,
			FeeBps:   250,
			FeeOnTop: true,
		}))
		order, batch, _ := f.directOrder(t, 10000)

		// 9800 + 2.5% on top = 10045, which clears the 10000 floor
		req := &services.BuyRequest{Buyer: f.buyer, Batch: batch, Index: 0, Order: *order, PaymentAmount: big.NewInt(9800)}
		_, err := f.svc.Buy(ctx, req)
		require.NoError(t, err)
		assert.EqualValues(t, 9800, f.balance(t, f.seller.addr))
		assert.EqualValues(t, 245, f.balance(t, testTreasury))
	})
}

func TestSettlementService_Buy_SelfExecute(t *testing.T) {
	ctx := context.Background()
	f := newSettlementFixture(t)

	itemID := f.registry.Mint(f.seller.addr)
	order := &types.Order{
		Seller:          f.seller.addr,
		ExecuteBySeller: true,
		Collection:      f.collection,
		ItemIDs:         []*big.Int{itemID},
		MinPrice:        big.NewInt(10000),
		// already expired; self-execution ignores the deadline
		ValidUntil:       uint64(time.Now().Add(-time.Hour).Unix()),
		IsSingleStandard: true,
	}
	batch := f.signOrders(t, order)
	f.fund(f.seller.addr, 1000)

	req := &services.BuyRequest{
		Buyer:         f.seller.addr,
		Batch:         batch,
		Index:         0,
		Order:         *order,
		PaymentAmount: big.NewInt(0),
	}
	_, err := f.svc.Buy(ctx, req)
	require.NoError(t, err)

	owner, err := f.registry.OwnerOf(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, f.seller.addr, owner)

	t.Run("other buyers get no exemption", func(t *testing.T) {
		other, _, _ := f.directOrder(t, 10000)
		other.ValidUntil = uint64(time.Now().Add(-time.Hour).Unix())
		batch2 := f.signOrders(t, other)
		req := &services.BuyRequest{Buyer: f.buyer, Batch: batch2, Index: 0, Order: *other, PaymentAmount: big.NewInt(10000)}
		_, err := f.svc.Buy(ctx, req)
		assert.ErrorIs(t, err, types.ErrExpiredOrder)
	})
}

func TestSettlementService_Buy_LazyMint(t *testing.T) {
	ctx := context.Background()
	f := newSettlementFixture(t)

	desc := testDescriptor(f.buyer, 401)
	root, proofs := buildTree([]common.Hash{desc.LeafHash(), testDescriptor(f.buyer, 402).LeafHash()})
	claim := services.LazyClaim{Root: root, Descriptor: desc, Proof: proofs[0]}

	order := &types.Order{
		Seller:           f.seller.addr,
		Collection:       f.collection,
		ItemHashes:       []common.Hash{desc.LeafHash()},
		MinPrice:         big.NewInt(5000),
		ValidUntil:       uint64(time.Now().Add(time.Hour).Unix()),
		IsSingleStandard: true,
	}
	batch := f.signOrders(t, order)
	req := &services.BuyRequest{
		Buyer:         f.buyer,
		Batch:         batch,
		Index:         0,
		Order:         *order,
		Claims:        []services.LazyClaim{claim},
		PaymentAmount: big.NewInt(5000),
	}

	t.Run("unregistered root aborts before any mutation", func(t *testing.T) {
		_, err := f.svc.Buy(ctx, req)
		assert.ErrorIs(t, err, types.ErrUnregisteredRoot)
		assert.EqualValues(t, 1_000_000, f.balance(t, f.buyer))
		consumed, err := f.store.LeafConsumed(ctx, desc.LeafHash())
		require.NoError(t, err)
		assert.False(t, consumed)
	})

	t.Run("registered root mints to the buyer", func(t *testing.T) {
		require.NoError(t, f.merkle.SetRoot(ctx, root, true))
		_, err := f.svc.Buy(ctx, req)
		require.NoError(t, err)

		consumed, err := f.store.LeafConsumed(ctx, desc.LeafHash())
		require.NoError(t, err)
		assert.True(t, consumed)
		assert.EqualValues(t, 1_000_000-5000, f.balance(t, f.buyer))
	})
}

func TestSettlementService_Buy_Atomicity(t *testing.T) {
	ctx := context.Background()
	f := newSettlementFixture(t)
	order, batch, itemID := f.directOrder(t, 10000)

	// revoke the operator approval so provisioning preflight fails
	f.registry.SetApprovalForAll(f.seller.addr, testOperator, false)

	req := &services.BuyRequest{Buyer: f.buyer, Batch: batch, Index: 0, Order: *order, PaymentAmount: big.NewInt(10000)}
	_, err := f.svc.Buy(ctx, req)
	assert.ErrorIs(t, err, types.ErrTransferNotApproved)

	// no money moved, item untouched, order still live
	assert.EqualValues(t, 1_000_000, f.balance(t, f.buyer))
	owner, err := f.registry.OwnerOf(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, f.seller.addr, owner)
	retired, err := f.store.OrderRetired(ctx, order.Hash())
	require.NoError(t, err)
	assert.False(t, retired)

	t.Run("insufficient funds abort before provisioning", func(t *testing.T) {
		f.registry.SetApprovalForAll(f.seller.addr, testOperator, true)
		poor := common.HexToAddress("0x00000000000000000000000000000000000000f2")
		req := &services.BuyRequest{Buyer: poor, Batch: batch, Index: 0, Order: *order, PaymentAmount: big.NewInt(10000)}
		_, err := f.svc.Buy(ctx, req)
		assert.ErrorIs(t, err, types.ErrInsufficientAllowance)
		owner, err := f.registry.OwnerOf(ctx, itemID)
		require.NoError(t, err)
		assert.Equal(t, f.seller.addr, owner)
	})
}

func TestSettlementService_Buy_PartialFill(t *testing.T) {
	ctx := context.Background()
	f := newSettlementFixture(t)

	itemID := big.NewInt(77)
	f.registry.MintUnits(f.seller.addr, itemID, big.NewInt(10))

	order := &types.Order{
		Seller:      f.seller.addr,
		Collection:  f.collection,
		ItemIDs:     []*big.Int{itemID},
		ItemAmounts: []*big.Int{big.NewInt(10)},
		MinPrice:    big.NewInt(1000),
		ValidUntil:  uint64(time.Now().Add(time.Hour).Unix()),
	}
	batch := f.signOrders(t, order)
	buy := func(fill int64) (*types.SettlementRecord, error) {
		return f.svc.Buy(ctx, &services.BuyRequest{
			Buyer:         f.buyer,
			Batch:         batch,
			Index:         0,
			Order:         *order,
			FillAmounts:   []*big.Int{big.NewInt(fill)},
			PaymentAmount: big.NewInt(1000),
		})
	}

	_, err := buy(6)
	require.NoError(t, err)
	bal, err := f.registry.UnitBalance(ctx, f.buyer, itemID)
	require.NoError(t, err)
	assert.EqualValues(t, 6, bal.Int64())

	t.Run("fill above remaining is rejected", func(t *testing.T) {
		_, err := buy(5)
		assert.ErrorIs(t, err, types.ErrOrderExhausted)
	})

	t.Run("exact remaining retires the order", func(t *testing.T) {
		_, err := buy(4)
		require.NoError(t, err)
		retired, err := f.store.OrderRetired(ctx, order.Hash())
		require.NoError(t, err)
		assert.True(t, retired)

		_, err = buy(1)
		assert.ErrorIs(t, err, types.ErrOrderExhausted)
	})
}
