package store

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parcelverse/marketplace-api/internal/types"
	"github.com/pkg/errors"
)

// PostgresStore is the pgx-backed MarketStore used when DATABASE_URL is
// configured. It implements the same monotonic-consumption semantics as
// MemoryStore, relying on primary-key conflicts for at-most-once leaf
// consumption.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS merkle_roots (
    root        BYTEA PRIMARY KEY,
    active      BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS consumed_leaves (
    leaf        BYTEA PRIMARY KEY,
    consumed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS order_fills (
    order_hash  BYTEA PRIMARY KEY,
    remaining   TEXT[] NOT NULL,
    retired     BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS treasury_config (
    id                 SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    treasury           BYTEA NOT NULL,
    fee_bps            BIGINT NOT NULL,
    secondary_fee_bps  BIGINT NOT NULL,
    secondary_pool     BYTEA NOT NULL,
    fee_on_top         BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS whitelisted_collections (
    collection  BYTEA PRIMARY KEY,
    allowed     BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS settlements (
    id          UUID PRIMARY KEY,
    order_hash  BYTEA NOT NULL,
    buyer       BYTEA NOT NULL,
    seller      BYTEA NOT NULL,
    price       TEXT NOT NULL,
    fee         TEXT NOT NULL,
    settled_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS settlements_order_hash_idx ON settlements (order_hash);
`

// EnsureSchema creates the marketplace tables if they do not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return errors.Wrap(err, "ensure marketplace schema")
}

func (s *PostgresStore) SetRoot(ctx context.Context, root common.Hash, active bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO merkle_roots (root, active) VALUES ($1, $2)
		 ON CONFLICT (root) DO UPDATE SET active = EXCLUDED.active`,
		root.Bytes(), active)
	return errors.Wrap(err, "set merkle root")
}

func (s *PostgresStore) RootActive(ctx context.Context, root common.Hash) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx,
		`SELECT active FROM merkle_roots WHERE root = $1`, root.Bytes()).Scan(&active)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "query merkle root")
	}
	return active, nil
}

func (s *PostgresStore) ConsumeLeaf(ctx context.Context, leaf common.Hash) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO consumed_leaves (leaf) VALUES ($1) ON CONFLICT (leaf) DO NOTHING`,
		leaf.Bytes())
	if err != nil {
		return errors.Wrap(err, "consume leaf")
	}
	if tag.RowsAffected() == 0 {
		return types.ErrAlreadyConsumed
	}
	return nil
}

func (s *PostgresStore) ConsumeLeaves(ctx context.Context, leaves []common.Hash) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin consume batch")
	}
	defer tx.Rollback(ctx)

	for _, leaf := range leaves {
		tag, err := tx.Exec(ctx,
			`INSERT INTO consumed_leaves (leaf) VALUES ($1) ON CONFLICT (leaf) DO NOTHING`,
			leaf.Bytes())
		if err != nil {
			return errors.Wrap(err, "consume leaf in batch")
		}
		if tag.RowsAffected() == 0 {
			return types.ErrAlreadyConsumed
		}
	}
	return errors.Wrap(tx.Commit(ctx), "commit consume batch")
}

func (s *PostgresStore) LeafConsumed(ctx context.Context, leaf common.Hash) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM consumed_leaves WHERE leaf = $1)`, leaf.Bytes()).Scan(&exists)
	return exists, errors.Wrap(err, "query consumed leaf")
}

func (s *PostgresStore) RemainingFill(ctx context.Context, orderHash common.Hash) ([]*big.Int, bool, error) {
	var raw []string
	err := s.pool.QueryRow(ctx,
		`SELECT remaining FROM order_fills WHERE order_hash = $1`, orderHash.Bytes()).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "query remaining fill")
	}
	remaining := make([]*big.Int, len(raw))
	for i, v := range raw {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, false, errors.Errorf("corrupt remaining fill value %q", v)
		}
		remaining[i] = n
	}
	return remaining, true, nil
}

func (s *PostgresStore) SetRemainingFill(ctx context.Context, orderHash common.Hash, remaining []*big.Int) error {
	raw := make([]string, len(remaining))
	for i, n := range remaining {
		raw[i] = n.String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO order_fills (order_hash, remaining) VALUES ($1, $2)
		 ON CONFLICT (order_hash) DO UPDATE SET remaining = EXCLUDED.remaining`,
		orderHash.Bytes(), raw)
	return errors.Wrap(err, "set remaining fill")
}

func (s *PostgresStore) RetireOrder(ctx context.Context, orderHash common.Hash) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO order_fills (order_hash, remaining, retired) VALUES ($1, '{}', TRUE)
		 ON CONFLICT (order_hash) DO UPDATE SET retired = TRUE`,
		orderHash.Bytes())
	return errors.Wrap(err, "retire order")
}

func (s *PostgresStore) OrderRetired(ctx context.Context, orderHash common.Hash) (bool, error) {
	var retired bool
	err := s.pool.QueryRow(ctx,
		`SELECT retired FROM order_fills WHERE order_hash = $1`, orderHash.Bytes()).Scan(&retired)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "query order retired")
	}
	return retired, nil
}

func (s *PostgresStore) TreasuryConfig(ctx context.Context) (types.TreasuryConfig, error) {
	var (
		cfg                     types.TreasuryConfig
		treasury, secondaryPool []byte
		feeBps, secondaryFeeBps int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT treasury, fee_bps, secondary_fee_bps, secondary_pool, fee_on_top
		 FROM treasury_config WHERE id = 1`).
		Scan(&treasury, &feeBps, &secondaryFeeBps, &secondaryPool, &cfg.FeeOnTop)
	if err == pgx.ErrNoRows {
		return types.TreasuryConfig{}, nil
	}
	if err != nil {
		return types.TreasuryConfig{}, errors.Wrap(err, "query treasury config")
	}
	cfg.Treasury = common.BytesToAddress(treasury)
	cfg.SecondaryPool = common.BytesToAddress(secondaryPool)
	cfg.FeeBps = uint64(feeBps)
	cfg.SecondaryFeeBps = uint64(secondaryFeeBps)
	return cfg, nil
}

func (s *PostgresStore) SetTreasuryConfig(ctx context.Context, cfg types.TreasuryConfig) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO treasury_config (id, treasury, fee_bps, secondary_fee_bps, secondary_pool, fee_on_top)
		 VALUES (1, $1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   treasury = EXCLUDED.treasury,
		   fee_bps = EXCLUDED.fee_bps,
		   secondary_fee_bps = EXCLUDED.secondary_fee_bps,
		   secondary_pool = EXCLUDED.secondary_pool,
		   fee_on_top = EXCLUDED.fee_on_top`,
		cfg.Treasury.Bytes(), int64(cfg.FeeBps), int64(cfg.SecondaryFeeBps),
		cfg.SecondaryPool.Bytes(), cfg.FeeOnTop)
	return errors.Wrap(err, "set treasury config")
}

func (s *PostgresStore) CollectionAllowed(ctx context.Context, collection common.Address) (bool, error) {
	var allowed bool
	err := s.pool.QueryRow(ctx,
		`SELECT allowed FROM whitelisted_collections WHERE collection = $1`,
		collection.Bytes()).Scan(&allowed)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "query whitelisted collection")
	}
	return allowed, nil
}

func (s *PostgresStore) SetCollectionAllowed(ctx context.Context, collection common.Address, allowed bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO whitelisted_collections (collection, allowed) VALUES ($1, $2)
		 ON CONFLICT (collection) DO UPDATE SET allowed = EXCLUDED.allowed`,
		collection.Bytes(), allowed)
	return errors.Wrap(err, "set whitelisted collection")
}

func (s *PostgresStore) RecordSettlement(ctx context.Context, rec types.SettlementRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settlements (id, order_hash, buyer, seller, price, fee, settled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.OrderHash.Bytes(), rec.Buyer.Bytes(), rec.Seller.Bytes(),
		rec.Price.String(), rec.Fee.String(), rec.SettledAt)
	return errors.Wrap(err, "record settlement")
}

func (s *PostgresStore) Settlements(ctx context.Context, orderHash common.Hash) ([]types.SettlementRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, order_hash, buyer, seller, price, fee, settled_at
		 FROM settlements WHERE order_hash = $1 ORDER BY settled_at`,
		orderHash.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "query settlements")
	}
	defer rows.Close()

	var recs []types.SettlementRecord
	for rows.Next() {
		var (
			rec                 types.SettlementRecord
			hash, buyer, seller []byte
			price, fee          string
		)
		if err := rows.Scan(&rec.ID, &hash, &buyer, &seller, &price, &fee, &rec.SettledAt); err != nil {
			return nil, errors.Wrap(err, "scan settlement")
		}
		rec.OrderHash = common.BytesToHash(hash)
		rec.Buyer = common.BytesToAddress(buyer)
		rec.Seller = common.BytesToAddress(seller)
		rec.Price, _ = new(big.Int).SetString(price, 10)
		rec.Fee, _ = new(big.Int).SetString(fee, 10)
		recs = append(recs, rec)
	}
	return recs, errors.Wrap(rows.Err(), "iterate settlements")
}
