package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// FeeDenominator is the basis-point denominator for fee math
const FeeDenominator = 10000

// TreasuryConfig holds the fee routing configuration. When FeeOnTop is set
// the buyer is charged price plus fees and the seller receives the full
// price; otherwise fees come out of the price.
type TreasuryConfig struct {
	Treasury        common.Address `json:"treasury"`
	FeeBps          uint64         `json:"fee_bps"`
	SecondaryFeeBps uint64         `json:"secondary_fee_bps"`
	SecondaryPool   common.Address `json:"secondary_pool"`
	FeeOnTop        bool           `json:"fee_on_top"`
}

// SettlementRecord is the durable audit record emitted for every
// successful settlement, keyed by the order hash.
type SettlementRecord struct {
	ID        uuid.UUID      `json:"id"`
	OrderHash common.Hash    `json:"order_hash"`
	Buyer     common.Address `json:"buyer"`
	Seller    common.Address `json:"seller"`
	Price     *big.Int       `json:"price"`
	Fee       *big.Int       `json:"fee"`
	SettledAt time.Time      `json:"settled_at"`
}
