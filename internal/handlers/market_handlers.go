package handlers

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/parcelverse/marketplace-api/internal/services"
	"github.com/parcelverse/marketplace-api/internal/types"
)

// MarketHandler handles settlement operations
type MarketHandler struct {
	common *CommonServices
}

// NewMarketHandler creates a new instance of MarketHandler
func NewMarketHandler(common *CommonServices) *MarketHandler {
	return &MarketHandler{common: common}
}

// OrderPayload is the wire form of a sale order
type OrderPayload struct {
	Seller           string   `json:"seller" binding:"required"`
	ExecuteBySeller  bool     `json:"execute_by_seller"`
	Collection       string   `json:"collection" binding:"required"`
	ItemIDs          []string `json:"item_ids"`
	ItemAmounts      []string `json:"item_amounts"`
	ItemHashes       []string `json:"item_hashes"`
	MinPrice         string   `json:"min_price" binding:"required"`
	ValidUntil       uint64   `json:"valid_until" binding:"required"`
	IsSingleStandard bool     `json:"is_single_standard"`
	SpecialVenue     bool     `json:"special_venue"`
}

// SignaturePayload is a (v, r, s) signature over the batch digest
type SignaturePayload struct {
	V uint8  `json:"v" binding:"required"`
	R string `json:"r" binding:"required"`
	S string `json:"s" binding:"required"`
}

// DescriptorPayload is the wire form of a not-yet-minted item descriptor
type DescriptorPayload struct {
	To       string `json:"to" binding:"required"`
	ItemID   string `json:"item_id" binding:"required"`
	Category string `json:"category" binding:"required"`
	Size     string `json:"size" binding:"required"`
}

// ClaimPayload pairs a descriptor with its Merkle proof and root
type ClaimPayload struct {
	Root       string            `json:"root" binding:"required"`
	Descriptor DescriptorPayload `json:"descriptor" binding:"required"`
	Proof      []string          `json:"proof"`
}

// BuyRequest is the settlement surface: a signed batch, the single order
// being executed, proofs for lazy-minted items and the offered payment.
type BuyRequest struct {
	Buyer         string           `json:"buyer" binding:"required"`
	OrderHashes   []string         `json:"order_hashes" binding:"required"`
	Signature     SignaturePayload `json:"signature" binding:"required"`
	Index         int              `json:"index"`
	Order         OrderPayload     `json:"order" binding:"required"`
	Claims        []ClaimPayload   `json:"claims"`
	FillAmounts   []string         `json:"fill_amounts"`
	PaymentAmount string           `json:"payment_amount" binding:"required"`
}

// BuyResponse returns the durable settlement record
type BuyResponse struct {
	ID        string `json:"id"`
	OrderHash string `json:"order_hash"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Price     string `json:"price"`
	Fee       string `json:"fee"`
	SettledAt int64  `json:"settled_at"`
}

// Buy godoc
// @Summary Execute one order out of a signed batch
// @Description Validates the seller signature and batch membership, provisions the items to the buyer and settles payment atomically
// @Tags market
// @Accept json
// @Produce json
// @Success 200 {object} BuyResponse
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /market/buy [post]
func (h *MarketHandler) Buy(c *gin.Context) {
	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	buyReq, err := toBuyRequest(&req)
	if err != nil {
		sendError(c, http.StatusBadRequest, err.Error(), err)
		return
	}

	rec, err := h.common.settlement.Buy(c.Request.Context(), buyReq)
	if err != nil {
		sendMarketError(c, err)
		return
	}

	sendSuccess(c, http.StatusOK, BuyResponse{
		ID:        rec.ID.String(),
		OrderHash: rec.OrderHash.Hex(),
		Buyer:     rec.Buyer.Hex(),
		Seller:    rec.Seller.Hex(),
		Price:     rec.Price.String(),
		Fee:       rec.Fee.String(),
		SettledAt: rec.SettledAt.Unix(),
	})
}

func toBuyRequest(req *BuyRequest) (*services.BuyRequest, error) {
	buyer, ok := parseAddress(req.Buyer)
	if !ok {
		return nil, &types.MarketError{Code: "bad_request", Message: "invalid buyer address"}
	}
	payment, ok := parseBig(req.PaymentAmount)
	if !ok {
		return nil, &types.MarketError{Code: "bad_request", Message: "invalid payment amount"}
	}

	hashes := make([]common.Hash, len(req.OrderHashes))
	for i, s := range req.OrderHashes {
		h, ok := parseHash(s)
		if !ok {
			return nil, &types.MarketError{Code: "bad_request", Message: "invalid order hash"}
		}
		hashes[i] = h
	}
	r, okR := parseHash(req.Signature.R)
	s, okS := parseHash(req.Signature.S)
	if !okR || !okS {
		return nil, &types.MarketError{Code: "bad_request", Message: "invalid signature"}
	}

	order, err := toOrder(&req.Order)
	if err != nil {
		return nil, err
	}

	claims := make([]services.LazyClaim, len(req.Claims))
	for i := range req.Claims {
		claim, err := toClaim(&req.Claims[i])
		if err != nil {
			return nil, err
		}
		claims[i] = claim
	}

	fills := make([]*big.Int, len(req.FillAmounts))
	for i, v := range req.FillAmounts {
		n, ok := parseBig(v)
		if !ok {
			return nil, &types.MarketError{Code: "bad_request", Message: "invalid fill amount"}
		}
		fills[i] = n
	}

	return &services.BuyRequest{
		Buyer: buyer,
		Batch: types.SignedBatch{
			OrderHashes: hashes,
			Sig:         types.Signature{V: req.Signature.V, R: r, S: s},
		},
		Index:         req.Index,
		Order:         *order,
		Claims:        claims,
		FillAmounts:   fills,
		PaymentAmount: payment,
	}, nil
}

func toOrder(p *OrderPayload) (*types.Order, error) {
	seller, okSeller := parseAddress(p.Seller)
	collection, okCollection := parseAddress(p.Collection)
	minPrice, okPrice := parseBig(p.MinPrice)
	if !okSeller || !okCollection || !okPrice {
		return nil, &types.MarketError{Code: "bad_request", Message: "invalid order fields"}
	}

	order := &types.Order{
		Seller:           seller,
		ExecuteBySeller:  p.ExecuteBySeller,
		Collection:       collection,
		MinPrice:         minPrice,
		ValidUntil:       p.ValidUntil,
		IsSingleStandard: p.IsSingleStandard,
		SpecialVenue:     p.SpecialVenue,
	}
	for _, s := range p.ItemIDs {
		id, ok := parseBig(s)
		if !ok {
			return nil, &types.MarketError{Code: "bad_request", Message: "invalid item id"}
		}
		order.ItemIDs = append(order.ItemIDs, id)
	}
	for _, s := range p.ItemAmounts {
		amount, ok := parseBig(s)
		if !ok {
			return nil, &types.MarketError{Code: "bad_request", Message: "invalid item amount"}
		}
		order.ItemAmounts = append(order.ItemAmounts, amount)
	}
	for _, s := range p.ItemHashes {
		h, ok := parseHash(s)
		if !ok {
			return nil, &types.MarketError{Code: "bad_request", Message: "invalid item hash"}
		}
		order.ItemHashes = append(order.ItemHashes, h)
	}
	return order, nil
}

func toClaim(p *ClaimPayload) (services.LazyClaim, error) {
	root, okRoot := parseHash(p.Root)
	to, okTo := parseAddress(p.Descriptor.To)
	itemID, okID := parseBig(p.Descriptor.ItemID)
	category, okCat := parseBig(p.Descriptor.Category)
	size, okSize := parseBig(p.Descriptor.Size)
	if !okRoot || !okTo || !okID || !okCat || !okSize {
		return services.LazyClaim{}, &types.MarketError{Code: "bad_request", Message: "invalid claim fields"}
	}

	claim := services.LazyClaim{
		Root: root,
		Descriptor: types.ItemDescriptor{
			To:       to,
			ItemID:   itemID,
			Category: category,
			Size:     size,
		},
	}
	for _, s := range p.Proof {
		h, ok := parseHash(s)
		if !ok {
			return services.LazyClaim{}, &types.MarketError{Code: "bad_request", Message: "invalid proof element"}
		}
		claim.Proof = append(claim.Proof, h)
	}
	return claim, nil
}
