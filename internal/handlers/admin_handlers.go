package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parcelverse/marketplace-api/internal/types"
)

// AdminHandler handles administrative marketplace configuration
type AdminHandler struct {
	common *CommonServices
}

// NewAdminHandler creates a new instance of AdminHandler
func NewAdminHandler(common *CommonServices) *AdminHandler {
	return &AdminHandler{common: common}
}

// SetMerkleRootRequest registers or deactivates a commitment tree root
type SetMerkleRootRequest struct {
	Root   string `json:"root" binding:"required"`
	Active *bool  `json:"active" binding:"required"`
}

// SetMerkleRoot godoc
// @Summary Register or deactivate a Merkle root
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/merkle-roots [post]
func (h *AdminHandler) SetMerkleRoot(c *gin.Context) {
	var req SetMerkleRootRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	root, ok := parseHash(req.Root)
	if !ok {
		sendError(c, http.StatusBadRequest, "Invalid root hash", nil)
		return
	}

	if err := h.common.merkle.SetRoot(c.Request.Context(), root, *req.Active); err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to update merkle root", err)
		return
	}
	sendSuccessMessage(c, http.StatusOK, "Merkle root updated")
}

// SetTreasuryRequest updates the fee routing configuration
type SetTreasuryRequest struct {
	Treasury        string `json:"treasury" binding:"required"`
	FeeBps          uint64 `json:"fee_bps"`
	SecondaryFeeBps uint64 `json:"secondary_fee_bps"`
	SecondaryPool   string `json:"secondary_pool"`
	FeeOnTop        bool   `json:"fee_on_top"`
}

// SetTreasury godoc
// @Summary Update treasury destination and fee rates
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/treasury [put]
func (h *AdminHandler) SetTreasury(c *gin.Context) {
	var req SetTreasuryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	treasury, ok := parseAddress(req.Treasury)
	if !ok {
		sendError(c, http.StatusBadRequest, "Invalid treasury address", nil)
		return
	}
	// each rate is bounded before summing so the combined check cannot wrap
	if req.FeeBps > types.FeeDenominator || req.SecondaryFeeBps > types.FeeDenominator ||
		req.FeeBps+req.SecondaryFeeBps > types.FeeDenominator {
		sendError(c, http.StatusBadRequest, "Fee rates exceed denominator", nil)
		return
	}

	cfg := types.TreasuryConfig{
		Treasury:        treasury,
		FeeBps:          req.FeeBps,
		SecondaryFeeBps: req.SecondaryFeeBps,
		FeeOnTop:        req.FeeOnTop,
	}
	if req.SecondaryPool != "" {
		pool, ok := parseAddress(req.SecondaryPool)
		if !ok {
			sendError(c, http.StatusBadRequest, "Invalid secondary pool address", nil)
			return
		}
		cfg.SecondaryPool = pool
	}

	if err := h.common.store.SetTreasuryConfig(c.Request.Context(), cfg); err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to update treasury config", err)
		return
	}
	sendSuccessMessage(c, http.StatusOK, "Treasury configuration updated")
}

// SetCollectionRequest toggles a collection on the trading whitelist
type SetCollectionRequest struct {
	Allowed *bool `json:"allowed" binding:"required"`
}

// SetWhitelistedCollection godoc
// @Summary Allow or disallow trading of an item collection
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /admin/collections/{address} [put]
func (h *AdminHandler) SetWhitelistedCollection(c *gin.Context) {
	collection, ok := parseAddress(c.Param("address"))
	if !ok {
		sendError(c, http.StatusBadRequest, "Invalid collection address", nil)
		return
	}
	var req SetCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.common.store.SetCollectionAllowed(c.Request.Context(), collection, *req.Allowed); err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to update collection whitelist", err)
		return
	}
	sendSuccessMessage(c, http.StatusOK, "Collection whitelist updated")
}

// SetRewardRequest updates the staking emission rate
type SetRewardRequest struct {
	RewardPerBlock string `json:"reward_per_block" binding:"required"`
}

// SetStakingReward updates the per-block staking reward
func (h *AdminHandler) SetStakingReward(c *gin.Context) {
	var req SetRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	reward, ok := parseBig(req.RewardPerBlock)
	if !ok {
		sendError(c, http.StatusBadRequest, "Invalid reward amount", nil)
		return
	}

	h.common.staking.SetRewardPerBlock(reward)
	sendSuccessMessage(c, http.StatusOK, "Staking reward updated")
}

// SetTierRequest assigns a staking tier multiplier to an item
type SetTierRequest struct {
	ItemID     string `json:"item_id" binding:"required"`
	Multiplier string `json:"multiplier" binding:"required"`
}

// SetStakingTier assigns a tier multiplier to an item
func (h *AdminHandler) SetStakingTier(c *gin.Context) {
	var req SetTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	itemID, okID := parseBig(req.ItemID)
	multiplier, okMul := parseBig(req.Multiplier)
	if !okID || !okMul {
		sendError(c, http.StatusBadRequest, "Invalid tier fields", nil)
		return
	}

	h.common.staking.SetTierInfo(itemID, multiplier)
	sendSuccessMessage(c, http.StatusOK, "Staking tier updated")
}
