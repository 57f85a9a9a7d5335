package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StakingHandler handles item staking operations
type StakingHandler struct {
	common *CommonServices
}

// NewStakingHandler creates a new instance of StakingHandler
func NewStakingHandler(common *CommonServices) *StakingHandler {
	return &StakingHandler{common: common}
}

// StakeRequest stakes one item for reward accrual
type StakeRequest struct {
	Staker string `json:"staker" binding:"required"`
	ItemID string `json:"item_id" binding:"required"`
}

// Stake moves the item into custody and starts accrual
func (h *StakingHandler) Stake(c *gin.Context) {
	var req StakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	staker, okAddr := parseAddress(req.Staker)
	itemID, okID := parseBig(req.ItemID)
	if !okAddr || !okID {
		sendError(c, http.StatusBadRequest, "Invalid stake fields", nil)
		return
	}

	if err := h.common.staking.Stake(c.Request.Context(), staker, itemID); err != nil {
		sendMarketError(c, err)
		return
	}
	sendSuccessMessage(c, http.StatusOK, "Item staked")
}

// ClaimRequest claims all accrued rewards for a staker
type ClaimRequest struct {
	Staker string `json:"staker" binding:"required"`
}

// RewardResponse reports a paid-out reward amount
type RewardResponse struct {
	Reward string `json:"reward"`
}

// Claim pays out accrued staking rewards
func (h *StakingHandler) Claim(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	staker, ok := parseAddress(req.Staker)
	if !ok {
		sendError(c, http.StatusBadRequest, "Invalid staker address", nil)
		return
	}

	reward, err := h.common.staking.Claim(c.Request.Context(), staker)
	if err != nil {
		sendMarketError(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, RewardResponse{Reward: reward.String()})
}

// WithdrawRequest returns a staked item to its staker
type WithdrawRequest struct {
	Staker string `json:"staker" binding:"required"`
	ItemID string `json:"item_id" binding:"required"`
}

// Withdraw returns the item and pays out its accrued reward
func (h *StakingHandler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	staker, okAddr := parseAddress(req.Staker)
	itemID, okID := parseBig(req.ItemID)
	if !okAddr || !okID {
		sendError(c, http.StatusBadRequest, "Invalid withdraw fields", nil)
		return
	}

	reward, err := h.common.staking.Withdraw(c.Request.Context(), staker, itemID)
	if err != nil {
		sendMarketError(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, RewardResponse{Reward: reward.String()})
}
