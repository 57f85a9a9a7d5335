package handlers

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/parcelverse/marketplace-api/internal/logger"
	"github.com/parcelverse/marketplace-api/internal/services"
	"github.com/parcelverse/marketplace-api/internal/store"
	"github.com/parcelverse/marketplace-api/internal/types"
	"go.uber.org/zap"
)

// CommonServices holds shared dependencies used across handlers
type CommonServices struct {
	store       store.MarketStore
	settlement  *services.SettlementService
	merkle      *services.MerkleService
	staking     *services.StakingService
	adminAPIKey string
}

// NewCommonServices creates a new instance of CommonServices
func NewCommonServices(
	st store.MarketStore,
	settlement *services.SettlementService,
	merkle *services.MerkleService,
	staking *services.StakingService,
	adminAPIKey string,
) *CommonServices {
	return &CommonServices{
		store:       st,
		settlement:  settlement,
		merkle:      merkle,
		staking:     staking,
		adminAPIKey: adminAPIKey,
	}
}

// ErrorResponse represents a standard error response. Code carries the
// stable settlement error code when the failure is a MarketError.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// sendError logs the error and sends a JSON error response
func sendError(c *gin.Context, statusCode int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)
	c.JSON(statusCode, ErrorResponse{Error: message})
}

// sendMarketError surfaces a settlement failure verbatim so off-chain
// tooling can match on the code
func sendMarketError(c *gin.Context, err error) {
	var merr *types.MarketError
	if !errors.As(err, &merr) {
		sendError(c, http.StatusInternalServerError, "Internal server error", err)
		return
	}
	logger.Warn("Settlement request rejected",
		zap.String("code", merr.Code),
		zap.String("path", c.Request.URL.Path),
	)
	c.JSON(marketErrorStatus(merr), ErrorResponse{Error: merr.Message, Code: merr.Code})
}

// marketErrorStatus maps settlement error codes onto HTTP statuses
func marketErrorStatus(err *types.MarketError) int {
	switch err.Code {
	case types.ErrNotAuthorized.Code:
		return http.StatusForbidden
	case types.ErrAlreadyConsumed.Code, types.ErrOrderExhausted.Code:
		return http.StatusConflict
	case types.ErrInsufficientBalance.Code, types.ErrInsufficientAllowance.Code:
		return http.StatusPaymentRequired
	default:
		return http.StatusUnprocessableEntity
	}
}

func sendSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

func sendSuccessMessage(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, SuccessResponse{Message: message})
}

// parseAddress validates and parses a hex address field
func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// parseHash validates and parses a 0x-prefixed 32-byte hex field
func parseHash(s string) (common.Hash, bool) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

// parseBig parses a base-10 amount field
func parseBig(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, 10)
}
