package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/parcelverse/marketplace-api/internal/handlers"
	"github.com/parcelverse/marketplace-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStakingEndpoints(t *testing.T) {
	adminHeader := map[string]string{"X-Admin-Key": testAdminKey}
	staker := common.HexToAddress("0x0000000000000000000000000000000000000a01")

	t.Run("stake and withdraw round trip", func(t *testing.T) {
		f := newAPIFixture(t)
		itemID := f.registry.Mint(staker)
		f.registry.SetApprovalForAll(staker, apiOperator, true)

		w := f.do(t, http.MethodPost, "/api/v1/admin/staking/tiers", handlers.SetTierRequest{
			ItemID:     itemID.String(),
			Multiplier: "2",
		}, adminHeader)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = f.do(t, http.MethodPost, "/api/v1/market/staking/stake", handlers.StakeRequest{
			Staker: staker.Hex(),
			ItemID: itemID.String(),
		}, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		owner, err := f.registry.OwnerOf(context.Background(), itemID)
		require.NoError(t, err)
		assert.Equal(t, apiOperator, owner)

		w = f.do(t, http.MethodPost, "/api/v1/market/staking/withdraw", handlers.WithdrawRequest{
			Staker: staker.Hex(),
			ItemID: itemID.String(),
		}, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp handlers.RewardResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "0", resp.Reward)

		owner, err = f.registry.OwnerOf(context.Background(), itemID)
		require.NoError(t, err)
		assert.Equal(t, staker, owner)
	})

	t.Run("staking an untiered item is unprocessable", func(t *testing.T) {
		f := newAPIFixture(t)
		itemID := f.registry.Mint(staker)
		f.registry.SetApprovalForAll(staker, apiOperator, true)

		w := f.do(t, http.MethodPost, "/api/v1/market/staking/stake", handlers.StakeRequest{
			Staker: staker.Hex(),
			ItemID: itemID.String(),
		}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var resp handlers.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, types.ErrInvalidTier.Code, resp.Code)
	})

	t.Run("claim with nothing staked is unprocessable", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(t, http.MethodPost, "/api/v1/market/staking/claim", handlers.ClaimRequest{Staker: staker.Hex()}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}
