package api

import (
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"iot-ledger-backend/internal/model"
	"iot-ledger-backend/internal/parse"
	"iot-ledger-backend/internal/units"
)

type rewardsResponse struct {
	Balance string `json:"balance"`
	Slashed string `json:"slashed"`
	Pending string `json:"pending,omitempty"`
}

// GetRewards reports the caller's reward balance and, when a device is
// given, its unclaimed rewards.
func (h *Handler) GetRewards(c *gin.Context) {
	account := common.HexToAddress(controller(c).Account())

	var deviceHash *common.Hash
	if raw := c.Query("device"); raw != "" {
		dh, err := parse.DeviceHash(raw)
		if err != nil {
			abortParam(c, err)
			return
		}
		deviceHash = &dh
	}

	var balance, slashed, pending *big.Int
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() (err error) {
		balance, err = h.reader.UserBalance(ctx, account)
		return err
	})
	g.Go(func() (err error) {
		slashed, err = h.reader.SlashedBalance(ctx, account)
		return err
	})
	if deviceHash != nil {
		g.Go(func() (err error) {
			pending, err = h.reader.CalculateRewards(ctx, *deviceHash, account)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		abortLedger(c, err)
		return
	}

	resp := rewardsResponse{
		Balance: units.FormatUnits(balance, units.EtherDecimals),
		Slashed: units.FormatUnits(slashed, units.EtherDecimals),
	}
	if pending != nil {
		resp.Pending = units.FormatUnits(pending, units.EtherDecimals)
	}
	c.JSON(http.StatusOK, resp)
}

type claimRequest struct {
	DeviceHash string `json:"deviceHash" binding:"required"`
}

// ClaimRewards claims the accrued rewards of one device.
func (h *Handler) ClaimRewards(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBind(c, err)
		return
	}
	deviceHash, err := parse.DeviceHash(req.DeviceHash)
	if err != nil {
		abortParam(c, err)
		return
	}

	ctrl := controller(c)
	tx, err := h.writer.ClaimRewards(c.Request.Context(), deviceHash)
	if err != nil {
		ctrl.Toast(model.LevelError, fmt.Sprintf("Failed to claim rewards: %v", err))
		abortLedger(c, err)
		return
	}
	ctrl.Toast(model.LevelSuccess, "Reward claim transaction submitted!")
	c.JSON(http.StatusAccepted, gin.H{"txHash": tx.Hex()})
}
