package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"iot-ledger-backend/internal/model"
	"iot-ledger-backend/internal/parse"
)

type roleRequest struct {
	Account string `json:"account" binding:"required"`
}

// GrantAdmin gives the admin role to an account.
func (h *Handler) GrantAdmin(c *gin.Context) {
	h.changeAdmin(c, true)
}

// RevokeAdmin takes the admin role away from an account.
func (h *Handler) RevokeAdmin(c *gin.Context) {
	h.changeAdmin(c, false)
}

func (h *Handler) changeAdmin(c *gin.Context, grant bool) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBind(c, err)
		return
	}
	account, err := parse.Address(req.Account)
	if err != nil {
		abortParam(c, err)
		return
	}

	ctx := c.Request.Context()
	ctrl := controller(c)
	failure := "Failed to revoke admin role"
	if grant {
		failure = "Failed to grant admin role"
	}

	role, err := h.reader.AdminRole(ctx)
	if err != nil {
		ctrl.Toast(model.LevelError, failure)
		abortLedger(c, err)
		return
	}

	var message string
	if grant {
		_, err = h.writer.GrantRole(ctx, role, account)
		message = fmt.Sprintf("Admin role granted to %s", account.Hex())
	} else {
		_, err = h.writer.RevokeRole(ctx, role, account)
		message = fmt.Sprintf("Admin role revoked from %s", account.Hex())
	}
	if err != nil {
		ctrl.Toast(model.LevelError, failure)
		abortLedger(c, err)
		return
	}

	ctrl.Toast(model.LevelSuccess, message)
	c.JSON(http.StatusOK, gin.H{"message": message})
}

type oracleRequest struct {
	Oracle string `json:"oracle" binding:"required"`
	JobID  string `json:"jobId" binding:"required"`
	Fee    string `json:"fee" binding:"required"`
}

// UpdateOracle points the oracle integration at a new oracle, job and fee.
func (h *Handler) UpdateOracle(c *gin.Context) {
	var req oracleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBind(c, err)
		return
	}
	ctrl := controller(c)

	oracle, err := parse.Address(req.Oracle)
	if err != nil {
		abortParam(c, err)
		return
	}
	jobID, err := parse.JobID(req.JobID)
	if err != nil {
		abortParam(c, err)
		return
	}
	fee, err := parse.Fee(req.Fee)
	if err != nil {
		ctrl.Toast(model.LevelError, "Invalid fee format")
		abortParam(c, err)
		return
	}

	tx, err := h.writer.UpdateOracleConfig(c.Request.Context(), oracle, jobID, fee)
	if err != nil {
		ctrl.Toast(model.LevelError, fmt.Sprintf("Failed to update oracle configuration: %v", err))
		abortLedger(c, err)
		return
	}
	ctrl.Toast(model.LevelSuccess, "Oracle configuration updated successfully")
	c.JSON(http.StatusOK, gin.H{"txHash": tx.Hex()})
}

type resolveRequest struct {
	DeviceHash  string  `json:"deviceHash" binding:"required"`
	RecordIndex *uint64 `json:"recordIndex" binding:"required"`
	Valid       *bool   `json:"valid" binding:"required"`
}

// ResolveDispute settles a pending dispute.
func (h *Handler) ResolveDispute(c *gin.Context) {
	var req resolveRequest
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
	tx, err := h.writer.ResolveDispute(c.Request.Context(), deviceHash, *req.RecordIndex, *req.Valid)
	if err != nil {
		ctrl.Toast(model.LevelError, "Failed to resolve dispute")
		abortLedger(c, err)
		return
	}

	verdict := "invalid"
	if *req.Valid {
		verdict = "valid"
	}
	ctrl.Toast(model.LevelSuccess, "Dispute resolved as "+verdict)
	c.JSON(http.StatusOK, gin.H{"txHash": tx.Hex()})
}
