package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"iot-ledger-backend/internal/session"
)

type connectRequest struct {
	Account string `json:"account" binding:"required"`
}

type connectResponse struct {
	Token   string          `json:"token"`
	Session session.Session `json:"session"`
}

// Connect opens a session for a wallet account.
func (h *Handler) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBind(c, err)
		return
	}

	token, ctrl, err := h.sessions.Connect(c.Request.Context(), req.Account)
	if errors.Is(err, session.ErrInvalidAccount) {
		abortParam(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, connectResponse{Token: token, Session: ctrl.Session()})
}

// GetSession recomputes and returns the session of the caller.
func (h *Handler) GetSession(c *gin.Context) {
	s, err := h.sessions.Refresh(c.Request.Context(), c.GetString(ctxToken))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet not connected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s, "upload": controller(c).Upload()})
}

// Disconnect ends the session of the caller.
func (h *Handler) Disconnect(c *gin.Context) {
	if err := h.sessions.Disconnect(c.Request.Context(), c.GetString(ctxToken)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet not connected"})
		return
	}
	c.Status(http.StatusNoContent)
}
