package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"iot-ledger-backend/internal/mw"
	"iot-ledger-backend/internal/session"
)

const (
	ctxController = "controller"
	ctxToken      = "token"
)

// RequireSession resolves the session token of the request.
func (h *Handler) RequireSession(c *gin.Context) {
	token := c.GetHeader(mw.TokenHeader)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "wallet not connected"})
		return
	}
	ctrl, err := h.sessions.Get(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "wallet not connected"})
		return
	}
	c.Set(ctxController, ctrl)
	c.Set(ctxToken, token)
	c.Next()
}

// RequireAdmin rejects sessions without the admin capability. It must run
// after RequireSession.
func (h *Handler) RequireAdmin(c *gin.Context) {
	if !controller(c).Session().IsAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}
	c.Next()
}

func controller(c *gin.Context) *session.Controller {
	return c.MustGet(ctxController).(*session.Controller)
}
