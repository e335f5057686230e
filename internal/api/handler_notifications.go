package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"iot-ledger-backend/internal/model"
)

// GetNotifications returns the caller's notification queue, oldest first.
func (h *Handler) GetNotifications(c *gin.Context) {
	ns := controller(c).Notifications()
	if ns == nil {
		ns = []model.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": ns})
}

// ClearNotifications empties the caller's notification queue.
func (h *Handler) ClearNotifications(c *gin.Context) {
	controller(c).ClearNotifications()
	c.Status(http.StatusNoContent)
}
