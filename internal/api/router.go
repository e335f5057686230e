package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"iot-ledger-backend/config"
	"iot-ledger-backend/internal/device"
	"iot-ledger-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(device.JSONFieldName)
		if err := device.RegisterRules(v); err != nil {
			log.Printf("Error registering validation rules: %v", err)
		}
	}

	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	sessionLimiter := mw.KeyedRateLimiter(
		mw.NewClientLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		func(c *gin.Context) string { return c.GetString(ctxToken) },
	)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/session/connect", h.Connect)
		api.GET("/vapid_public_key", caching, h.GetVAPIDPublicKey)

		authed := api.Group("", h.RequireSession, sessionLimiter)
		authed.GET("/session", h.GetSession)
		authed.POST("/session/disconnect", h.Disconnect)

		authed.GET("/devices", h.ListDevices)
		authed.POST("/devices", h.RegisterDevice)
		authed.PATCH("/devices/:hash/status", h.UpdateDeviceStatus)
		authed.POST("/devices/:hash/transfer", h.TransferDevice)

		authed.POST("/data", h.SubmitData)
		authed.POST("/data/batch", h.SubmitBatch)
		authed.POST("/data/:hash/validate", h.ValidateData)
		authed.GET("/data/:hash/records", h.GetRecords)
		authed.POST("/data/:hash/verify", h.RequestVerification)
		authed.GET("/disputes", h.GetDisputes)

		authed.GET("/rewards", h.GetRewards)
		authed.POST("/rewards/claim", h.ClaimRewards)

		authed.GET("/notifications", h.GetNotifications)
		authed.DELETE("/notifications", h.ClearNotifications)

		authed.GET("/subscriptions", h.GetSubscription)
		authed.PUT("/subscriptions", h.PutSubscription)
		authed.DELETE("/subscriptions", h.DeleteSubscription)

		admin := authed.Group("/admin", h.RequireAdmin)
		admin.POST("/roles/grant", h.GrantAdmin)
		admin.POST("/roles/revoke", h.RevokeAdmin)
		admin.PUT("/oracle", h.UpdateOracle)
		admin.POST("/disputes/resolve", h.ResolveDispute)
	}

	return r
}
