package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers bundles everything RegisterRoutes mounts.
type Handlers struct {
	Gate      *GateHandler
	License   *LicenseHandler
	Quota     *QuotaHandler
	Auth      *AuthHandler
	Dashboard *DashboardHandler
	APIKey    *APIKeyHandler
	Jobs      *JobsHandler
	Health    *HealthHandler
}

// Guards are the per-group access middlewares.
type Guards struct {
	RateLimit gin.HandlerFunc
	Admin     gin.HandlerFunc
	Provision gin.HandlerFunc
	Cron      gin.HandlerFunc
}

func RegisterRoutes(router *gin.Engine, h Handlers, g Guards) {
	if h.Health != nil {
		router.GET("/healthz", h.Health.Check)
	}

	router.POST("/generate", g.RateLimit, h.Gate.Generate)

	apiV1 := router.Group("/api/v1")
	{
		public := apiV1.Group("/licenses", g.RateLimit)
		{
			public.POST("/activate", h.Gate.Activate)
			public.POST("/authorize", h.Gate.Authorize)
		}

		apiV1.POST("/provision/licenses", g.Provision, h.License.Provision)
		apiV1.POST("/auth/login", g.RateLimit, h.Auth.Login)

		admin := apiV1.Group("/admin", g.Admin)
		{
			licenses := admin.Group("/licenses")
			{
				licenses.POST("", h.License.Provision)
				licenses.GET("", h.License.List)
				licenses.GET("/:key", h.License.GetByKey)
				licenses.PATCH("/:key/status", h.License.UpdateStatus)
				licenses.POST("/:key/renew", h.License.Renew)
				licenses.DELETE("/:key/device", h.License.ClearDevice)
			}

			quotas := admin.Group("/quotas")
			{
				quotas.GET("/:userId", h.Quota.Get)
				quotas.PATCH("/:userId", h.Quota.SetLimit)
				quotas.GET("/:userId/history", h.Quota.History)
			}

			admin.POST("/blocklist", h.Quota.Block)
			admin.DELETE("/blocklist", h.Quota.Unblock)

			admin.GET("/dashboard/summary", h.Dashboard.GetSummary)

			apiKeys := admin.Group("/apikeys")
			{
				apiKeys.POST("", h.APIKey.Create)
				apiKeys.GET("", h.APIKey.List)
				apiKeys.DELETE("/:id", h.APIKey.Revoke)
			}
		}
	}

	router.POST("/internal/jobs/reset-quotas", g.Cron, h.Jobs.ResetQuotas)
}
