package api

import (
	"net/http"

	"modelhub_go_backend/internal/auth"
	"modelhub_go_backend/internal/errors"
	"modelhub_go_backend/internal/services"
	"modelhub_go_backend/internal/wsocket"

	"github.com/gin-gonic/gin"
)

// Dependencies bundles everything the HTTP layer calls into.
type Dependencies struct {
	Auth       *auth.Authenticator
	Chat       *services.ChatService
	Store      services.ChatServiceDB
	Catalog    services.CatalogServiceDB
	Users      *services.UserService
	Usage      *services.UsageService
	Quota      *services.QuotaService
	Statements *services.StatementService
	// Stripe is nil when billing is not configured.
	Stripe    *services.StripeService
	WebSocket *wsocket.Handler
}

func SetupRoutes(r *gin.Engine, d Dependencies) {
	authed := d.Auth.AuthMiddleware()
	optional := d.Auth.OptionalAuthMiddleware()

	api := r.Group("/api")
	{
		api.GET("/health", healthHandler)
		auth.SetupRoutes(api, d.Auth)

		api.POST("/chat", optional, chatHandler(d.Chat))
		api.POST("/messages/:id/regenerate", authed, regenerateHandler(d.Chat))

		conv := api.Group("/conversations", authed)
		{
			conv.GET("", listConversationsHandler(d.Store))
			conv.POST("", createConversationHandler(d.Chat, d.Store))
			conv.GET("/:id", getConversationHandler(d.Store))
			conv.PUT("/:id", updateConversationHandler(d.Store))
			conv.PATCH("/:id", updateConversationHandler(d.Store))
			conv.DELETE("/:id", deleteConversationHandler(d.Store))
			conv.GET("/:id/messages", conversationMessagesHandler(d.Store))
			conv.DELETE("/:id/delete", deleteConversationHandler(d.Store))
		}

		market := api.Group("/marketplace")
		{
			market.GET("/providers", listProvidersHandler(d.Catalog))
			market.GET("/models", listModelsHandler(d.Catalog))
			// Model ids look like "vendor/name".
			market.GET("/models/:vendor", getModelHandler(d.Catalog))
			market.GET("/models/:vendor/:name", getModelHandler(d.Catalog))
			market.GET("/categories", categoriesHandler(d.Catalog))
			market.GET("/featured", featuredHandler(d.Catalog))
			market.GET("/stats", catalogStatsHandler(d.Catalog))
		}

		users := api.Group("/users", authed)
		{
			users.GET("/profile", profileHandler)
			users.PUT("/profile", updateProfileHandler(d.Users))
			users.PATCH("/profile", updateProfileHandler(d.Users))
			users.PUT("/update-limits", updateLimitsHandler(d.Users))
			users.POST("/update-limits", updateLimitsHandler(d.Users))
			users.GET("/stats", userStatsHandler(d.Users))
			users.POST("/verify-api-key", verifyAPIKeyHandler(d.Users))
			users.GET("/api-keys", listAPIKeysHandler(d.Users))
			users.POST("/api-keys", createAPIKeyHandler(d.Users))
			users.GET("/api-keys/:id", getAPIKeyHandler(d.Users))
			users.DELETE("/api-keys/:id", deleteAPIKeyHandler(d.Users))
		}

		usage := api.Group("/usage", authed)
		{
			usage.GET("/records", usageRecordsHandler(d.Usage))
			usage.GET("/daily", dailyUsageHandler(d.Usage))
			usage.GET("/monthly", monthlyUsageHandler(d.Usage))
			usage.GET("/alerts", alertsHandler(d.Usage))
			usage.POST("/alerts/:id/read", markAlertReadHandler(d.Usage))
			usage.GET("/dashboard", dashboardHandler(d.Usage))
			usage.GET("/statistics", statisticsHandler(d.Usage))
			usage.GET("/quotas", quotasHandler(d.Quota))
			usage.GET("/statement", statementHandler(d.Statements, d.Usage))
		}

		billing := api.Group("/billing")
		{
			billing.POST("/top-up", authed, topUpHandler(d.Stripe))
			billing.POST("/webhook", stripeWebhookHandler(d.Stripe, d.Users))
		}
	}

	r.GET("/ws", authed, func(c *gin.Context) {
		d.WebSocket.HandleWebSocket(c.Writer, c.Request, auth.CurrentUser(c))
	})
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		errors.HandleError(c, errors.NewBindingError(err))
		return false
	}
	return true
}
