package api

import (
	"io"
	"net/http"

	"modelhub_go_backend/internal/auth"
	"modelhub_go_backend/internal/errors"
	"modelhub_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxWebhookBodyBytes = int64(65536)

func billingDisabled(c *gin.Context) {
	errors.HandleError(c, errors.New404Error("Billing is not configured"))
}

type topUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func topUpHandler(stripeService *services.StripeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if stripeService == nil {
			billingDisabled(c)
			return
		}
		var req topUpRequest
		if !bindJSON(c, &req) {
			return
		}
		session, err := stripeService.CreateTopUpSession(auth.CurrentUser(c).ID, req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": session.ID, "url": session.URL})
	}
}

func stripeWebhookHandler(stripeService *services.StripeService, users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if stripeService == nil {
			billingDisabled(c)
			return
		}
		log := zerolog.Ctx(c.Request.Context())
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.Warn().Err(err).Msg("Error reading webhook body")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
			return
		}

		topUp, err := stripeService.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			log.Warn().Err(err).Msg("Rejected webhook")
			errors.HandleError(c, errors.New400Error("Failed to verify webhook"))
			return
		}
		if topUp != nil {
			if err := users.RaiseMonthlyCostLimit(c.Request.Context(), topUp.UserID, topUp.SessionID, topUp.Amount); err != nil {
				respondError(c, err)
				return
			}
			log.Info().
				Str("user_id", topUp.UserID.String()).
				Str("amount", topUp.Amount.String()).
				Msg("Monthly cost limit raised")
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
