package api

import (
	"net/http"
	"strings"
	"time"

	"modelhub_go_backend/internal/auth"
	"modelhub_go_backend/internal/errors"
	"modelhub_go_backend/internal/models"
	"modelhub_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func profileHandler(c *gin.Context) {
	c.JSON(http.StatusOK, auth.CurrentUser(c))
}

type updateProfileRequest struct {
	Email            *string `json:"email" binding:"omitempty,email"`
	FirstName        *string `json:"first_name" binding:"omitempty,max=150"`
	LastName         *string `json:"last_name" binding:"omitempty,max=150"`
	PreferredModel   *string `json:"preferred_model" binding:"omitempty,max=100"`
	ThemePreference  *string `json:"theme_preference" binding:"omitempty,oneof=light dark system"`
	OpenRouterAPIKey *string `json:"openrouter_api_key"`
}

func updateProfileHandler(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateProfileRequest
		if !bindJSON(c, &req) {
			return
		}
		user, err := users.UpdateProfile(c.Request.Context(), auth.CurrentUser(c), services.ProfileUpdate{
			Email:            req.Email,
			FirstName:        req.FirstName,
			LastName:         req.LastName,
			PreferredModel:   req.PreferredModel,
			ThemePreference:  req.ThemePreference,
			OpenRouterAPIKey: req.OpenRouterAPIKey,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

type updateLimitsRequest struct {
	DailyRequestLimit   *int             `json:"daily_request_limit"`
	MonthlyRequestLimit *int             `json:"monthly_request_limit"`
	DailyCostLimit      *decimal.Decimal `json:"daily_cost_limit"`
	MonthlyCostLimit    *decimal.Decimal `json:"monthly_cost_limit"`
	PreferredModel      *string          `json:"preferred_model"`
	ThemePreference     *string          `json:"theme_preference"`
}

func updateLimitsHandler(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateLimitsRequest
		if !bindJSON(c, &req) {
			return
		}
		user, err := users.UpdateLimits(c.Request.Context(), auth.CurrentUser(c), services.LimitsUpdate{
			DailyRequestLimit:   req.DailyRequestLimit,
			MonthlyRequestLimit: req.MonthlyRequestLimit,
			DailyCostLimit:      req.DailyCostLimit,
			MonthlyCostLimit:    req.MonthlyCostLimit,
			PreferredModel:      req.PreferredModel,
			ThemePreference:     req.ThemePreference,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func userStatsHandler(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := users.Stats(c.Request.Context(), auth.CurrentUser(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func verifyAPIKeyHandler(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			APIKey string `json:"api_key"`
		}
		// An empty or missing body falls through to the required check.
		_ = c.ShouldBindJSON(&req)
		if strings.TrimSpace(req.APIKey) == "" {
			errors.HandleError(c, errors.New400Error("API key is required"))
			return
		}
		valid, message := users.VerifyAPIKey(c.Request.Context(), req.APIKey)
		c.JSON(http.StatusOK, gin.H{"valid": valid, "message": message})
	}
}

type apiKeyView struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	APIKey    string     `json:"api_key"`
	IsActive  bool       `json:"is_active"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func viewAPIKey(k *models.UserAPIKey) apiKeyView {
	return apiKeyView{
		ID:        k.ID,
		Name:      k.Name,
		APIKey:    k.MaskedKey(),
		IsActive:  k.IsActive,
		LastUsed:  k.LastUsed,
		CreatedAt: k.CreatedAt,
	}
}

func listAPIKeysHandler(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := users.ListAPIKeys(c.Request.Context(), auth.CurrentUser(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		out := make([]apiKeyView, 0, len(keys))
		for i := range keys {
			out = append(out, viewAPIKey(&keys[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

type createAPIKeyRequest struct {
	Name   string `json:"name" binding:"required,max=100"`
	APIKey string `json:"api_key" binding:"required"`
}

func createAPIKeyHandler(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAPIKeyRequest
		if !bindJSON(c, &req) {
			return
		}
		key, err := users.CreateAPIKey(c.Request.Context(), auth.CurrentUser(c).ID, req.Name, req.APIKey)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, viewAPIKey(key))
	}
}

func getAPIKeyHandler(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathUUID(c, "id")
		if !ok {
			return
		}
		key, err := users.GetAPIKey(c.Request.Context(), auth.CurrentUser(c).ID, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewAPIKey(key))
	}
}

func deleteAPIKeyHandler(users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathUUID(c, "id")
		if !ok {
			return
		}
		if err := users.DeleteAPIKey(c.Request.Context(), auth.CurrentUser(c).ID, id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
