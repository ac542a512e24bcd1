package services_test

import (
	"context"
	"testing"
	"time"

	"modelhub_go_backend/internal/database/dbtest"
	"modelhub_go_backend/internal/models"
	"modelhub_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fixedNow is mid-month so day and month windows never collide with a boundary.
var fixedNow = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() services.Clock {
	c := services.NewClock(time.UTC)
	c.Now = func() time.Time { return fixedNow }
	return c
}

func seedModel(t *testing.T, db *gorm.DB, modelID string, prompt, completion string) *models.AIModel {
	t.Helper()
	provider := &models.ModelProvider{Name: "acme-" + uuid.NewString()[:8], DisplayName: "Acme", IsActive: true}
	require.NoError(t, db.Create(provider).Error)

	m := &models.AIModel{
		ModelID:        modelID,
		Name:           modelID,
		DisplayName:    "Model " + modelID,
		ProviderID:     &provider.ID,
		Category:       models.CategoryText,
		ContextLength:  8192,
		PromptCost:     decimal.RequireFromString(prompt),
		CompletionCost: decimal.RequireFromString(completion),
		IsActive:       true,
	}
	require.NoError(t, db.Create(m).Error)
	return m
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		Username:        username,
		Email:           username + "@example.com",
		PasswordHash:    "x",
		IsActive:        true,
		ThemePreference: models.ThemeSystem,
		PreferredModel:  models.DefaultPreferredModel,
	}
	u.ApplyLimits(models.DefaultLimits())
	require.NoError(t, db.Create(u).Error)
	return u
}

// seedUsage writes a ledger row directly with an explicit timestamp.
func seedUsage(t *testing.T, db *gorm.DB, user *models.User, model *models.AIModel, at time.Time, tokens int, cost string, success bool) {
	t.Helper()
	rec := &models.UsageRecord{
		UserID:       user.ID,
		ModelID:      model.ID,
		RequestType:  models.RequestTypeChat,
		TokensUsed:   tokens,
		Cost:         decimal.RequireFromString(cost),
		ResponseTime: decimal.RequireFromString("1.5"),
		Success:      success,
	}
	rec.CreatedAt = at
	rec.UpdatedAt = at
	require.NoError(t, db.Omit("Model").Create(rec).Error)
}

func decimalEqual(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got.Round(6)), "want %s, got %s", want, got.String())
}

func newDB(t *testing.T) *gorm.DB {
	return dbtest.Open(t)
}

var bg = context.Background()
