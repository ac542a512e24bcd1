package services_test

import (
	"errors"
	"testing"

	"modelhub_go_backend/internal/models"
	"modelhub_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type userEnv struct {
	db       *gorm.DB
	verifier *MockVerifier
	users    *services.UserService
}

func newUserEnv(t *testing.T) *userEnv {
	db := newDB(t)
	clock := fixedClock()
	store := services.NewUsageServiceDB(db)
	quota := services.NewQuotaService(store, clock)
	verifier := new(MockVerifier)
	t.Cleanup(func() { verifier.AssertExpectations(t) })
	return &userEnv{
		db:       db,
		verifier: verifier,
		users:    services.NewUserService(db, verifier, quota, services.NewUsageService(store, clock, nil), models.DefaultLimits()),
	}
}

func (e *userEnv) register(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := e.users.Register(bg, services.RegisterInput{
		Username: username,
		Email:    username + "@Example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	return u
}

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newUserEnv(t)

	u := env.register(t, "alice")
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "correct horse", u.PasswordHash)
	assert.Equal(t, models.DefaultLimits(), u.Limits())
	assert.Equal(t, models.ThemeSystem, u.ThemePreference)
	assert.True(t, u.IsActive)

	byName, err := env.users.Authenticate(bg, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byEmail, err := env.users.Authenticate(bg, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = env.users.Authenticate(bg, "alice", "wrong password")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = env.users.Authenticate(bg, "nobody", "correct horse")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	require.NoError(t, env.db.Model(u).Update("is_active", false).Error)
	_, err = env.users.Authenticate(bg, "alice", "correct horse")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	_, err = env.users.GetUserByID(bg, u.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRegister_Rejects(t *testing.T) {
	env := newUserEnv(t)
	env.register(t, "alice")

	_, err := env.users.Register(bg, services.RegisterInput{Username: "alice", Email: "new@example.com", Password: "long enough"})
	assert.ErrorIs(t, err, services.ErrUserExists)

	_, err = env.users.Register(bg, services.RegisterInput{Username: "other", Email: "ALICE@example.com", Password: "long enough"})
	assert.ErrorIs(t, err, services.ErrUserExists)

	_, err = env.users.Register(bg, services.RegisterInput{Username: "bob", Email: "bob@example.com", Password: "short"})
	var verr *services.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestUpdateLimits(t *testing.T) {
	env := newUserEnv(t)
	u := env.register(t, "alice")

	negative := -1
	_, err := env.users.UpdateLimits(bg, u, services.LimitsUpdate{DailyRequestLimit: &negative})
	var verr *services.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "daily_request_limit must be >= 0", verr.Message)

	badTheme := "sepia"
	_, err = env.users.UpdateLimits(bg, u, services.LimitsUpdate{ThemePreference: &badTheme})
	assert.True(t, errors.As(err, &verr))

	zero := 0
	cost := decimal.RequireFromString("2.50")
	dark := models.ThemeDark
	updated, err := env.users.UpdateLimits(bg, u, services.LimitsUpdate{
		DailyRequestLimit: &zero,
		DailyCostLimit:    &cost,
		ThemePreference:   &dark,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.DailyRequestLimit)
	assert.Equal(t, models.DefaultLimits().MonthlyRequestLimit, updated.MonthlyRequestLimit, "unset fields are kept")

	reloaded, err := env.users.GetUserByID(bg, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.DailyRequestLimit)
	decimalEqual(t, "2.5", reloaded.DailyCostLimit)
	assert.Equal(t, models.ThemeDark, reloaded.ThemePreference)

	stats, err := env.users.Stats(bg, reloaded)
	require.NoError(t, err)
	assert.False(t, stats.CanMakeRequest.Allowed)
	assert.Equal(t, services.ReasonDailyRequests, stats.CanMakeRequest.Message)
}

func TestUpdateProfile_VerifiesKey(t *testing.T) {
	env := newUserEnv(t)
	u := env.register(t, "alice")

	env.verifier.On("VerifyKey", mock.Anything, "sk-or-live").Return(true, "API key verified").Once()

	key := "sk-or-live"
	first := "Alice"
	updated, err := env.users.UpdateProfile(bg, u, services.ProfileUpdate{OpenRouterAPIKey: &key, FirstName: &first})
	require.NoError(t, err)
	assert.True(t, updated.APIKeyVerified)
	assert.NotNil(t, updated.APIKeyLastVerified)
	assert.Equal(t, "Alice", updated.DisplayName())
}

func TestRaiseMonthlyCostLimit(t *testing.T) {
	env := newUserEnv(t)
	u := env.register(t, "alice")

	require.NoError(t, env.users.RaiseMonthlyCostLimit(bg, u.ID, "cs_test_1", decimal.NewFromInt(25)))
	// replayed webhook
	require.NoError(t, env.users.RaiseMonthlyCostLimit(bg, u.ID, "cs_test_1", decimal.NewFromInt(25)))

	reloaded, err := env.users.GetUserByID(bg, u.ID)
	require.NoError(t, err)
	decimalEqual(t, "325", reloaded.MonthlyCostLimit)

	err = env.users.RaiseMonthlyCostLimit(bg, uuid.New(), "cs_test_2", decimal.NewFromInt(5))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	var n int64
	require.NoError(t, env.db.Model(&models.QuotaTopUp{}).Where("stripe_session_id = ?", "cs_test_2").Count(&n).Error)
	assert.Zero(t, n, "rolled back")

	var verr *services.ValidationError
	assert.True(t, errors.As(env.users.RaiseMonthlyCostLimit(bg, u.ID, "cs_test_3", decimal.Zero), &verr))
}

func TestAPIKeys(t *testing.T) {
	env := newUserEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	env.verifier.On("VerifyKey", mock.Anything, "sk-bad").Return(false, "API key verification failed: 401").Once()
	_, err := env.users.CreateAPIKey(bg, alice.ID, "work", "sk-bad")
	var verr *services.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Invalid API key: API key verification failed: 401", verr.Message)

	env.verifier.On("VerifyKey", mock.Anything, "sk-or-v1-abcdefgh1234").Return(true, "API key verified").Twice()
	k, err := env.users.CreateAPIKey(bg, alice.ID, "work", "sk-or-v1-abcdefgh1234")
	require.NoError(t, err)
	assert.Equal(t, "sk-o...1234", k.MaskedKey())

	_, err = env.users.CreateAPIKey(bg, alice.ID, "work", "sk-or-v1-abcdefgh1234")
	assert.True(t, errors.As(err, &verr), "names are unique per user")

	keys, err := env.users.ListAPIKeys(bg, alice.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	_, err = env.users.GetAPIKey(bg, bob.ID, k.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.ErrorIs(t, env.users.DeleteAPIKey(bg, bob.ID, k.ID), gorm.ErrRecordNotFound)

	require.NoError(t, env.users.DeleteAPIKey(bg, alice.ID, k.ID))
	keys, err = env.users.ListAPIKeys(bg, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
