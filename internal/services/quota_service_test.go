package services_test

import (
	"errors"
	"testing"
	"time"

	"modelhub_go_backend/internal/models"
	"modelhub_go_backend/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCanProceed(t *testing.T) {
	yesterday := fixedNow.AddDate(0, 0, -1)
	lastMonth := fixedNow.AddDate(0, -1, 0)

	tests := []struct {
		name       string
		setup      func(t *testing.T, env *quotaEnv)
		wantOK     bool
		wantReason string
	}{
		{
			name:       "fresh account",
			setup:      func(t *testing.T, env *quotaEnv) {},
			wantOK:     true,
			wantReason: services.ReasonOK,
		},
		{
			name: "daily requests reached",
			setup: func(t *testing.T, env *quotaEnv) {
				env.user.DailyRequestLimit = 2
				env.usage(t, fixedNow, "0.01")
				env.usage(t, fixedNow, "0.01")
			},
			wantReason: services.ReasonDailyRequests,
		},
		{
			name: "failed requests count against the request limit",
			setup: func(t *testing.T, env *quotaEnv) {
				env.user.DailyRequestLimit = 1
				seedUsage(t, env.db, env.user, env.model, fixedNow, 0, "0", false)
			},
			wantReason: services.ReasonDailyRequests,
		},
		{
			name: "yesterday does not count towards today",
			setup: func(t *testing.T, env *quotaEnv) {
				env.user.DailyRequestLimit = 1
				env.usage(t, yesterday, "0.01")
			},
			wantOK:     true,
			wantReason: services.ReasonOK,
		},
		{
			name: "monthly requests reached",
			setup: func(t *testing.T, env *quotaEnv) {
				env.user.MonthlyRequestLimit = 1
				env.usage(t, yesterday, "0.01")
			},
			wantReason: services.ReasonMonthlyRequests,
		},
		{
			name: "last month is outside the window",
			setup: func(t *testing.T, env *quotaEnv) {
				env.user.MonthlyRequestLimit = 1
				env.usage(t, lastMonth, "0.01")
			},
			wantOK:     true,
			wantReason: services.ReasonOK,
		},
		{
			name: "daily cost reached exactly",
			setup: func(t *testing.T, env *quotaEnv) {
				env.user.DailyCostLimit = decimal.RequireFromString("0.50")
				env.usage(t, fixedNow, "0.25")
				env.usage(t, fixedNow, "0.25")
			},
			wantReason: services.ReasonDailyCost,
		},
		{
			name: "monthly cost reached",
			setup: func(t *testing.T, env *quotaEnv) {
				env.user.MonthlyCostLimit = decimal.RequireFromString("1")
				env.usage(t, yesterday, "1.5")
			},
			wantReason: services.ReasonMonthlyCost,
		},
		{
			name: "request limits are checked before cost limits",
			setup: func(t *testing.T, env *quotaEnv) {
				env.user.DailyRequestLimit = 1
				env.user.DailyCostLimit = decimal.RequireFromString("0.01")
				env.usage(t, fixedNow, "5")
			},
			wantReason: services.ReasonDailyRequests,
		},
		{
			name: "zero limit blocks everything",
			setup: func(t *testing.T, env *quotaEnv) {
				env.user.DailyRequestLimit = 0
			},
			wantReason: services.ReasonDailyRequests,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newQuotaEnv(t)
			tt.setup(t, env)

			ok, reason, err := env.quota.CanProceed(bg, env.user)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantReason, reason)

			err = env.quota.Check(bg, env.user)
			if tt.wantOK {
				assert.NoError(t, err)
				return
			}
			var qerr *services.QuotaError
			require.True(t, errors.As(err, &qerr))
			assert.Equal(t, tt.wantReason, qerr.Reason)
		})
	}
}

func TestQuotas(t *testing.T) {
	env := newQuotaEnv(t)
	env.user.DailyRequestLimit = 4
	env.user.DailyCostLimit = decimal.NewFromInt(2)
	env.user.MonthlyCostLimit = decimal.Zero
	env.usage(t, fixedNow, "0.5")

	q, err := env.quota.Quotas(bg, env.user)
	require.NoError(t, err)

	assert.Equal(t, 25.0, q.DailyRequests.Percentage)
	assert.Equal(t, 25.0, q.DailyCost.Percentage)
	decimalEqual(t, "0.5", q.DailyCost.Used)
	// a zero limit reports 0% rather than dividing by zero
	assert.Equal(t, 0.0, q.MonthlyCost.Percentage)
}

type quotaEnv struct {
	db    *gorm.DB
	user  *models.User
	model *models.AIModel
	quota *services.QuotaService
}

func newQuotaEnv(t *testing.T) *quotaEnv {
	db := newDB(t)
	return &quotaEnv{
		db:    db,
		user:  seedUser(t, db, "quota"),
		model: seedModel(t, db, "acme/large", "3", "15"),
		quota: services.NewQuotaService(services.NewUsageServiceDB(db), fixedClock()),
	}
}

func (e *quotaEnv) usage(t *testing.T, at time.Time, cost string) {
	seedUsage(t, e.db, e.user, e.model, at, 100, cost, true)
}
