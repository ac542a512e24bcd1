package services

import (
	"context"

	"modelhub_go_backend/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	ReasonOK                  = "OK"
	ReasonDailyRequests       = "Daily request limit exceeded"
	ReasonMonthlyRequests     = "Monthly request limit exceeded"
	ReasonDailyCost           = "Daily cost limit exceeded"
	ReasonMonthlyCost         = "Monthly cost limit exceeded"
	QuotaWarningPercent       = 80
	QuotaExceededPercent      = 100
	defaultTopModelsDashboard = 5
)

// QuotaError carries the violated limit to the HTTP layer.
type QuotaError struct {
	Reason string
}

func (e *QuotaError) Error() string {
	return e.Reason
}

type QuotaMeter struct {
	Used       decimal.Decimal `json:"used"`
	Limit      decimal.Decimal `json:"limit"`
	Percentage float64         `json:"percentage"`
}

type QuotaStatus struct {
	DailyRequests   QuotaMeter `json:"daily_requests"`
	MonthlyRequests QuotaMeter `json:"monthly_requests"`
	DailyCost       QuotaMeter `json:"daily_cost"`
	MonthlyCost     QuotaMeter `json:"monthly_cost"`
}

// QuotaService compares live usage aggregates against account limits.
type QuotaService struct {
	usage UsageServiceDB
	clock Clock
}

func NewQuotaService(usage UsageServiceDB, clock Clock) *QuotaService {
	return &QuotaService{usage: usage, clock: clock}
}

// CanProceed is advisory: it reserves nothing, so concurrent turns can both
// pass before either is recorded.
func (s *QuotaService) CanProceed(ctx context.Context, user *models.User) (bool, string, error) {
	day, month, err := s.current(ctx, user)
	if err != nil {
		return false, "", err
	}

	switch {
	case day.Requests >= int64(user.DailyRequestLimit):
		return false, ReasonDailyRequests, nil
	case month.Requests >= int64(user.MonthlyRequestLimit):
		return false, ReasonMonthlyRequests, nil
	case day.Cost.GreaterThanOrEqual(user.DailyCostLimit):
		return false, ReasonDailyCost, nil
	case month.Cost.GreaterThanOrEqual(user.MonthlyCostLimit):
		return false, ReasonMonthlyCost, nil
	}
	return true, ReasonOK, nil
}

// Check wraps CanProceed into a *QuotaError.
func (s *QuotaService) Check(ctx context.Context, user *models.User) error {
	ok, reason, err := s.CanProceed(ctx, user)
	if err != nil {
		return err
	}
	if !ok {
		zerolog.Ctx(ctx).Info().Str("user_id", user.ID.String()).Str("reason", reason).Msg("Quota check failed")
		return &QuotaError{Reason: reason}
	}
	return nil
}

func (s *QuotaService) Quotas(ctx context.Context, user *models.User) (*QuotaStatus, error) {
	day, month, err := s.current(ctx, user)
	if err != nil {
		return nil, err
	}
	return &QuotaStatus{
		DailyRequests:   meter(decimal.NewFromInt(day.Requests), decimal.NewFromInt(int64(user.DailyRequestLimit))),
		MonthlyRequests: meter(decimal.NewFromInt(month.Requests), decimal.NewFromInt(int64(user.MonthlyRequestLimit))),
		DailyCost:       meter(day.Cost, user.DailyCostLimit),
		MonthlyCost:     meter(month.Cost, user.MonthlyCostLimit),
	}, nil
}

func (s *QuotaService) current(ctx context.Context, user *models.User) (*UsageTotals, *UsageTotals, error) {
	dayFrom, dayTo := s.clock.Today()
	day, err := s.usage.Totals(ctx, user.ID, dayFrom, dayTo)
	if err != nil {
		return nil, nil, err
	}
	monthFrom, monthTo := s.clock.ThisMonth()
	month, err := s.usage.Totals(ctx, user.ID, monthFrom, monthTo)
	if err != nil {
		return nil, nil, err
	}
	return day, month, nil
}

func meter(used, limit decimal.Decimal) QuotaMeter {
	m := QuotaMeter{Used: used, Limit: limit}
	if limit.IsPositive() {
		m.Percentage, _ = used.Div(limit).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	}
	return m
}
