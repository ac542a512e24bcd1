package services

import (
	"context"
	"encoding/json"
	"time"

	"modelhub_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AlertEvaluator runs after every recorded request.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, user *models.User) error
	ReportAPIError(ctx context.Context, user *models.User, message string) error
}

// RecordInput is one request outcome destined for the usage ledger.
type RecordInput struct {
	User             *models.User
	Model            *models.AIModel
	RequestType      string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             CostBreakdown
	ResponseTime     time.Duration
	Success          bool
	ErrorMessage     string
	ProviderID       string
	ActualModel      string
	Metadata         map[string]interface{}
}

type DailySummary struct {
	Date            string          `json:"date"`
	TotalRequests   int64           `json:"total_requests"`
	TotalTokens     int64           `json:"total_tokens"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	AvgResponseTime float64         `json:"avg_response_time"`
	SuccessRate     float64         `json:"success_rate"`
}

type MonthlySummary struct {
	Year            int             `json:"year"`
	Month           int             `json:"month"`
	TotalRequests   int64           `json:"total_requests"`
	TotalTokens     int64           `json:"total_tokens"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	AvgResponseTime float64         `json:"avg_response_time"`
	SuccessRate     float64         `json:"success_rate"`
	DailyBreakdown  []DailySummary  `json:"daily_breakdown"`
}

type PeriodStats struct {
	UsageTotals
	SuccessRate float64 `json:"success_rate"`
}

type Statistics struct {
	Today     PeriodStats `json:"today"`
	ThisWeek  PeriodStats `json:"this_week"`
	ThisMonth PeriodStats `json:"this_month"`
	ThisYear  PeriodStats `json:"this_year"`
}

type Dashboard struct {
	Today          *UsageTotals         `json:"today"`
	ThisMonth      *UsageTotals         `json:"this_month"`
	Limits         models.Limits        `json:"limits"`
	RecentActivity []models.UsageRecord `json:"recent_activity"`
	ActiveAlerts   []models.UsageAlert  `json:"active_alerts"`
	UsageTrend     []DailySummary       `json:"usage_trend"`
	TopModels      []ModelUsage         `json:"top_models"`
}

const (
	dashboardTrendDays   = 7
	dashboardRecentLimit = 10
	maxSummaryDays       = 366
)

// UsageService is the usage recorder plus its read projections.
type UsageService struct {
	store  UsageServiceDB
	clock  Clock
	alerts AlertEvaluator
}

func NewUsageService(store UsageServiceDB, clock Clock, alerts AlertEvaluator) *UsageService {
	return &UsageService{store: store, clock: clock, alerts: alerts}
}

func (s *UsageService) Clock() Clock {
	return s.clock
}

// Record appends one ledger row. Alert evaluation failures are logged and do
// not fail the call.
func (s *UsageService) Record(ctx context.Context, in RecordInput) (*models.UsageRecord, error) {
	rec := &models.UsageRecord{
		UserID:           in.User.ID,
		ModelID:          in.Model.ID,
		RequestType:      in.RequestType,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		TokensUsed:       in.TotalTokens,
		Cost:             in.Cost.Total,
		PromptCost:       in.Cost.PromptCost,
		CompletionCost:   in.Cost.CompletionCost,
		ResponseTime:     seconds(in.ResponseTime),
		Success:          in.Success,
		ErrorMessage:     in.ErrorMessage,
		ProviderID:       in.ProviderID,
		ActualModel:      in.ActualModel,
	}
	if rec.RequestType == "" {
		rec.RequestType = models.RequestTypeChat
	}
	// Quota windows are computed from the same clock.
	rec.CreatedAt = s.clock.Now().UTC()
	if len(in.Metadata) > 0 {
		raw, err := json.Marshal(in.Metadata)
		if err == nil {
			rec.ProviderMetadata = datatypes.JSON(raw)
		}
	}

	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}
	rec.Model = *in.Model

	if s.alerts != nil {
		if err := s.alerts.Evaluate(ctx, in.User); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", in.User.ID.String()).Msg("Failed to evaluate usage alerts")
		}
	}
	return rec, nil
}

// ReportFailure surfaces a provider failure as an alert. Nothing is written to
// the ledger for failed calls.
func (s *UsageService) ReportFailure(ctx context.Context, user *models.User, message string) {
	if s.alerts == nil || user == nil {
		return
	}
	if err := s.alerts.ReportAPIError(ctx, user, message); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to raise api error alert")
	}
}

func (s *UsageService) DailyUsage(ctx context.Context, userID uuid.UUID) (*UsageTotals, error) {
	from, to := s.clock.Today()
	return s.store.Totals(ctx, userID, from, to)
}

func (s *UsageService) MonthlyUsage(ctx context.Context, userID uuid.UUID) (*UsageTotals, error) {
	from, to := s.clock.ThisMonth()
	return s.store.Totals(ctx, userID, from, to)
}

// DailySummaries returns one entry per calendar day in [from, to], empty days
// included, newest first.
func (s *UsageService) DailySummaries(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]DailySummary, error) {
	start, _ := s.clock.Day(from)
	_, end := s.clock.Day(to)
	if end.Sub(start) > maxSummaryDays*24*time.Hour {
		start = end.AddDate(0, 0, -maxSummaryDays)
	}
	pts, err := s.store.Points(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	days := s.bucketDays(pts, start, end)
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}
	return days, nil
}

// MonthlySummaries covers every month of the year up to the current one.
func (s *UsageService) MonthlySummaries(ctx context.Context, userID uuid.UUID, year int) ([]MonthlySummary, error) {
	loc := s.clock.Location()
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	yearEnd := yearStart.AddDate(1, 0, 0)
	_, monthEnd := s.clock.ThisMonth()
	if monthEnd.Before(yearEnd) {
		yearEnd = monthEnd
	}
	if !yearEnd.After(yearStart) {
		return []MonthlySummary{}, nil
	}

	pts, err := s.store.Points(ctx, userID, yearStart, yearEnd)
	if err != nil {
		return nil, err
	}

	out := []MonthlySummary{}
	for m := yearStart; m.Before(yearEnd); m = m.AddDate(0, 1, 0) {
		next := m.AddDate(0, 1, 0)
		var inMonth []UsagePoint
		for _, p := range pts {
			if !p.CreatedAt.Before(m) && p.CreatedAt.Before(next) {
				inMonth = append(inMonth, p)
			}
		}
		agg := aggregate(inMonth)
		out = append(out, MonthlySummary{
			Year:            m.Year(),
			Month:           int(m.Month()),
			TotalRequests:   agg.TotalRequests,
			TotalTokens:     agg.TotalTokens,
			TotalCost:       agg.TotalCost,
			AvgResponseTime: agg.AvgResponseTime,
			SuccessRate:     agg.SuccessRate,
			DailyBreakdown:  s.bucketDays(inMonth, m, next),
		})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Trend returns the last n days including today, oldest first.
func (s *UsageService) Trend(ctx context.Context, userID uuid.UUID, n int) ([]DailySummary, error) {
	_, end := s.clock.Today()
	start := end.AddDate(0, 0, -n)
	pts, err := s.store.Points(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return s.bucketDays(pts, start, end), nil
}

func (s *UsageService) TopModels(ctx context.Context, userID uuid.UUID, from, to time.Time, n int) ([]ModelUsage, error) {
	return s.store.TopModels(ctx, userID, from, to, n)
}

func (s *UsageService) Statistics(ctx context.Context, userID uuid.UUID) (*Statistics, error) {
	now := s.clock.Now()
	periods := []func(time.Time) (time.Time, time.Time){s.clock.Day, s.clock.Week, s.clock.Month, s.clock.Year}
	results := make([]PeriodStats, len(periods))
	for i, p := range periods {
		from, to := p(now)
		t, err := s.store.Totals(ctx, userID, from, to)
		if err != nil {
			return nil, err
		}
		results[i] = PeriodStats{UsageTotals: *t, SuccessRate: successRate(t.SuccessfulRequests, t.Requests)}
	}
	return &Statistics{Today: results[0], ThisWeek: results[1], ThisMonth: results[2], ThisYear: results[3]}, nil
}

func (s *UsageService) Dashboard(ctx context.Context, user *models.User) (*Dashboard, error) {
	today, err := s.DailyUsage(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	month, err := s.MonthlyUsage(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.store.ListRecords(ctx, user.ID, RecordFilter{Limit: dashboardRecentLimit})
	if err != nil {
		return nil, err
	}
	alerts, err := s.store.ListAlerts(ctx, user.ID, true, true, 0)
	if err != nil {
		return nil, err
	}
	trend, err := s.Trend(ctx, user.ID, dashboardTrendDays)
	if err != nil {
		return nil, err
	}
	monthFrom, monthTo := s.clock.ThisMonth()
	top, err := s.store.TopModels(ctx, user.ID, monthFrom, monthTo, defaultTopModelsDashboard)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Today:          today,
		ThisMonth:      month,
		Limits:         user.Limits(),
		RecentActivity: recent,
		ActiveAlerts:   alerts,
		UsageTrend:     trend,
		TopModels:      top,
	}, nil
}

func (s *UsageService) Records(ctx context.Context, userID uuid.UUID, f RecordFilter) ([]models.UsageRecord, int64, error) {
	return s.store.ListRecords(ctx, userID, f)
}

func (s *UsageService) Alerts(ctx context.Context, userID uuid.UUID, activeOnly, unreadOnly bool) ([]models.UsageAlert, error) {
	return s.store.ListAlerts(ctx, userID, activeOnly, unreadOnly, 0)
}

func (s *UsageService) MarkAlertRead(ctx context.Context, userID, alertID uuid.UUID) (*models.UsageAlert, error) {
	return s.store.MarkAlertRead(ctx, userID, alertID)
}

func (s *UsageService) bucketDays(pts []UsagePoint, start, end time.Time) []DailySummary {
	byDay := map[string][]UsagePoint{}
	for _, p := range pts {
		k := s.clock.DayKey(p.CreatedAt)
		byDay[k] = append(byDay[k], p)
	}
	var out []DailySummary
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		k := s.clock.DayKey(d)
		sum := aggregate(byDay[k])
		sum.Date = k
		out = append(out, sum)
	}
	return out
}

func aggregate(pts []UsagePoint) DailySummary {
	sum := DailySummary{TotalCost: decimal.Zero}
	var ok int64
	rt := decimal.Zero
	for _, p := range pts {
		sum.TotalRequests++
		sum.TotalTokens += p.TokensUsed
		sum.TotalCost = sum.TotalCost.Add(p.Cost)
		rt = rt.Add(p.ResponseTime)
		if p.Success {
			ok++
		}
	}
	if sum.TotalRequests > 0 {
		sum.AvgResponseTime, _ = rt.Div(decimal.NewFromInt(sum.TotalRequests)).Round(3).Float64()
	}
	sum.SuccessRate = successRate(ok, sum.TotalRequests)
	return sum
}

// successRate is 100 for an empty period.
func successRate(ok, total int64) float64 {
	if total == 0 {
		return 100
	}
	return float64(ok) / float64(total) * 100
}

func seconds(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(d.Milliseconds()).Div(decimal.NewFromInt(1000))
}
