package services

import (
	"context"
	"time"

	"modelhub_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UsageTotals is one aggregate over a half-open time range.
type UsageTotals struct {
	Requests           int64           `json:"total_requests"`
	SuccessfulRequests int64           `json:"successful_requests"`
	Tokens             int64           `json:"total_tokens"`
	Cost               decimal.Decimal `json:"total_cost"`
	AvgResponseTime    float64         `json:"avg_response_time"`
}

type ModelUsage struct {
	ModelID     string          `json:"model_id"`
	DisplayName string          `json:"display_name"`
	Requests    int64           `json:"requests"`
	Tokens      int64           `json:"tokens"`
	Cost        decimal.Decimal `json:"cost"`
}

// UsagePoint is the slice of a record needed for bucketing.
type UsagePoint struct {
	CreatedAt    time.Time
	TokensUsed   int64
	Cost         decimal.Decimal
	ResponseTime decimal.Decimal
	Success      bool
}

type RecordFilter struct {
	From    *time.Time
	To      *time.Time
	ModelID string
	Success *bool
	Limit   int
	Offset  int
}

// UsageServiceDB is the append-only usage ledger and the alert table.
type UsageServiceDB interface {
	CreateRecord(ctx context.Context, rec *models.UsageRecord) error
	Totals(ctx context.Context, userID uuid.UUID, from, to time.Time) (*UsageTotals, error)
	Points(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]UsagePoint, error)
	TopModels(ctx context.Context, userID uuid.UUID, from, to time.Time, n int) ([]ModelUsage, error)
	ListRecords(ctx context.Context, userID uuid.UUID, filter RecordFilter) ([]models.UsageRecord, int64, error)

	CreateAlert(ctx context.Context, alert *models.UsageAlert) error
	AlertExists(ctx context.Context, userID uuid.UUID, alertType, period string) (bool, error)
	ListAlerts(ctx context.Context, userID uuid.UUID, activeOnly, unreadOnly bool, limit int) ([]models.UsageAlert, error)
	MarkAlertRead(ctx context.Context, userID, alertID uuid.UUID) (*models.UsageAlert, error)
}

type DefaultUsageService struct {
	db *gorm.DB
}

func NewUsageServiceDB(db *gorm.DB) UsageServiceDB {
	return &DefaultUsageService{db: db}
}

func (s *DefaultUsageService) CreateRecord(ctx context.Context, rec *models.UsageRecord) error {
	return s.db.WithContext(ctx).Omit("Model").Create(rec).Error
}

func (s *DefaultUsageService) Totals(ctx context.Context, userID uuid.UUID, from, to time.Time) (*UsageTotals, error) {
	var row struct {
		Requests   int64
		Successful int64
		Tokens     int64
		Cost       decimal.NullDecimal
		AvgTime    *float64
	}
	err := s.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Select(`COUNT(*) AS requests,
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS successful,
			COALESCE(SUM(tokens_used), 0) AS tokens,
			SUM(cost) AS cost,
			AVG(response_time) AS avg_time`).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from.UTC(), to.UTC()).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	t := &UsageTotals{
		Requests:           row.Requests,
		SuccessfulRequests: row.Successful,
		Tokens:             row.Tokens,
		Cost:               decimal.Zero,
	}
	if row.Cost.Valid {
		t.Cost = row.Cost.Decimal
	}
	if row.AvgTime != nil {
		t.AvgResponseTime = *row.AvgTime
	}
	return t, nil
}

func (s *DefaultUsageService) Points(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]UsagePoint, error) {
	var pts []UsagePoint
	err := s.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Select("created_at, tokens_used, cost, response_time, success").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from.UTC(), to.UTC()).
		Order("created_at").
		Scan(&pts).Error
	return pts, err
}

func (s *DefaultUsageService) TopModels(ctx context.Context, userID uuid.UUID, from, to time.Time, n int) ([]ModelUsage, error) {
	var rows []struct {
		ModelID     string
		DisplayName string
		Requests    int64
		Tokens      int64
		Cost        decimal.NullDecimal
	}
	err := s.db.WithContext(ctx).Table("usage_records AS u").
		Select(`m.model_id AS model_id, m.display_name AS display_name,
			COUNT(*) AS requests, COALESCE(SUM(u.tokens_used), 0) AS tokens, SUM(u.cost) AS cost`).
		Joins("JOIN ai_models AS m ON m.id = u.model_id").
		Where("u.user_id = ? AND u.created_at >= ? AND u.created_at < ?", userID, from.UTC(), to.UTC()).
		Group("m.model_id, m.display_name").
		Order("requests DESC, model_id ASC").
		Limit(n).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ModelUsage, 0, len(rows))
	for _, r := range rows {
		mu := ModelUsage{ModelID: r.ModelID, DisplayName: r.DisplayName, Requests: r.Requests, Tokens: r.Tokens, Cost: decimal.Zero}
		if r.Cost.Valid {
			mu.Cost = r.Cost.Decimal
		}
		out = append(out, mu)
	}
	return out, nil
}

func (s *DefaultUsageService) ListRecords(ctx context.Context, userID uuid.UUID, f RecordFilter) ([]models.UsageRecord, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.UsageRecord{}).Where("usage_records.user_id = ?", userID)
	if f.From != nil {
		q = q.Where("usage_records.created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("usage_records.created_at < ?", f.To.UTC())
	}
	if f.ModelID != "" {
		q = q.Where("usage_records.model_id IN (?)",
			s.db.Model(&models.AIModel{}).Select("id").Where("model_id = ?", f.ModelID))
	}
	if f.Success != nil {
		q = q.Where("usage_records.success = ?", *f.Success)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var recs []models.UsageRecord
	err := q.Preload("Model").
		Order("usage_records.created_at DESC").
		Limit(f.Limit).Offset(f.Offset).
		Find(&recs).Error
	return recs, total, err
}

func (s *DefaultUsageService) CreateAlert(ctx context.Context, alert *models.UsageAlert) error {
	return s.db.WithContext(ctx).Create(alert).Error
}

func (s *DefaultUsageService) AlertExists(ctx context.Context, userID uuid.UUID, alertType, period string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.UsageAlert{}).
		Where("user_id = ? AND alert_type = ? AND period = ?", userID, alertType, period).
		Count(&n).Error
	return n > 0, err
}

func (s *DefaultUsageService) ListAlerts(ctx context.Context, userID uuid.UUID, activeOnly, unreadOnly bool, limit int) ([]models.UsageAlert, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.UsageAlert
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

// MarkAlertRead returns gorm.ErrRecordNotFound for alerts the user does not own.
func (s *DefaultUsageService) MarkAlertRead(ctx context.Context, userID, alertID uuid.UUID) (*models.UsageAlert, error) {
	var alert models.UsageAlert
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", alertID, userID).First(&alert).Error; err != nil {
		return nil, err
	}
	alert.IsRead = true
	if err := s.db.WithContext(ctx).Model(&alert).Update("is_read", true).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}
