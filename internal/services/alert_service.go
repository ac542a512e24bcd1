package services

import (
	"context"
	"fmt"

	"modelhub_go_backend/internal/models"
	"modelhub_go_backend/internal/utils/broker"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Publisher is satisfied by *broker.Broker.
type Publisher interface {
	Publish(topic string, msg interface{}) int
}

// AlertEvent is what websocket subscribers receive.
type AlertEvent struct {
	Type  string            `json:"type"`
	Alert models.UsageAlert `json:"alert"`
}

// AlertService raises usage alerts at the warning and exceeded thresholds,
// at most once per meter and calendar period.
type AlertService struct {
	store     UsageServiceDB
	quota     *QuotaService
	publisher Publisher
	clock     Clock
}

func NewAlertService(store UsageServiceDB, quota *QuotaService, publisher Publisher, clock Clock) *AlertService {
	return &AlertService{store: store, quota: quota, publisher: publisher, clock: clock}
}

type alertMeter struct {
	name      string
	alertType string
	label     string
	period    string
	meter     QuotaMeter
}

func (s *AlertService) Evaluate(ctx context.Context, user *models.User) error {
	status, err := s.quota.Quotas(ctx, user)
	if err != nil {
		return err
	}
	today := s.clock.DayKey(s.clock.Now())
	month := s.clock.MonthKey(s.clock.Now())

	meters := []alertMeter{
		{"daily_requests", models.AlertDailyLimit, "daily request", today, status.DailyRequests},
		{"monthly_requests", models.AlertMonthlyLimit, "monthly request", month, status.MonthlyRequests},
		{"daily_cost", models.AlertCostLimit, "daily cost", today, status.DailyCost},
		{"monthly_cost", models.AlertCostLimit, "monthly cost", month, status.MonthlyCost},
	}

	for _, m := range meters {
		if !m.meter.Limit.IsPositive() {
			continue
		}
		var alert *models.UsageAlert
		switch {
		case m.meter.Percentage >= QuotaExceededPercent:
			alert = &models.UsageAlert{
				AlertType: models.AlertQuotaExceeded,
				Severity:  models.SeverityCritical,
				Title:     fmt.Sprintf("%s limit reached", capitalize(m.label)),
				Message:   fmt.Sprintf("You have used %s of your %s limit of %s. Further requests are blocked until the period resets.", m.meter.Used.String(), m.label, m.meter.Limit.String()),
			}
		case m.meter.Percentage >= QuotaWarningPercent:
			alert = &models.UsageAlert{
				AlertType: m.alertType,
				Severity:  models.SeverityWarning,
				Title:     fmt.Sprintf("%s limit at %.0f%%", capitalize(m.label), m.meter.Percentage),
				Message:   fmt.Sprintf("You have used %s of your %s limit of %s.", m.meter.Used.String(), m.label, m.meter.Limit.String()),
			}
		default:
			continue
		}
		alert.UserID = user.ID
		alert.Period = m.name + ":" + m.period
		alert.ThresholdValue = m.meter.Limit
		alert.CurrentValue = m.meter.Used
		alert.IsActive = true

		if err := s.raise(ctx, alert); err != nil {
			return err
		}
	}
	return nil
}

// ReportAPIError leaves one informational alert per day about failing provider calls.
func (s *AlertService) ReportAPIError(ctx context.Context, user *models.User, message string) error {
	alert := &models.UsageAlert{
		UserID:         user.ID,
		AlertType:      models.AlertAPIError,
		Severity:       models.SeverityError,
		Period:         "api_error:" + s.clock.DayKey(s.clock.Now()),
		Title:          "Provider request failed",
		Message:        message,
		ThresholdValue: decimal.Zero,
		CurrentValue:   decimal.Zero,
		IsActive:       true,
	}
	return s.raise(ctx, alert)
}

func (s *AlertService) raise(ctx context.Context, alert *models.UsageAlert) error {
	exists, err := s.store.AlertExists(ctx, alert.UserID, alert.AlertType, alert.Period)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := s.store.CreateAlert(ctx, alert); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().
		Str("user_id", alert.UserID.String()).
		Str("alert_type", alert.AlertType).
		Str("period", alert.Period).
		Msg("Usage alert raised")

	if s.publisher != nil {
		s.publisher.Publish(broker.UsageAlertTopic(alert.UserID.String()), AlertEvent{Type: "usage_alert", Alert: *alert})
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
