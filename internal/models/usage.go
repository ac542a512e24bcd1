package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	RequestTypeChat       = "chat"
	RequestTypeCompletion = "completion"
	RequestTypeImage      = "image"
	RequestTypeEmbedding  = "embedding"
	RequestTypeModeration = "moderation"
)

// UsageRecord is write-once. Nothing in the code base updates or deletes it.
type UsageRecord struct {
	Base
	UserID           uuid.UUID       `gorm:"type:uuid;not null;index:idx_usage_user_created" json:"user_id"`
	ModelID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"-"`
	Model            AIModel         `gorm:"foreignKey:ModelID;constraint:OnDelete:RESTRICT" json:"model"`
	RequestType      string          `gorm:"size:20;not null" json:"request_type"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TokensUsed       int             `json:"tokens_used"`
	Cost             decimal.Decimal `gorm:"type:decimal(10,6)" json:"cost"`
	PromptCost       decimal.Decimal `gorm:"type:decimal(10,6)" json:"prompt_cost"`
	CompletionCost   decimal.Decimal `gorm:"type:decimal(10,6)" json:"completion_cost"`
	ResponseTime     decimal.Decimal `gorm:"type:decimal(8,3)" json:"response_time"`
	Success          bool            `json:"success"`
	ErrorMessage     string          `json:"error_message"`
	ProviderID       string          `gorm:"size:100" json:"openrouter_id"`
	ActualModel      string          `gorm:"size:100" json:"actual_model"`
	ProviderMetadata datatypes.JSON  `json:"provider_metadata,omitempty"`
}

const (
	AlertDailyLimit    = "daily_limit"
	AlertMonthlyLimit  = "monthly_limit"
	AlertCostLimit     = "cost_limit"
	AlertQuotaExceeded = "quota_exceeded"
	AlertAPIError      = "api_error"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

type UsageAlert struct {
	Base
	UserID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"-"`
	AlertType      string          `gorm:"size:20;not null" json:"alert_type"`
	Severity       string          `gorm:"size:10;not null" json:"severity"`
	Period         string          `gorm:"size:40;index" json:"period"`
	Title          string          `gorm:"size:200" json:"title"`
	Message        string          `json:"message"`
	ThresholdValue decimal.Decimal `gorm:"type:decimal(10,2)" json:"threshold_value"`
	CurrentValue   decimal.Decimal `gorm:"type:decimal(10,2)" json:"current_value"`
	IsRead         bool            `json:"is_read"`
	IsActive       bool            `json:"is_active"`
}

// QuotaTopUp is a paid raise of a user's monthly cost limit.
type QuotaTopUp struct {
	Base
	UserID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	StripeSessionID string          `gorm:"uniqueIndex;size:255;not null" json:"stripe_session_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(10,2)" json:"amount"`
}
