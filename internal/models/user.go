package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

const DefaultPreferredModel = "switchpoint/openrouter-4b"

// User limits have no column defaults: a zero limit means blocked and must
// survive an insert, so callers start from DefaultLimits.
type User struct {
	Base
	Username     string `gorm:"uniqueIndex;size:150;not null" json:"username"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	IsActive     bool   `json:"is_active"`

	OpenRouterAPIKey   string     `json:"-"`
	APIKeyVerified     bool       `json:"api_key_verified"`
	APIKeyLastVerified *time.Time `json:"api_key_last_verified,omitempty"`

	DailyRequestLimit   int             `json:"daily_request_limit"`
	MonthlyRequestLimit int             `json:"monthly_request_limit"`
	DailyCostLimit      decimal.Decimal `gorm:"type:decimal(10,2)" json:"daily_cost_limit"`
	MonthlyCostLimit    decimal.Decimal `gorm:"type:decimal(10,2)" json:"monthly_cost_limit"`

	PreferredModel  string `gorm:"size:100" json:"preferred_model"`
	ThemePreference string `gorm:"size:10" json:"theme_preference"`
}

// Limits groups the four quota thresholds of an account.
type Limits struct {
	DailyRequestLimit   int             `json:"daily_request_limit"`
	MonthlyRequestLimit int             `json:"monthly_request_limit"`
	DailyCostLimit      decimal.Decimal `json:"daily_cost_limit"`
	MonthlyCostLimit    decimal.Decimal `json:"monthly_cost_limit"`
}

func DefaultLimits() Limits {
	return Limits{
		DailyRequestLimit:   100,
		MonthlyRequestLimit: 3000,
		DailyCostLimit:      decimal.NewFromInt(10),
		MonthlyCostLimit:    decimal.NewFromInt(300),
	}
}

func (u *User) Limits() Limits {
	return Limits{
		DailyRequestLimit:   u.DailyRequestLimit,
		MonthlyRequestLimit: u.MonthlyRequestLimit,
		DailyCostLimit:      u.DailyCostLimit,
		MonthlyCostLimit:    u.MonthlyCostLimit,
	}
}

func (u *User) ApplyLimits(l Limits) {
	u.DailyRequestLimit = l.DailyRequestLimit
	u.MonthlyRequestLimit = l.MonthlyRequestLimit
	u.DailyCostLimit = l.DailyCostLimit
	u.MonthlyCostLimit = l.MonthlyCostLimit
}

func (u *User) DisplayName() string {
	if u.FirstName != "" || u.LastName != "" {
		if u.LastName == "" {
			return u.FirstName
		}
		if u.FirstName == "" {
			return u.LastName
		}
		return u.FirstName + " " + u.LastName
	}
	return u.Username
}

// UserAPIKey is an additional provider key owned by a user.
type UserAPIKey struct {
	Base
	UserID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_user_key_name" json:"-"`
	Name     string     `gorm:"size:100;not null;uniqueIndex:idx_user_key_name" json:"name"`
	APIKey   string     `gorm:"not null" json:"-"`
	IsActive bool       `json:"is_active"`
	LastUsed *time.Time `json:"last_used,omitempty"`
}

// MaskedKey shows only the first and last four characters.
func (k *UserAPIKey) MaskedKey() string {
	if len(k.APIKey) <= 8 {
		return "****"
	}
	return k.APIKey[:4] + "..." + k.APIKey[len(k.APIKey)-4:]
}
