package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"modelhub_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserExists         = errors.New("a user with that username or email already exists")
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrInvalidKey         = errors.New("invalid API key")
)

// ValidationError is reported to the caller verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// KeyVerifier checks provider credentials.
type KeyVerifier interface {
	VerifyKey(ctx context.Context, key string) (bool, string)
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type ProfileUpdate struct {
	Email            *string
	FirstName        *string
	LastName         *string
	PreferredModel   *string
	ThemePreference  *string
	OpenRouterAPIKey *string
}

type LimitsUpdate struct {
	DailyRequestLimit   *int
	MonthlyRequestLimit *int
	DailyCostLimit      *decimal.Decimal
	MonthlyCostLimit    *decimal.Decimal
	PreferredModel      *string
	ThemePreference     *string
}

type UserStats struct {
	DailyUsage        *UsageTotals  `json:"daily_usage"`
	MonthlyUsage      *UsageTotals  `json:"monthly_usage"`
	CanMakeRequest    RequestStatus `json:"can_make_request"`
	ConversationCount int64         `json:"conversation_count"`
	APIKeyCount       int64         `json:"api_key_count"`
	Limits            models.Limits `json:"limits"`
}

type RequestStatus struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message"`
}

// UserService owns accounts, their limits and their provider keys.
type UserService struct {
	db       *gorm.DB
	verifier KeyVerifier
	quota    *QuotaService
	usage    *UsageService
	defaults models.Limits
}

func NewUserService(db *gorm.DB, verifier KeyVerifier, quota *QuotaService, usage *UsageService, defaults models.Limits) *UserService {
	return &UserService{db: db, verifier: verifier, quota: quota, usage: usage, defaults: defaults}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Username == "" || in.Email == "" {
		return nil, NewValidationError("username and email are required")
	}
	if len(in.Password) < 8 {
		return nil, NewValidationError("password must be at least 8 characters")
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", in.Username, in.Email).
		Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:        in.Username,
		Email:           in.Email,
		PasswordHash:    string(hash),
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		IsActive:        true,
		PreferredModel:  models.DefaultPreferredModel,
		ThemePreference: models.ThemeSystem,
	}
	user.ApplyLimits(s.defaults)

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("user_id", user.ID.String()).Msg("User registered")
	return user, nil
}

// Authenticate accepts a username or an email address.
func (s *UserService) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	var user models.User
	login = strings.TrimSpace(login)
	err := s.db.WithContext(ctx).
		Where("username = ? OR email = ?", login, strings.ToLower(login)).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, user *models.User, in ProfileUpdate) (*models.User, error) {
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" {
			return nil, NewValidationError("email cannot be empty")
		}
		user.Email = email
	}
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.PreferredModel != nil {
		user.PreferredModel = *in.PreferredModel
	}
	if in.ThemePreference != nil {
		if !validTheme(*in.ThemePreference) {
			return nil, NewValidationError("theme_preference must be one of light, dark, system")
		}
		user.ThemePreference = *in.ThemePreference
	}
	if in.OpenRouterAPIKey != nil {
		user.OpenRouterAPIKey = strings.TrimSpace(*in.OpenRouterAPIKey)
		user.APIKeyVerified = false
		if user.OpenRouterAPIKey != "" {
			ok, _ := s.verifier.VerifyKey(ctx, user.OpenRouterAPIKey)
			now := time.Now().UTC()
			user.APIKeyVerified = ok
			user.APIKeyLastVerified = &now
		}
	}
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateLimits rejects negative limits. Zero is allowed and blocks the meter.
func (s *UserService) UpdateLimits(ctx context.Context, user *models.User, in LimitsUpdate) (*models.User, error) {
	limits := user.Limits()
	if in.DailyRequestLimit != nil {
		if *in.DailyRequestLimit < 0 {
			return nil, NewValidationError("daily_request_limit must be >= 0")
		}
		limits.DailyRequestLimit = *in.DailyRequestLimit
	}
	if in.MonthlyRequestLimit != nil {
		if *in.MonthlyRequestLimit < 0 {
			return nil, NewValidationError("monthly_request_limit must be >= 0")
		}
		limits.MonthlyRequestLimit = *in.MonthlyRequestLimit
	}
	if in.DailyCostLimit != nil {
		if in.DailyCostLimit.IsNegative() {
			return nil, NewValidationError("daily_cost_limit must be >= 0")
		}
		limits.DailyCostLimit = *in.DailyCostLimit
	}
	if in.MonthlyCostLimit != nil {
		if in.MonthlyCostLimit.IsNegative() {
			return nil, NewValidationError("monthly_cost_limit must be >= 0")
		}
		limits.MonthlyCostLimit = *in.MonthlyCostLimit
	}
	if in.ThemePreference != nil && !validTheme(*in.ThemePreference) {
		return nil, NewValidationError("theme_preference must be one of light, dark, system")
	}

	user.ApplyLimits(limits)
	if in.PreferredModel != nil {
		user.PreferredModel = *in.PreferredModel
	}
	if in.ThemePreference != nil {
		user.ThemePreference = *in.ThemePreference
	}
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// RaiseMonthlyCostLimit adds a paid top-up to the monthly cost limit. A
// Stripe session is applied at most once.
func (s *UserService) RaiseMonthlyCostLimit(ctx context.Context, userID uuid.UUID, sessionID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError("top-up amount must be positive")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.QuotaTopUp{}).Where("stripe_session_id = ?", sessionID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if err := tx.Create(&models.QuotaTopUp{UserID: userID, StripeSessionID: sessionID, Amount: amount}).Error; err != nil {
			return err
		}
		res := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("monthly_cost_limit", gorm.Expr("monthly_cost_limit + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (s *UserService) VerifyAPIKey(ctx context.Context, key string) (bool, string) {
	return s.verifier.VerifyKey(ctx, key)
}

func (s *UserService) Stats(ctx context.Context, user *models.User) (*UserStats, error) {
	daily, err := s.usage.DailyUsage(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	monthly, err := s.usage.MonthlyUsage(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	ok, reason, err := s.quota.CanProceed(ctx, user)
	if err != nil {
		return nil, err
	}
	stats := &UserStats{
		DailyUsage:     daily,
		MonthlyUsage:   monthly,
		CanMakeRequest: RequestStatus{Allowed: ok, Message: reason},
		Limits:         user.Limits(),
	}
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Conversation{}).Where("user_id = ? AND is_active = ?", user.ID, true).Count(&stats.ConversationCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.UserAPIKey{}).Where("user_id = ? AND is_active = ?", user.ID, true).Count(&stats.APIKeyCount).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *UserService) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]models.UserAPIKey, error) {
	var keys []models.UserAPIKey
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

// CreateAPIKey stores a key only after the provider accepts it.
func (s *UserService) CreateAPIKey(ctx context.Context, userID uuid.UUID, name, key string) (*models.UserAPIKey, error) {
	name = strings.TrimSpace(name)
	key = strings.TrimSpace(key)
	if name == "" || key == "" {
		return nil, NewValidationError("name and api_key are required")
	}
	if ok, msg := s.verifier.VerifyKey(ctx, key); !ok {
		return nil, NewValidationError("Invalid API key: %s", msg)
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.UserAPIKey{}).Where("user_id = ? AND name = ?", userID, name).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, NewValidationError("an API key named %q already exists", name)
	}

	k := &models.UserAPIKey{UserID: userID, Name: name, APIKey: key, IsActive: true}
	if err := s.db.WithContext(ctx).Create(k).Error; err != nil {
		return nil, err
	}
	return k, nil
}

func (s *UserService) GetAPIKey(ctx context.Context, userID, keyID uuid.UUID) (*models.UserAPIKey, error) {
	var k models.UserAPIKey
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", keyID, userID).First(&k).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *UserService) DeleteAPIKey(ctx context.Context, userID, keyID uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", keyID, userID).Delete(&models.UserAPIKey{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func validTheme(t string) bool {
	switch t {
	case models.ThemeLight, models.ThemeDark, models.ThemeSystem:
		return true
	}
	return false
}
