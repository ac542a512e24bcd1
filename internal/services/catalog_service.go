package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"modelhub_go_backend/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModelFilter mirrors the marketplace query parameters.
type ModelFilter struct {
	Category          string
	Provider          string
	SupportsFunctions bool
	SupportsVision    bool
	Featured          bool
	Search            string
}

type ProviderSummary struct {
	models.ModelProvider
	ModelCount int64 `json:"model_count"`
}

type CatalogStats struct {
	TotalModels    int64    `json:"total_models"`
	TotalProviders int64    `json:"total_providers"`
	Categories     []string `json:"categories"`
	FeaturedCount  int64    `json:"featured_count"`
}

const FeaturedModelLimit = 6

// CatalogServiceDB is the read-mostly model registry.
type CatalogServiceDB interface {
	GetModelByModelID(ctx context.Context, modelID string) (*models.AIModel, error)
	GetActiveModel(ctx context.Context, modelID string) (*models.AIModel, error)
	ListProviders(ctx context.Context) ([]ProviderSummary, error)
	ListModels(ctx context.Context, filter ModelFilter) ([]models.AIModel, error)
	Categories(ctx context.Context) ([]string, error)
	Featured(ctx context.Context, limit int) ([]models.AIModel, error)
	Stats(ctx context.Context) (*CatalogStats, error)
	UpsertProvider(ctx context.Context, p *models.ModelProvider) error
	UpsertModel(ctx context.Context, m *models.AIModel) error
}

type DefaultCatalogService struct {
	db *gorm.DB
}

func NewCatalogServiceDB(db *gorm.DB) CatalogServiceDB {
	return &DefaultCatalogService{db: db}
}

// GetModelByModelID looks a model up regardless of its active flag, so pricing
// stays available for conversations created before a model was retired.
func (s *DefaultCatalogService) GetModelByModelID(ctx context.Context, modelID string) (*models.AIModel, error) {
	var m models.AIModel
	if err := s.db.WithContext(ctx).Preload("Provider").Where("model_id = ?", modelID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *DefaultCatalogService) GetActiveModel(ctx context.Context, modelID string) (*models.AIModel, error) {
	var m models.AIModel
	err := s.db.WithContext(ctx).Preload("Provider").
		Where("model_id = ? AND is_active = ?", modelID, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *DefaultCatalogService) ListProviders(ctx context.Context) ([]ProviderSummary, error) {
	var providers []models.ModelProvider
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("name").Find(&providers).Error; err != nil {
		return nil, err
	}

	type countRow struct {
		ProviderID string
		N          int64
	}
	var rows []countRow
	err := s.db.WithContext(ctx).Model(&models.AIModel{}).
		Select("provider_id, COUNT(*) AS n").
		Where("is_active = ? AND provider_id IS NOT NULL", true).
		Group("provider_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.ProviderID] = r.N
	}

	out := make([]ProviderSummary, 0, len(providers))
	for _, p := range providers {
		out = append(out, ProviderSummary{ModelProvider: p, ModelCount: counts[p.ID.String()]})
	}
	return out, nil
}

func (s *DefaultCatalogService) ListModels(ctx context.Context, filter ModelFilter) ([]models.AIModel, error) {
	q := s.db.WithContext(ctx).Preload("Provider").Where("is_active = ?", true)

	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Provider != "" {
		q = q.Where("provider_id IN (?)",
			s.db.Model(&models.ModelProvider{}).Select("id").Where("name = ?", filter.Provider))
	}
	if filter.SupportsFunctions {
		q = q.Where("supports_functions = ?", true)
	}
	if filter.SupportsVision {
		q = q.Where("supports_vision = ?", true)
	}
	if filter.Featured {
		q = q.Where("is_featured = ?", true)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(display_name) LIKE ? OR LOWER(description) LIKE ?", like, like, like)
	}

	var out []models.AIModel
	if err := q.Order("is_featured DESC, popularity_score DESC, name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DefaultCatalogService) Categories(ctx context.Context) ([]string, error) {
	var cats []string
	err := s.db.WithContext(ctx).Model(&models.AIModel{}).
		Where("is_active = ?", true).
		Distinct("category").
		Order("category").
		Pluck("category", &cats).Error
	return cats, err
}

func (s *DefaultCatalogService) Featured(ctx context.Context, limit int) ([]models.AIModel, error) {
	if limit <= 0 {
		limit = FeaturedModelLimit
	}
	var out []models.AIModel
	err := s.db.WithContext(ctx).Preload("Provider").
		Where("is_active = ? AND is_featured = ?", true, true).
		Order("popularity_score DESC, name ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *DefaultCatalogService) Stats(ctx context.Context) (*CatalogStats, error) {
	stats := &CatalogStats{}
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.AIModel{}).Where("is_active = ?", true).Count(&stats.TotalModels).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.ModelProvider{}).Where("is_active = ?", true).Count(&stats.TotalProviders).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.AIModel{}).Where("is_active = ? AND is_featured = ?", true, true).Count(&stats.FeaturedCount).Error; err != nil {
		return nil, err
	}
	cats, err := s.Categories(ctx)
	if err != nil {
		return nil, err
	}
	stats.Categories = cats
	return stats, nil
}

func (s *DefaultCatalogService) UpsertProvider(ctx context.Context, p *models.ModelProvider) error {
	var existing models.ModelProvider
	err := s.db.WithContext(ctx).Where("name = ?", p.Name).First(&existing).Error
	if err == nil {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		return s.db.WithContext(ctx).Save(p).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Create(p).Error
}

// UpsertModel keys on model_id and refreshes every other column.
func (s *DefaultCatalogService) UpsertModel(ctx context.Context, m *models.AIModel) error {
	var existing models.AIModel
	err := s.db.WithContext(ctx).Where("model_id = ?", m.ModelID).First(&existing).Error
	if err == nil {
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
		return s.db.WithContext(ctx).Omit(clause.Associations).Save(m).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(m).Error
}

// SyncCatalog imports the provider's model list into the catalog. Provider
// prices are per token and are stored per million tokens.
func SyncCatalog(ctx context.Context, catalog CatalogServiceDB, provider *OpenRouterService) (int, error) {
	log := zerolog.Ctx(ctx)

	remote, err := provider.ListModels(ctx)
	if err != nil {
		return 0, err
	}

	providers := map[string]*models.ModelProvider{}
	synced := 0
	for _, rm := range remote {
		vendor := rm.ID
		if i := strings.Index(rm.ID, "/"); i > 0 {
			vendor = rm.ID[:i]
		}
		p, ok := providers[vendor]
		if !ok {
			p = &models.ModelProvider{Name: vendor, DisplayName: vendor, IsActive: true}
			if err := catalog.UpsertProvider(ctx, p); err != nil {
				return synced, fmt.Errorf("failed to upsert provider %s: %w", vendor, err)
			}
			providers[vendor] = p
		}

		m := &models.AIModel{
			ModelID:           rm.ID,
			Name:              rm.Name,
			DisplayName:       rm.Name,
			ProviderID:        &p.ID,
			Description:       rm.Description,
			Category:          models.CategoryText,
			ContextLength:     rm.ContextLength,
			MaxOutputTokens:   rm.TopProvider.MaxCompletionTokens,
			PromptCost:        perMillion(rm.Pricing.Prompt),
			CompletionCost:    perMillion(rm.Pricing.Completion),
			SupportsFunctions: containsString(rm.SupportedParameters, "tools"),
			SupportsVision:    containsString(rm.Architecture.InputModalities, "image"),
			SupportsStreaming: true,
			IsActive:          true,
		}
		if m.SupportsVision {
			m.Category = models.CategoryMultimodal
		}
		if m.MaxOutputTokens == 0 {
			m.MaxOutputTokens = models.DefaultMaxTokens
		}
		if err := catalog.UpsertModel(ctx, m); err != nil {
			log.Warn().Err(err).Str("model", rm.ID).Msg("Skipping model")
			continue
		}
		synced++
	}
	log.Info().Int("models", synced).Msg("Catalog synced")
	return synced, nil
}

func perMillion(perToken string) decimal.Decimal {
	d, err := decimal.NewFromString(perToken)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d.Mul(tokensPerMillion)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
