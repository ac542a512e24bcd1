package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ModelProvider struct {
	Base
	Name        string `gorm:"uniqueIndex;size:100;not null" json:"name"`
	DisplayName string `gorm:"size:100" json:"display_name"`
	Description string `json:"description"`
	Website     string `json:"website"`
	LogoURL     string `json:"logo_url"`
	IsActive    bool   `json:"is_active"`
}

// Model categories
const (
	CategoryText       = "text"
	CategoryCode       = "code"
	CategoryImage      = "image"
	CategoryMultimodal = "multimodal"
	CategoryReasoning  = "reasoning"
)

// AIModel is a catalog entry. Prices are per million tokens.
type AIModel struct {
	Base
	ModelID         string          `gorm:"uniqueIndex;size:200;not null" json:"model_id"`
	Name            string          `gorm:"size:200" json:"name"`
	DisplayName     string          `gorm:"size:200" json:"display_name"`
	ProviderID      *uuid.UUID      `gorm:"type:uuid;index" json:"provider_id,omitempty"`
	Provider        *ModelProvider  `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	Description     string          `json:"description"`
	Category        string          `gorm:"size:20;default:text;index" json:"category"`
	ContextLength   int             `gorm:"default:4096" json:"context_length"`
	MaxOutputTokens int             `gorm:"default:2048" json:"max_output_tokens"`
	PromptCost      decimal.Decimal `gorm:"type:decimal(10,6);default:0" json:"prompt_cost"`
	CompletionCost  decimal.Decimal `gorm:"type:decimal(10,6);default:0" json:"completion_cost"`
	QualityScore    float64         `gorm:"default:0" json:"quality_score"`
	SpeedScore      float64         `gorm:"default:0" json:"speed_score"`
	PopularityScore float64         `gorm:"default:0;index" json:"popularity_score"`

	SupportsFunctions bool `json:"supports_functions"`
	SupportsVision    bool `json:"supports_vision"`
	SupportsStreaming bool `json:"supports_streaming"`
	IsActive          bool `gorm:"index" json:"is_active"`
	IsFeatured        bool `json:"is_featured"`
}

func (m *AIModel) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	if m.Name != "" {
		return m.Name
	}
	return m.ModelID
}
