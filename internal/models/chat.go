package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
)

// Conversation.UserID is nil for anonymous sessions.
type Conversation struct {
	Base
	UserID       *uuid.UUID      `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Title        string          `gorm:"size:200" json:"title"`
	ModelID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"-"`
	Model        AIModel         `gorm:"foreignKey:ModelID;constraint:OnDelete:RESTRICT" json:"model"`
	SystemPrompt string          `json:"system_prompt"`
	Temperature  decimal.Decimal `gorm:"type:decimal(3,2)" json:"temperature"`
	MaxTokens    int             `json:"max_tokens"`
	IsActive     bool            `gorm:"index" json:"is_active"`
	Messages     []Message       `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

func (c *Conversation) OwnedBy(userID *uuid.UUID) bool {
	if c.UserID == nil || userID == nil {
		return c.UserID == nil && userID == nil
	}
	return *c.UserID == *userID
}

// Message rows are ordered by Seq, which the store assigns in creation order.
type Message struct {
	Base
	ConversationID uuid.UUID       `gorm:"type:uuid;not null;index:idx_message_conv_seq" json:"conversation_id"`
	Seq            int64           `gorm:"not null;index:idx_message_conv_seq" json:"-"`
	Role           string          `gorm:"size:10;not null" json:"role"`
	Content        string          `json:"content"`
	TokensUsed     int             `json:"tokens_used"`
	Cost           decimal.Decimal `gorm:"type:decimal(10,6)" json:"cost"`
	ResponseTime   decimal.Decimal `gorm:"type:decimal(8,3)" json:"response_time"`
	Status         string          `gorm:"size:20;not null" json:"status"`
	ErrorMessage   string          `json:"error_message"`
	ProviderID     string          `gorm:"size:100" json:"openrouter_id"`
	ModelUsed      string          `gorm:"size:100" json:"model_used"`
}
