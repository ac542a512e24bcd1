package services

import (
	"context"
	"time"

	"modelhub_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	titleLength   = 50
	previewLength = 100
)

// ConversationListItem is the compact projection used by listings and turn responses.
type ConversationListItem struct {
	ID                 uuid.UUID `json:"id"`
	Title              string    `json:"title"`
	ModelName          string    `json:"model_name"`
	MessageCount       int64     `json:"message_count"`
	LastMessagePreview string    `json:"last_message_preview"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type ConversationDetail struct {
	models.Conversation
	Title        string          `json:"title"`
	MessageCount int64           `json:"message_count"`
	TotalTokens  int64           `json:"total_tokens"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

type ConversationUpdate struct {
	Title        *string
	SystemPrompt *string
	Temperature  *decimal.Decimal
	MaxTokens    *int
}

// ChatServiceDB stores conversations and their ordered messages.
type ChatServiceDB interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (*models.Conversation, error)
	ListConversations(ctx context.Context, owner uuid.UUID) ([]models.Conversation, error)
	UpdateConversation(ctx context.Context, conv *models.Conversation, in ConversationUpdate) error
	SoftDeleteConversation(ctx context.Context, id uuid.UUID, owner uuid.UUID) error
	TouchConversation(ctx context.Context, id uuid.UUID) error
	CreateMessage(ctx context.Context, msg *models.Message) error
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
	GetMessagesBefore(ctx context.Context, conversationID uuid.UUID, seq int64) ([]models.Message, error)
	GetAssistantMessage(ctx context.Context, messageID uuid.UUID, owner uuid.UUID) (*models.Message, *models.Conversation, error)
	Summarize(ctx context.Context, conv *models.Conversation) (*ConversationListItem, error)
	Detail(ctx context.Context, conv *models.Conversation) (*ConversationDetail, error)
}

type DefaultChatService struct {
	db *gorm.DB
}

func NewChatServiceDB(db *gorm.DB) ChatServiceDB {
	return &DefaultChatService{db: db}
}

func (s *DefaultChatService) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if err := s.db.WithContext(ctx).Omit("Model").Create(conv).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Preload("Provider").First(&conv.Model, "id = ?", conv.ModelID).Error
}

// GetConversation returns an active conversation owned by owner. A nil owner
// only matches anonymous conversations.
func (s *DefaultChatService) GetConversation(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (*models.Conversation, error) {
	q := s.db.WithContext(ctx).Preload("Model.Provider").Where("id = ? AND is_active = ?", id, true)
	if owner == nil {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id = ?", *owner)
	}
	var conv models.Conversation
	if err := q.First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *DefaultChatService) ListConversations(ctx context.Context, owner uuid.UUID) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).Preload("Model").
		Where("user_id = ? AND is_active = ?", owner, true).
		Order("updated_at DESC").
		Find(&convs).Error
	return convs, err
}

func (s *DefaultChatService) UpdateConversation(ctx context.Context, conv *models.Conversation, in ConversationUpdate) error {
	if in.Title != nil {
		conv.Title = *in.Title
	}
	if in.SystemPrompt != nil {
		conv.SystemPrompt = *in.SystemPrompt
	}
	if in.Temperature != nil {
		conv.Temperature = *in.Temperature
	}
	if in.MaxTokens != nil {
		conv.MaxTokens = *in.MaxTokens
	}
	return s.db.WithContext(ctx).Model(conv).Select("Title", "SystemPrompt", "Temperature", "MaxTokens", "UpdatedAt").Updates(conv).Error
}

// SoftDeleteConversation clears the active flag. Messages and usage rows stay.
func (s *DefaultChatService) SoftDeleteConversation(ctx context.Context, id uuid.UUID, owner uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND user_id = ? AND is_active = ?", id, owner, true).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *DefaultChatService) TouchConversation(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).Update("updated_at", time.Now().UTC()).Error
}

// CreateMessage appends msg to its conversation, assigning the next sequence number.
func (s *DefaultChatService) CreateMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		if err := tx.Model(&models.Message{}).
			Where("conversation_id = ?", msg.ConversationID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		msg.Seq = last + 1
		return tx.Create(msg).Error
	})
}

func (s *DefaultChatService) SaveMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Save(msg).Error
}

func (s *DefaultChatService) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("seq ASC").Find(&msgs).Error
	return msgs, err
}

// GetMessagesBefore returns the transcript strictly older than seq.
func (s *DefaultChatService) GetMessagesBefore(ctx context.Context, conversationID uuid.UUID, seq int64) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND seq < ?", conversationID, seq).
		Order("seq ASC").
		Find(&msgs).Error
	return msgs, err
}

// GetAssistantMessage finds an assistant message in one of owner's conversations.
func (s *DefaultChatService) GetAssistantMessage(ctx context.Context, messageID uuid.UUID, owner uuid.UUID) (*models.Message, *models.Conversation, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("messages.id = ? AND messages.role = ? AND conversations.user_id = ?", messageID, models.RoleAssistant, owner).
		First(&msg).Error
	if err != nil {
		return nil, nil, err
	}
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Preload("Model.Provider").First(&conv, "id = ?", msg.ConversationID).Error; err != nil {
		return nil, nil, err
	}
	return &msg, &conv, nil
}

func (s *DefaultChatService) Summarize(ctx context.Context, conv *models.Conversation) (*ConversationListItem, error) {
	db := s.db.WithContext(ctx)
	item := &ConversationListItem{
		ID:        conv.ID,
		ModelName: conv.Model.DisplayName,
		IsActive:  conv.IsActive,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
	if err := db.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&item.MessageCount).Error; err != nil {
		return nil, err
	}
	title, err := s.title(ctx, conv)
	if err != nil {
		return nil, err
	}
	item.Title = title

	var last models.Message
	err = db.Where("conversation_id = ? AND role = ?", conv.ID, models.RoleUser).Order("seq DESC").Limit(1).Find(&last).Error
	if err != nil {
		return nil, err
	}
	item.LastMessagePreview = ellipsize(last.Content, previewLength)
	return item, nil
}

func (s *DefaultChatService) Detail(ctx context.Context, conv *models.Conversation) (*ConversationDetail, error) {
	msgs, err := s.GetMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	title, err := s.title(ctx, conv)
	if err != nil {
		return nil, err
	}
	d := &ConversationDetail{
		Conversation: *conv,
		Title:        title,
		MessageCount: int64(len(msgs)),
		TotalCost:    decimal.Zero,
	}
	for _, m := range msgs {
		d.TotalTokens += int64(m.TokensUsed)
		d.TotalCost = d.TotalCost.Add(m.Cost)
	}
	return d, nil
}

// title prefers an explicit title, then the first user message, then the model name.
func (s *DefaultChatService) title(ctx context.Context, conv *models.Conversation) (string, error) {
	if conv.Title != "" {
		return conv.Title, nil
	}
	var first models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND role = ?", conv.ID, models.RoleUser).
		Order("seq ASC").Limit(1).
		Find(&first).Error
	if err != nil {
		return "", err
	}
	if first.Content != "" {
		return ellipsize(first.Content, titleLength), nil
	}
	return "Conversation with " + conv.Model.Label(), nil
}

func ellipsize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
