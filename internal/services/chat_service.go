package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"modelhub_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrModelRequired = NewValidationError("model_id is required for new conversations")
	ErrEmptyMessage  = NewValidationError("message cannot be empty")

	maxTemperature = decimal.NewFromInt(2)
)

type SendMessageRequest struct {
	Message        string
	ConversationID *uuid.UUID
	ModelID        string
	Temperature    *decimal.Decimal
	MaxTokens      *int
	SystemPrompt   string
}

type CreateConversationRequest struct {
	Title        string
	ModelID      string
	SystemPrompt string
	Temperature  *decimal.Decimal
	MaxTokens    *int
}

type TurnUsage struct {
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	Cost             decimal.Decimal `json:"cost"`
}

// TurnResult is returned for completed turns and, alongside a *ProviderError,
// for failed ones so the caller can still show the conversation.
type TurnResult struct {
	Message      *models.Message       `json:"message"`
	Conversation *ConversationListItem `json:"conversation"`
	Usage        TurnUsage             `json:"usage"`
}

// ChatService runs a chat turn from quota check to usage ledger entry.
type ChatService struct {
	store    ChatServiceDB
	catalog  ModelLookup
	provider ChatProvider
	quota    QuotaChecker
	usage    UsageRecorder
}

func NewChatService(store ChatServiceDB, catalog ModelLookup, provider ChatProvider, quota QuotaChecker, usage UsageRecorder) *ChatService {
	return &ChatService{store: store, catalog: catalog, provider: provider, quota: quota, usage: usage}
}

func validateSampling(temperature *decimal.Decimal, maxTokens *int) error {
	if temperature != nil && (temperature.IsNegative() || temperature.GreaterThan(maxTemperature)) {
		return NewValidationError("temperature must be between 0 and 2")
	}
	if maxTokens != nil && *maxTokens <= 0 {
		return NewValidationError("max_tokens must be a positive integer")
	}
	return nil
}

func newConversation(actor *models.User, model *models.AIModel, title, systemPrompt string, temperature *decimal.Decimal, maxTokens *int) *models.Conversation {
	conv := &models.Conversation{
		Title:        title,
		ModelID:      model.ID,
		Model:        *model,
		SystemPrompt: systemPrompt,
		Temperature:  decimal.NewFromFloat(models.DefaultTemperature),
		MaxTokens:    models.DefaultMaxTokens,
		IsActive:     true,
	}
	if actor != nil {
		id := actor.ID
		conv.UserID = &id
	}
	if temperature != nil {
		conv.Temperature = *temperature
	}
	if maxTokens != nil {
		conv.MaxTokens = *maxTokens
	}
	return conv
}

// CreateConversation opens an empty conversation for an authenticated user.
func (s *ChatService) CreateConversation(ctx context.Context, actor *models.User, req CreateConversationRequest) (*models.Conversation, error) {
	if req.ModelID == "" {
		return nil, ErrModelRequired
	}
	if err := validateSampling(req.Temperature, req.MaxTokens); err != nil {
		return nil, err
	}
	model, err := s.catalog.GetModelByModelID(ctx, req.ModelID)
	if err != nil {
		return nil, err
	}
	conv := newConversation(actor, model, req.Title, req.SystemPrompt, req.Temperature, req.MaxTokens)
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// SendMessage runs one turn. actor is nil for anonymous sessions, which skip
// the quota check and leave no usage record.
func (s *ChatService) SendMessage(ctx context.Context, actor *models.User, req SendMessageRequest) (*TurnResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if err := validateSampling(req.Temperature, req.MaxTokens); err != nil {
		return nil, err
	}

	var owner *uuid.UUID
	if actor != nil {
		owner = &actor.ID
	}

	var conv *models.Conversation
	if req.ConversationID != nil {
		c, err := s.store.GetConversation(ctx, *req.ConversationID, owner)
		if err != nil {
			return nil, err
		}
		conv = c
	} else {
		if req.ModelID == "" {
			return nil, ErrModelRequired
		}
		model, err := s.catalog.GetModelByModelID(ctx, req.ModelID)
		if err != nil {
			return nil, err
		}
		conv = newConversation(actor, model, "", req.SystemPrompt, req.Temperature, req.MaxTokens)
	}

	if actor != nil {
		if err := s.quota.Check(ctx, actor); err != nil {
			return nil, err
		}
	}

	if conv.ID == uuid.Nil {
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			return nil, err
		}
	}

	log := zerolog.Ctx(ctx).With().Str("conversation_id", conv.ID.String()).Str("model", conv.Model.ModelID).Logger()
	ctx = log.WithContext(ctx)

	userMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        req.Message,
		Status:         models.StatusCompleted,
	}
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	assistant := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Status:         models.StatusProcessing,
	}
	if err := s.store.CreateMessage(ctx, assistant); err != nil {
		return nil, err
	}

	// From here on every failure leaves a failed message behind.
	history, err := s.store.GetMessagesBefore(ctx, conv.ID, assistant.Seq)
	if err != nil {
		s.fail(ctx, assistant, fmt.Sprintf("Unexpected error: %v", err))
		return nil, err
	}
	prompt := BuildPrompt(conv.SystemPrompt, history)

	usage, err := s.complete(ctx, actor, conv, assistant, prompt, map[string]interface{}{
		"conversation_id": conv.ID.String(),
		"message_id":      assistant.ID.String(),
	})

	if usage != nil {
		userMsg.TokensUsed = usage.PromptTokens
		if serr := s.store.SaveMessage(ctx, userMsg); serr != nil && err == nil {
			err = serr
		}
	}
	if terr := s.store.TouchConversation(ctx, conv.ID); terr != nil {
		log.Warn().Err(terr).Msg("Failed to touch conversation")
	}

	summary, serr := s.store.Summarize(ctx, conv)
	if serr != nil {
		log.Error().Err(serr).Msg("Failed to summarize conversation")
	}
	result := &TurnResult{Message: assistant, Conversation: summary}
	if usage != nil {
		result.Usage = *usage
	}
	if err != nil {
		return result, err
	}
	if serr != nil {
		return result, serr
	}
	return result, nil
}

// Regenerate re-runs the completion for an existing assistant message using
// only the transcript that precedes it, and overwrites it in place.
func (s *ChatService) Regenerate(ctx context.Context, actor *models.User, messageID uuid.UUID) (*models.Message, error) {
	msg, conv, err := s.store.GetAssistantMessage(ctx, messageID, actor.ID)
	if err != nil {
		return nil, err
	}
	if err := s.quota.Check(ctx, actor); err != nil {
		return nil, err
	}

	log := zerolog.Ctx(ctx).With().
		Str("conversation_id", conv.ID.String()).
		Str("message_id", msg.ID.String()).
		Logger()
	ctx = log.WithContext(ctx)

	history, err := s.store.GetMessagesBefore(ctx, conv.ID, msg.Seq)
	if err != nil {
		return nil, err
	}
	prompt := BuildPrompt(conv.SystemPrompt, history)

	msg.Status = models.StatusProcessing
	msg.ErrorMessage = ""
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	_, err = s.complete(ctx, actor, conv, msg, prompt, map[string]interface{}{
		"conversation_id": conv.ID.String(),
		"message_id":      msg.ID.String(),
		"regenerated":     true,
	})
	if err != nil {
		return msg, err
	}
	log.Info().Msg("Message regenerated")
	return msg, nil
}

// complete calls the provider for an assistant message in processing state
// and moves it to completed or failed. Usage is only returned on success.
func (s *ChatService) complete(ctx context.Context, actor *models.User, conv *models.Conversation, assistant *models.Message, prompt []ChatMessage, metadata map[string]interface{}) (*TurnUsage, error) {
	log := zerolog.Ctx(ctx)

	res, err := s.provider.Complete(ctx, conv.Model.ModelID, prompt, conv.Temperature.InexactFloat64(), conv.MaxTokens)
	if err != nil {
		s.fail(ctx, assistant, err.Error())
		if actor != nil {
			s.usage.ReportFailure(ctx, actor, err.Error())
		}
		var perr *ProviderError
		if !errors.As(err, &perr) {
			err = &ProviderError{Message: err.Error()}
		}
		return nil, err
	}

	cost := s.provider.PriceBreakdown(ctx, conv.Model.ModelID, res.Usage.PromptTokens, res.Usage.CompletionTokens)

	assistant.Content = res.Content
	assistant.Status = models.StatusCompleted
	assistant.ErrorMessage = ""
	assistant.TokensUsed = res.Usage.TotalTokens
	assistant.ResponseTime = seconds(res.ResponseTime)
	assistant.ProviderID = res.ProviderID
	assistant.ModelUsed = res.Model
	assistant.Cost = cost.Total
	if err := s.store.SaveMessage(ctx, assistant); err != nil {
		s.fail(ctx, assistant, fmt.Sprintf("Unexpected error: %v", err))
		return nil, err
	}

	usage := &TurnUsage{
		PromptTokens:     res.Usage.PromptTokens,
		CompletionTokens: res.Usage.CompletionTokens,
		TotalTokens:      res.Usage.TotalTokens,
		Cost:             cost.Total,
	}

	if actor != nil {
		if cost.Fallback {
			metadata["fallback_pricing"] = true
		}
		_, err := s.usage.Record(ctx, RecordInput{
			User:             actor,
			Model:            &conv.Model,
			RequestType:      models.RequestTypeChat,
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			TotalTokens:      res.Usage.TotalTokens,
			Cost:             cost,
			ResponseTime:     res.ResponseTime,
			Success:          true,
			ProviderID:       res.ProviderID,
			ActualModel:      res.Model,
			Metadata:         metadata,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to record usage")
			return usage, fmt.Errorf("failed to record usage: %w", err)
		}
	}
	return usage, nil
}

// fail is best effort; the original error is what the caller reports.
func (s *ChatService) fail(ctx context.Context, msg *models.Message, reason string) {
	msg.Status = models.StatusFailed
	msg.ErrorMessage = reason
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("message_id", msg.ID.String()).Msg("Failed to mark message as failed")
	}
}

// BuildPrompt lays out the provider context: the system prompt when set, then
// the transcript oldest first.
func BuildPrompt(systemPrompt string, history []models.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(history)+1)
	if systemPrompt != "" {
		out = append(out, ChatMessage{Role: models.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
