package api

import (
	stdErrors "errors"
	"net/http"

	"modelhub_go_backend/internal/auth"
	"modelhub_go_backend/internal/errors"
	"modelhub_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type chatRequest struct {
	Message        string           `json:"message" binding:"required"`
	ConversationID *uuid.UUID       `json:"conversation_id"`
	ModelID        string           `json:"model_id"`
	Temperature    *decimal.Decimal `json:"temperature"`
	MaxTokens      *int             `json:"max_tokens"`
	SystemPrompt   string           `json:"system_prompt"`
}

func chatHandler(chat *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatRequest
		if !bindJSON(c, &req) {
			return
		}

		result, err := chat.SendMessage(c.Request.Context(), auth.CurrentUser(c), services.SendMessageRequest{
			Message:        req.Message,
			ConversationID: req.ConversationID,
			ModelID:        req.ModelID,
			Temperature:    req.Temperature,
			MaxTokens:      req.MaxTokens,
			SystemPrompt:   req.SystemPrompt,
		})
		if err != nil {
			var perr *services.ProviderError
			if stdErrors.As(err, &perr) && result != nil {
				errors.HandleError(c, errors.NewProviderError(perr.Message, err).With("conversation", result.Conversation))
				return
			}
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"message":      result.Message,
			"conversation": result.Conversation,
			"usage":        result.Usage,
		})
	}
}

func regenerateHandler(chat *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathUUID(c, "id")
		if !ok {
			return
		}
		msg, err := chat.Regenerate(c.Request.Context(), auth.CurrentUser(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, msg)
	}
}

func listConversationsHandler(store services.ChatServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		user := auth.CurrentUser(c)
		convs, err := store.ListConversations(ctx, user.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		items := make([]*services.ConversationListItem, 0, len(convs))
		for i := range convs {
			item, err := store.Summarize(ctx, &convs[i])
			if err != nil {
				respondError(c, err)
				return
			}
			items = append(items, item)
		}
		c.JSON(http.StatusOK, items)
	}
}

type createConversationRequest struct {
	Title        string           `json:"title" binding:"max=200"`
	ModelID      string           `json:"model_id" binding:"required"`
	SystemPrompt string           `json:"system_prompt"`
	Temperature  *decimal.Decimal `json:"temperature"`
	MaxTokens    *int             `json:"max_tokens"`
}

func createConversationHandler(chat *services.ChatService, store services.ChatServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createConversationRequest
		if !bindJSON(c, &req) {
			return
		}
		ctx := c.Request.Context()
		conv, err := chat.CreateConversation(ctx, auth.CurrentUser(c), services.CreateConversationRequest{
			Title:        req.Title,
			ModelID:      req.ModelID,
			SystemPrompt: req.SystemPrompt,
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		detail, err := store.Detail(ctx, conv)
		if err != nil {
			respondError(c, err)
			return
		}
		zerolog.Ctx(ctx).Info().Str("conversation_id", conv.ID.String()).Msg("Conversation created")
		c.JSON(http.StatusCreated, detail)
	}
}

func getConversationHandler(store services.ChatServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathUUID(c, "id")
		if !ok {
			return
		}
		user := auth.CurrentUser(c)
		conv, err := store.GetConversation(c.Request.Context(), id, &user.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		detail, err := store.Detail(c.Request.Context(), conv)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

type updateConversationRequest struct {
	Title        *string          `json:"title" binding:"omitempty,max=200"`
	SystemPrompt *string          `json:"system_prompt"`
	Temperature  *decimal.Decimal `json:"temperature"`
	MaxTokens    *int             `json:"max_tokens" binding:"omitempty,gt=0"`
}

func updateConversationHandler(store services.ChatServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathUUID(c, "id")
		if !ok {
			return
		}
		var req updateConversationRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.Temperature != nil && (req.Temperature.IsNegative() || req.Temperature.GreaterThan(decimal.NewFromInt(2))) {
			errors.HandleError(c, errors.New400Error("temperature must be between 0 and 2"))
			return
		}

		ctx := c.Request.Context()
		user := auth.CurrentUser(c)
		conv, err := store.GetConversation(ctx, id, &user.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		err = store.UpdateConversation(ctx, conv, services.ConversationUpdate{
			Title:        req.Title,
			SystemPrompt: req.SystemPrompt,
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		detail, err := store.Detail(ctx, conv)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func deleteConversationHandler(store services.ChatServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathUUID(c, "id")
		if !ok {
			return
		}
		if err := store.SoftDeleteConversation(c.Request.Context(), id, auth.CurrentUser(c).ID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted successfully"})
	}
}

func conversationMessagesHandler(store services.ChatServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathUUID(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		user := auth.CurrentUser(c)
		if _, err := store.GetConversation(ctx, id, &user.ID); err != nil {
			respondError(c, err)
			return
		}
		msgs, err := store.GetMessages(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}
