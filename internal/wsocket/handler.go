package wsocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"modelhub_go_backend/internal/models"
	"modelhub_go_backend/internal/services"
	"modelhub_go_backend/internal/utils/broker"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type QuotaReporter interface {
	Quotas(ctx context.Context, user *models.User) (*services.QuotaStatus, error)
}

// UserLoader reloads the account so limit changes apply to an open socket.
type UserLoader interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type TurnRunner interface {
	SendMessage(ctx context.Context, actor *models.User, req services.SendMessageRequest) (*services.TurnResult, error)
}

type Handler struct {
	chat               TurnRunner
	quota              QuotaReporter
	users              UserLoader
	broker             *broker.Broker
	upgrader           websocket.Upgrader
	quotaCheckInterval time.Duration
}

// Message is the frame exchanged in both directions.
type Message struct {
	Type           string      `json:"type"`
	Content        string      `json:"content,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
	ModelID        string      `json:"modelId,omitempty"`
	Data           interface{} `json:"data,omitempty"`
}

func NewHandler(chat TurnRunner, quota QuotaReporter, users UserLoader, messageBroker *broker.Broker, upgrader websocket.Upgrader, quotaCheckInterval time.Duration) *Handler {
	return &Handler{
		chat:               chat,
		quota:              quota,
		users:              users,
		broker:             messageBroker,
		upgrader:           upgrader,
		quotaCheckInterval: quotaCheckInterval,
	}
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, user *models.User) {
	log := zerolog.Ctx(r.Context()).With().Str("user_id", user.ID.String()).Logger()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Error upgrading connection")
		return
	}
	defer ws.Close()
	c := &conn{ws: ws}

	ctx, cancel := context.WithCancel(log.WithContext(r.Context()))
	defer cancel()

	topic := broker.UsageAlertTopic(user.ID.String())
	alerts := h.broker.Subscribe(topic)
	defer h.broker.Unsubscribe(topic, alerts)

	ticker := time.NewTicker(h.quotaCheckInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-alerts:
				if !ok {
					return
				}
				if err := c.send(Message{Type: "usage_alert", Data: evt}); err != nil {
					log.Debug().Err(err).Msg("Error sending usage alert")
					return
				}
			case <-ticker.C:
				current, ok := h.reload(ctx, c, user.ID)
				if !ok {
					return
				}
				if err := h.sendQuotaStatus(ctx, c, current); err != nil {
					log.Debug().Err(err).Msg("Error sending quota status")
					return
				}
			}
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("Websocket closed")
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.send(Message{Type: "error", Content: "Invalid message format"})
			continue
		}

		switch msg.Type {
		case "message":
			current, ok := h.reload(ctx, c, user.ID)
			if !ok {
				return
			}
			h.handleChatMessage(ctx, c, current, msg)
		case "get_quota_status":
			current, ok := h.reload(ctx, c, user.ID)
			if !ok {
				return
			}
			if err := h.sendQuotaStatus(ctx, c, current); err != nil {
				log.Debug().Err(err).Msg("Error sending quota status")
			}
		case "ping":
			c.send(Message{Type: "pong"})
		default:
			log.Debug().Str("type", msg.Type).Msg("Unknown message type")
		}
	}
}

// reload fetches the account's current limits. On failure the client is told
// and the socket is closed, which also ends the read loop.
func (h *Handler) reload(ctx context.Context, c *conn, id uuid.UUID) (*models.User, bool) {
	user, err := h.users.GetUserByID(ctx, id)
	if err != nil {
		zerolog.Ctx(ctx).Info().Err(err).Msg("Closing websocket, user no longer available")
		c.send(Message{Type: "error", Content: "Session is no longer valid"})
		c.ws.Close()
		return nil, false
	}
	return user, true
}

func (h *Handler) handleChatMessage(ctx context.Context, c *conn, user *models.User, msg Message) {
	req := services.SendMessageRequest{Message: msg.Content, ModelID: msg.ModelID}
	if msg.ConversationID != "" {
		id, err := uuid.Parse(msg.ConversationID)
		if err != nil {
			c.send(Message{Type: "error", Content: "Invalid conversation id"})
			return
		}
		req.ConversationID = &id
	}

	result, err := h.chat.SendMessage(ctx, user, req)
	if err != nil {
		out := Message{Type: "error", Content: err.Error(), ConversationID: msg.ConversationID}
		if result != nil && result.Conversation != nil {
			out.ConversationID = result.Conversation.ID.String()
			out.Data = result.Conversation
		}
		c.send(out)
		return
	}
	c.send(Message{
		Type:           "assistant",
		Content:        result.Message.Content,
		ConversationID: result.Conversation.ID.String(),
		Data:           result,
	})
}

type quotaPayload struct {
	Quotas        *services.QuotaStatus `json:"quotas"`
	NearingLimits bool                  `json:"nearing_limits"`
}

func (h *Handler) sendQuotaStatus(ctx context.Context, c *conn, user *models.User) error {
	status, err := h.quota.Quotas(ctx, user)
	if err != nil {
		return c.send(Message{Type: "error", Content: "Failed to get quota status"})
	}
	return c.send(Message{Type: "quota_status", Data: quotaPayload{Quotas: status, NearingLimits: nearing(status)}})
}

func nearing(s *services.QuotaStatus) bool {
	for _, m := range []services.QuotaMeter{s.DailyRequests, s.MonthlyRequests, s.DailyCost, s.MonthlyCost} {
		if m.Limit.GreaterThan(decimal.Zero) && m.Percentage >= services.QuotaWarningPercent {
			return true
		}
	}
	return false
}
