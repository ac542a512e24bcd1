package services

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	topUpMetadataKey       = "quota_top_up"
	checkoutCompletedEvent = "checkout.session.completed"
)

var (
	MinTopUp = decimal.NewFromInt(5)
	MaxTopUp = decimal.NewFromInt(1000)
)

// TopUp is a completed payment that raises a user's monthly cost limit.
type TopUp struct {
	UserID    uuid.UUID
	SessionID string
	Amount    decimal.Decimal
}

type StripeService struct {
	webhookSecret string
	successURL    string
	cancelURL     string
	newSession    func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripeService(secretKey, webhookSecret, successURL, cancelURL string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
		newSession:    session.New,
	}
}

func (s *StripeService) CreateTopUpSession(userID uuid.UUID, amount decimal.Decimal) (*stripe.CheckoutSession, error) {
	if amount.LessThan(MinTopUp) || amount.GreaterThan(MaxTopUp) {
		return nil, NewValidationError("amount must be between %s and %s USD", MinTopUp, MaxTopUp)
	}
	cents := amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Monthly spend limit +$%s", amount.StringFixed(2))),
					},
					UnitAmount: stripe.Int64(cents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(userID.String()),
		Metadata: map[string]string{
			topUpMetadataKey: amount.StringFixed(2),
		},
	}
	return s.newSession(params)
}

// ParseWebhook verifies the payload signature. It returns a nil TopUp for
// events that carry no quota purchase.
func (s *StripeService) ParseWebhook(payload []byte, signatureHeader string) (*TopUp, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify webhook signature: %w", err)
	}
	if event.Type != checkoutCompletedEvent {
		return nil, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session: %w", err)
	}
	return topUpFromSession(&cs)
}

func topUpFromSession(cs *stripe.CheckoutSession) (*TopUp, error) {
	raw, ok := cs.Metadata[topUpMetadataKey]
	if !ok {
		return nil, nil
	}
	userID, err := uuid.Parse(cs.ClientReferenceID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %v", err)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid top-up amount: %v", err)
	}
	return &TopUp{UserID: userID, SessionID: cs.ID, Amount: amount}, nil
}
