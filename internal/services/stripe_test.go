package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

const testWebhookSecret = "whsec_test"

func sign(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func checkoutEvent(eventType, sessionID, userID, amount string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": %q,
		"data": {"object": {
			"id": %q,
			"object": "checkout.session",
			"client_reference_id": %q,
			"metadata": {"quota_top_up": %q}
		}}
	}`, eventType, sessionID, userID, amount))
}

func TestCreateTopUpSession(t *testing.T) {
	s := NewStripeService("sk_test", testWebhookSecret, "https://app/success", "https://app/cancel")
	var got *stripe.CheckoutSessionParams
	s.newSession = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = p
		return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout/cs_1"}, nil
	}
	userID := uuid.New()

	cs, err := s.CreateTopUpSession(userID, decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	assert.Equal(t, "cs_1", cs.ID)

	require.NotNil(t, got)
	assert.Equal(t, int64(1250), *got.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, userID.String(), *got.ClientReferenceID)
	assert.Equal(t, "12.50", got.Metadata[topUpMetadataKey])
	assert.Equal(t, "https://app/success", *got.SuccessURL)

	for _, amount := range []string{"4.99", "1000.01"} {
		_, err := s.CreateTopUpSession(userID, decimal.RequireFromString(amount))
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, amount)
	}
}

func TestParseWebhook(t *testing.T) {
	s := NewStripeService("sk_test", testWebhookSecret, "", "")
	userID := uuid.New()

	payload := checkoutEvent(checkoutCompletedEvent, "cs_42", userID.String(), "25.00")
	topUp, err := s.ParseWebhook(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	require.NotNil(t, topUp)
	assert.Equal(t, userID, topUp.UserID)
	assert.Equal(t, "cs_42", topUp.SessionID)
	assert.True(t, decimal.NewFromInt(25).Equal(topUp.Amount))

	_, err = s.ParseWebhook(payload, sign(payload, "whsec_other"))
	assert.Error(t, err)

	other := checkoutEvent("payment_intent.created", "cs_43", userID.String(), "25.00")
	topUp, err = s.ParseWebhook(other, sign(other, testWebhookSecret))
	require.NoError(t, err)
	assert.Nil(t, topUp)

	bad := checkoutEvent(checkoutCompletedEvent, "cs_44", "not-a-uuid", "25.00")
	_, err = s.ParseWebhook(bad, sign(bad, testWebhookSecret))
	assert.Error(t, err)
}
