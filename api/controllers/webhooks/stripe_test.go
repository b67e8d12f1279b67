package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	stripewebhook "github.com/angelmondragon/rentalhub-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/rentalhub-backend/pkg/config"
	pkgstripe "github.com/angelmondragon/rentalhub-backend/pkg/stripe"
)

const testWebhookSecret = "whsec_test"

type webhookFixture struct {
	svc     *recordingService
	marks   *markStore
	handler http.HandlerFunc
}

func newWebhookFixture(t *testing.T, handleErr error) *webhookFixture {
	t.Helper()
	client, err := pkgstripe.NewClient(context.Background(), config.StripeConfig{
		APIKey:        "sk_test_webhooks",
		WebhookSecret: testWebhookSecret,
		Env:           "test",
	}, nil)
	require.NoError(t, err)

	f := &webhookFixture{svc: &recordingService{err: handleErr}, marks: &markStore{data: map[string]string{}}}
	guard, err := stripewebhook.NewIdempotencyGuard(f.marks, time.Minute, "stripe-webhook")
	require.NoError(t, err)
	f.handler = StripeWebhook(f.svc, client, guard, nil)
	return f
}

func (f *webhookFixture) deliver(payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookAcknowledgesRedeliveryWithoutReprocessing(t *testing.T) {
	f := newWebhookFixture(t, nil)
	eventID, payload, signature := signedIntentEvent(t, testWebhookSecret)

	for attempt := 0; attempt < 2; attempt++ {
		rec := f.deliver(payload, signature)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.Equal(t, []string{eventID}, f.svc.handled())
	assert.Contains(t, f.marks.data, "rh:idempotency:evt:processed:stripe-webhook:"+eventID)
}

func TestStripeWebhookReleasesClaimWhenHandlingFails(t *testing.T) {
	f := newWebhookFixture(t, errors.New("db down"))
	eventID, payload, signature := signedIntentEvent(t, testWebhookSecret)

	for attempt := 0; attempt < 2; attempt++ {
		rec := f.deliver(payload, signature)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	}
	assert.Equal(t, []string{eventID, eventID}, f.svc.handled())
	assert.Empty(t, f.marks.data)
}

func TestStripeWebhookRejectsBadDeliveries(t *testing.T) {
	_, payload, signature := signedIntentEvent(t, testWebhookSecret)
	_, _, foreign := signedIntentEvent(t, "whsec_other")

	cases := map[string]struct {
		payload   []byte
		signature string
	}{
		"missing signature":  {payload, ""},
		"garbled signature":  {payload, "t=1,v1=invalid"},
		"foreign secret":     {payload, foreign},
		"tampered payload":   {append(bytes.Clone(payload), ' '), signature},
		"truncated oversize": {append(bytes.Clone(payload), bytes.Repeat([]byte(" "), maxWebhookBytes)...), signature},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newWebhookFixture(t, nil)
			rec := f.deliver(tc.payload, tc.signature)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, f.svc.handled())
		})
	}
}

func TestStripeWebhookNotConfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	StripeWebhook(nil, nil, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// signedIntentEvent builds a payment_intent.succeeded delivery signed with
// secret, the way Stripe would send it.
func signedIntentEvent(t *testing.T, secret string) (string, []byte, string) {
	t.Helper()
	rawIntent, err := json.Marshal(map[string]any{
		"id":              "pi_" + uuid.NewString(),
		"object":          "payment_intent",
		"status":          "succeeded",
		"amount":          18200,
		"amount_received": 18200,
		"currency":        "usd",
	})
	require.NoError(t, err)

	eventID := "evt_" + uuid.NewString()
	payload, err := json.Marshal(&stripe.Event{
		ID:         eventID,
		Type:       stripe.EventTypePaymentIntentSucceeded,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: rawIntent},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return eventID, signed.Payload, signed.Header
}

type recordingService struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (s *recordingService) HandleEvent(_ context.Context, event *stripe.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, event.ID)
	return s.err
}

func (s *recordingService) handled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

type markStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *markStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *markStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key], _ = value.(string)
	return true, nil
}

func (s *markStore) IdempotencyKey(scope, id string) string {
	return "rh:idempotency:" + scope + ":" + id
}

func (s *markStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
