package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/config"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type memorySessionStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func (s *memorySessionStore) Save(_ context.Context, sessionID string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = metadata
	return nil
}

func (s *memorySessionStore) Load(_ context.Context, sessionID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[sessionID], nil
}

type fakePaypal struct {
	mu           sync.Mutex
	status       string
	captures     int
	lastCreate   []byte
	verifyStatus string
}

func (p *fakePaypal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		_, _ = io.WriteString(w, `{"access_token":"token-1"}`)
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		p.lastCreate, _ = io.ReadAll(r.Body)
		p.status = "CREATED"
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"PP-1","status":"CREATED","links":[{"rel":"approve","href":"https://paypal.test/approve/PP-1"}]}`)
	})
	mux.HandleFunc("/v2/checkout/orders/PP-1", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		_, _ = io.WriteString(w, p.orderBody())
	})
	mux.HandleFunc("/v2/checkout/orders/PP-1/capture", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.status == "COMPLETED" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`)
			return
		}
		p.captures++
		p.status = "COMPLETED"
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, p.orderBody())
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "WH-CONFIG", gjson.GetBytes(body, "webhook_id").String())
		assert.Equal(t, "EVT-1", gjson.GetBytes(body, "webhook_event.id").String())
		assert.Equal(t, "tx-1", gjson.GetBytes(body, "transmission_id").String())
		_, _ = io.WriteString(w, `{"verification_status":"`+p.verifyStatus+`"}`)
	})
	return mux
}

func (p *fakePaypal) orderBody() string {
	order := map[string]interface{}{
		"id":     "PP-1",
		"status": p.status,
		"payer":  map[string]string{"email_address": "buyer@example.test"},
		"purchase_units": []map[string]interface{}{{
			"custom_id": "GRP0000001",
			"amount":    map[string]string{"currency_code": "USD", "value": "115.50"},
		}},
	}
	if p.status == "COMPLETED" {
		order["purchase_units"].([]map[string]interface{})[0]["payments"] = map[string]interface{}{
			"captures": []map[string]interface{}{{
				"id":     "CAP-1",
				"status": "COMPLETED",
				"amount": map[string]string{"currency_code": "USD", "value": "115.50"},
			}},
		}
	}
	body, _ := json.Marshal(order)
	return string(body)
}

func newTestGateway(t *testing.T) (service.PaymentGateway, *fakePaypal, *memorySessionStore) {
	t.Helper()
	paypal := &fakePaypal{verifyStatus: "SUCCESS"}
	srv := httptest.NewServer(paypal.handler(t))
	t.Cleanup(srv.Close)

	store := &memorySessionStore{data: map[string]map[string]string{}}
	gateway := NewPaypalGateway(&config.Paypal{
		BaseApiURL:   srv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		WebhookID:    "WH-CONFIG",
	}, store)
	return gateway, paypal, store
}

func sessionRequest() service.CreateSessionRequest {
	return service.CreateSessionRequest{
		OrderGroupID: "GRP0000001",
		LineItems: []service.SessionLineItem{
			{Name: "Helmet", SKU: "HLM-1", UnitAmount: decimal.RequireFromString("110"), Quantity: 1},
		},
		ItemTotal:  decimal.RequireFromString("110"),
		Shipping:   decimal.Zero,
		Packing:    decimal.Zero,
		TaxTotal:   decimal.RequireFromString("5.5"),
		Total:      decimal.RequireFromString("115.5"),
		Currency:   "USD",
		SuccessURL: "https://shop.test/ok",
		CancelURL:  "https://shop.test/cancel",
		Metadata:   map[string]string{service.MetaOrderGroupID: "GRP0000001", service.MetaCartID: "9"},
	}
}

func TestPaypalGateway_CreateCheckoutSession(t *testing.T) {
	gateway, paypal, store := newTestGateway(t)

	session, err := gateway.CreateCheckoutSession(context.Background(), sessionRequest())
	require.NoError(t, err)
	assert.Equal(t, "PP-1", session.ID)
	assert.Equal(t, "https://paypal.test/approve/PP-1", session.RedirectURL)

	unit := gjson.GetBytes(paypal.lastCreate, "purchase_units.0")
	assert.Equal(t, "GRP0000001", unit.Get("custom_id").String())
	assert.Equal(t, "115.50", unit.Get("amount.value").String())
	assert.Equal(t, "5.50", unit.Get("amount.breakdown.tax_total.value").String())
	assert.Equal(t, "1", unit.Get("items.0.quantity").String())

	assert.Equal(t, "9", store.data["PP-1"][service.MetaCartID])
}

func TestPaypalGateway_RetrieveCapturesApprovedOrder(t *testing.T) {
	gateway, paypal, _ := newTestGateway(t)
	ctx := context.Background()

	_, err := gateway.CreateCheckoutSession(ctx, sessionRequest())
	require.NoError(t, err)

	session, err := gateway.RetrieveSession(ctx, "PP-1")
	require.NoError(t, err)
	assert.False(t, session.Paid)
	assert.Equal(t, "CREATED", session.Status)

	paypal.mu.Lock()
	paypal.status = "APPROVED"
	paypal.mu.Unlock()

	session, err = gateway.RetrieveSession(ctx, "PP-1")
	require.NoError(t, err)
	assert.True(t, session.Paid)
	assert.Equal(t, "CAP-1", session.PaymentIntent)
	assert.Equal(t, "buyer@example.test", session.PayerEmail)
	assert.True(t, decimal.RequireFromString("115.50").Equal(session.AmountTotal))
	assert.Equal(t, "9", session.Metadata[service.MetaCartID])

	again, err := gateway.RetrieveSession(ctx, "PP-1")
	require.NoError(t, err)
	assert.True(t, again.Paid)
	assert.Equal(t, 1, paypal.captures)
}

func TestPaypalGateway_RetrieveFallsBackToCustomID(t *testing.T) {
	gateway, paypal, _ := newTestGateway(t)
	paypal.status = "CREATED"

	session, err := gateway.RetrieveSession(context.Background(), "PP-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{service.MetaOrderGroupID: "GRP0000001"}, session.Metadata)
}

func TestPaypalGateway_VerifyWebhookSignature(t *testing.T) {
	gateway, paypal, _ := newTestGateway(t)
	headers := http.Header{}
	headers.Set("Paypal-Transmission-Id", "tx-1")
	body := []byte(`{"id":"EVT-1","event_type":"CHECKOUT.ORDER.APPROVED"}`)

	require.NoError(t, gateway.VerifyWebhookSignature(context.Background(), headers, body))

	paypal.verifyStatus = "FAILURE"
	assert.Error(t, gateway.VerifyWebhookSignature(context.Background(), headers, body))

	assert.Error(t, gateway.VerifyWebhookSignature(context.Background(), headers, []byte("not json")))
}
