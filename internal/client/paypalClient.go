package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/config"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/service"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/log"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	paypalStatusApproved  = "APPROVED"
	paypalStatusCompleted = "COMPLETED"
)

// paypalGateway implements service.PaymentGateway on PayPal Orders v2. A
// PayPal order id is the checkout session id.
type paypalGateway struct {
	httpClient         *http.Client
	baseApiURL         string
	paypalClientID     string
	paypalClientSecret string
	webhookID          string
	sessions           SessionStore
}

type PaypalLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type PaypalCreateOrderResult struct {
	ID     string       `json:"id"`
	Links  []PaypalLink `json:"links"`
	Status string       `json:"status"`
}

func NewPaypalGateway(paypalCfg *config.Paypal, sessions SessionStore) service.PaymentGateway {
	return &paypalGateway{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL:         paypalCfg.BaseApiURL,
		paypalClientID:     paypalCfg.ClientID,
		paypalClientSecret: paypalCfg.ClientSecret,
		webhookID:          paypalCfg.WebhookID,
		sessions:           sessions,
	}
}

func (c *paypalGateway) getAccessToken(ctx context.Context) (string, error) {
	auth := base64.StdEncoding.EncodeToString(
		[]byte(c.paypalClientID + ":" + c.paypalClientSecret),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseApiURL+"/v1/oauth2/token",
		bytes.NewBufferString("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.send(req)
	if err != nil {
		return "", err
	}

	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", fmt.Errorf("paypal token response has no access_token")
	}
	return token, nil
}

// call sends an authorized JSON request and returns the response body.
func (c *paypalGateway) call(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get paypal access token: %w", err)
	}

	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal req payload: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseApiURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	return c.send(req)
}

type paypalError struct {
	StatusCode int
	Body       string
}

func (e *paypalError) Error() string {
	return fmt.Sprintf("paypal error %d: %s", e.StatusCode, e.Body)
}

func (c *paypalGateway) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read paypal response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &paypalError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func money(currency string, amount decimal.Decimal) map[string]string {
	return map[string]string{
		"currency_code": currency,
		"value":         amount.StringFixed(2),
	}
}

func (c *paypalGateway) CreateCheckoutSession(ctx context.Context, req service.CreateSessionRequest) (*service.CheckoutSession, error) {
	items := make([]map[string]interface{}, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		items = append(items, map[string]interface{}{
			"name":        item.Name,
			"sku":         item.SKU,
			"quantity":    strconv.Itoa(int(item.Quantity)),
			"unit_amount": money(req.Currency, item.UnitAmount),
		})
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": req.OrderGroupID,
				"custom_id":    req.OrderGroupID,
				"items":        items,
				"amount": map[string]interface{}{
					"currency_code": req.Currency,
					"value":         req.Total.StringFixed(2),
					"breakdown": map[string]interface{}{
						"item_total": money(req.Currency, req.ItemTotal),
						"shipping":   money(req.Currency, req.Shipping),
						"handling":   money(req.Currency, req.Packing),
						"tax_total":  money(req.Currency, req.TaxTotal),
					},
				},
			},
		},
		"application_context": map[string]string{
			"return_url": req.SuccessURL,
			"cancel_url": req.CancelURL,
		},
	}
	if req.PayerEmail != "" {
		payload["payer"] = map[string]string{"email_address": req.PayerEmail}
	}

	body, err := c.call(ctx, http.MethodPost, "/v2/checkout/orders", payload)
	if err != nil {
		return nil, fmt.Errorf("create paypal order: %w", err)
	}

	var result PaypalCreateOrderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode paypal response: %w", err)
	}
	if result.ID == "" {
		return nil, fmt.Errorf("paypal order response has no id")
	}

	if err := c.sessions.Save(ctx, result.ID, req.Metadata); err != nil {
		return nil, err
	}

	return &service.CheckoutSession{
		ID:          result.ID,
		RedirectURL: extractApproveURL(result.Links),
	}, nil
}

// RetrieveSession reads the PayPal order and captures it once the buyer has
// approved, so a verified session is a paid one.
func (c *paypalGateway) RetrieveSession(ctx context.Context, sessionID string) (*service.GatewaySession, error) {
	body, err := c.call(ctx, http.MethodGet, "/v2/checkout/orders/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("get paypal order: %w", err)
	}

	if gjson.GetBytes(body, "status").String() == paypalStatusApproved {
		captured, err := c.capture(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		body = captured
	}

	session := sessionFromOrder(sessionID, body)

	metadata, err := c.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if metadata == nil {
		// metadata expired; the group id still rides in custom_id
		metadata = map[string]string{}
		if groupID := gjson.GetBytes(body, "purchase_units.0.custom_id").String(); groupID != "" {
			metadata[service.MetaOrderGroupID] = groupID
		}
	}
	session.Metadata = metadata

	return session, nil
}

func (c *paypalGateway) capture(ctx context.Context, orderID string) ([]byte, error) {
	body, err := c.call(ctx, http.MethodPost, "/v2/checkout/orders/"+orderID+"/capture", nil)
	if err == nil {
		return body, nil
	}

	// a concurrent verification captured first; read the settled order
	if pErr, ok := err.(*paypalError); ok && pErr.StatusCode == http.StatusUnprocessableEntity {
		log.L.Info("paypal order already captured", zap.String("paypal_order_id", orderID))
		body, err = c.call(ctx, http.MethodGet, "/v2/checkout/orders/"+orderID, nil)
		if err != nil {
			return nil, fmt.Errorf("get paypal order: %w", err)
		}
		return body, nil
	}
	return nil, fmt.Errorf("paypal capture failed: %w", err)
}

func sessionFromOrder(sessionID string, body []byte) *service.GatewaySession {
	order := gjson.ParseBytes(body)
	status := order.Get("status").String()

	amount := order.Get("purchase_units.0.amount")
	captureAmount := order.Get("purchase_units.0.payments.captures.0.amount")
	if captureAmount.Exists() {
		amount = captureAmount
	}
	total, err := decimal.NewFromString(amount.Get("value").String())
	if err != nil {
		total = decimal.Zero
	}

	return &service.GatewaySession{
		ID:            sessionID,
		Paid:          status == paypalStatusCompleted,
		Status:        status,
		AmountTotal:   total,
		Currency:      amount.Get("currency_code").String(),
		PaymentIntent: order.Get("purchase_units.0.payments.captures.0.id").String(),
		PayerEmail:    order.Get("payer.email_address").String(),
		Raw:           body,
	}
}

func (c *paypalGateway) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error {
	if c.webhookID == "" {
		return fmt.Errorf("paypal webhook id is not configured")
	}
	if !json.Valid(body) {
		return fmt.Errorf("webhook body is not json")
	}

	payload := map[string]interface{}{
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"webhook_id":        c.webhookID,
		"webhook_event":     json.RawMessage(body),
	}

	resp, err := c.call(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload)
	if err != nil {
		return fmt.Errorf("verify webhook signature: %w", err)
	}
	if status := gjson.GetBytes(resp, "verification_status").String(); status != "SUCCESS" {
		return fmt.Errorf("webhook signature verification status %q", status)
	}
	return nil
}

func extractApproveURL(links []PaypalLink) string {
	for _, link := range links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}
