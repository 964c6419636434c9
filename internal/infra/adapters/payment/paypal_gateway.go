// File: internal/infra/adapters/payment/paypal_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashiruma/Mbogiwood-Productions/internal/config"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*PaypalGateway)(nil)

// PaypalGateway implements adapter.PaymentProvider against the PayPal
// Orders v2 API. Auth is OAuth2 client-credentials; the token is cached with
// the expiry PayPal declares. Amounts go out as 2-dp decimal strings and the
// payer is redirected to the order's approve link.
//
// Webhook authenticity: verified inline by calling PayPal's
// verify-webhook-signature endpoint with the transmission headers.
type PaypalGateway struct {
	clientID     string
	clientSecret string
	webhookID    string
	baseURL      string
	returnURL    string
	cancelURL    string
	client       *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewPaypalGateway(cfg config.PaypalConfig, returnURL, cancelURL string) (*PaypalGateway, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("paypal client id/secret empty")
	}
	baseURL := "https://api.paypal.com"
	if cfg.Sandbox {
		baseURL = "https://api.sandbox.paypal.com"
	}
	return &PaypalGateway{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		webhookID:    cfg.WebhookID,
		baseURL:      baseURL,
		returnURL:    returnURL,
		cancelURL:    cancelURL,
		client:       &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *PaypalGateway) Name() string { return "paypal" }

func (g *PaypalGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && time.Until(g.tokenExpiry) > time.Minute {
		return g.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("paypal auth: empty access token")
	}
	if out.ExpiresIn <= 0 {
		out.ExpiresIn = 3600
	}
	g.token = out.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return g.token, nil
}

func (g *PaypalGateway) ProcessPayment(ctx context.Context, params adapter.PaymentParams) adapter.PaymentResult {
	token, err := g.accessToken(ctx)
	if err != nil {
		return adapter.PaymentResult{Error: fmt.Sprintf("paypal auth failed: %v", err)}
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": fmt.Sprintf("MBOGIWOOD_%s_%s", params.FilmID, params.UserID),
			"custom_id":    params.Metadata[adapter.MetaTransactionID],
			"amount": map[string]any{
				"currency_code": params.Currency,
				"value":         model.MajorString(params.Amount),
			},
			"description": fmt.Sprintf("Mbogiwood film %s", params.Kind),
		}},
		"application_context": map[string]any{
			"return_url":  g.returnURL,
			"cancel_url":  g.cancelURL,
			"brand_name":  "Mbogiwood",
			"user_action": "PAY_NOW",
		},
	}

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Links  []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}
	if err := g.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", token, payload, &out); err != nil {
		return adapter.PaymentResult{Error: fmt.Sprintf("paypal order create failed: %v", err)}
	}
	if out.Status != "CREATED" || out.ID == "" {
		return adapter.PaymentResult{Error: "PayPal order creation failed"}
	}
	var approveURL string
	for _, l := range out.Links {
		if l.Rel == "approve" {
			approveURL = l.Href
			break
		}
	}
	return adapter.PaymentResult{
		Success:      true,
		ProviderTxID: out.ID,
		PaymentURL:   approveURL,
		Reference:    out.ID,
	}
}

func (g *PaypalGateway) VerifyPayment(ctx context.Context, providerTxID string) adapter.PaymentVerification {
	token, err := g.accessToken(ctx)
	if err != nil {
		return adapter.PaymentVerification{Status: adapter.StatusFailed, Error: fmt.Sprintf("paypal auth failed: %v", err), TransportError: true}
	}

	var out struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Amount struct {
				CurrencyCode string `json:"currency_code"`
				Value        string `json:"value"`
			} `json:"amount"`
		} `json:"purchase_units"`
	}
	if err := g.doJSON(ctx, http.MethodGet, "/v2/checkout/orders/"+providerTxID, token, nil, &out); err != nil {
		return adapter.PaymentVerification{Status: adapter.StatusFailed, Error: fmt.Sprintf("paypal order get failed: %v", err), TransportError: true}
	}

	switch out.Status {
	case "COMPLETED":
		v := adapter.PaymentVerification{Success: true, Status: adapter.StatusCompleted, Ref: out.ID}
		if len(out.PurchaseUnits) > 0 {
			amt := out.PurchaseUnits[0].Amount
			if f, err := strconv.ParseFloat(amt.Value, 64); err == nil {
				v.Amount = model.MinorFromMajor(f)
			}
			v.Currency = amt.CurrencyCode
		}
		return v
	case "CANCELLED", "VOIDED":
		return adapter.PaymentVerification{Status: adapter.StatusFailed, Ref: out.ID, Error: "PayPal order " + out.Status}
	default:
		// CREATED / SAVED / APPROVED / PAYER_ACTION_REQUIRED are all still in flight.
		return adapter.PaymentVerification{Status: adapter.StatusPending, Ref: out.ID, Error: "PayPal order status: " + out.Status}
	}
}

func (g *PaypalGateway) HandleWebhook(ctx context.Context, payload adapter.WebhookPayload) adapter.WebhookResult {
	if !g.verifyWebhookSignature(ctx, payload) {
		return adapter.WebhookResult{Error: "invalid webhook signature"}
	}

	var event struct {
		EventType string `json:"event_type"`
		Resource  struct {
			ID string `json:"id"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(payload.Body, &event); err != nil {
		return adapter.WebhookResult{Error: "malformed webhook payload"}
	}
	if event.Resource.ID == "" {
		return adapter.WebhookResult{Error: "webhook missing resource id"}
	}

	switch event.EventType {
	case "CHECKOUT.ORDER.APPROVED", "PAYMENT.CAPTURE.COMPLETED":
		return adapter.WebhookResult{Success: true, ProviderTxID: event.Resource.ID, Status: adapter.StatusCompleted}
	case "PAYMENT.CAPTURE.DENIED", "CHECKOUT.ORDER.VOIDED":
		return adapter.WebhookResult{Success: true, ProviderTxID: event.Resource.ID, Status: adapter.StatusFailed}
	default:
		return adapter.WebhookResult{Success: true, ProviderTxID: event.Resource.ID, Status: adapter.StatusPending}
	}
}

// verifyWebhookSignature asks PayPal to confirm the transmission headers match
// the configured webhook. With no webhook id configured (dev), it accepts.
func (g *PaypalGateway) verifyWebhookSignature(ctx context.Context, payload adapter.WebhookPayload) bool {
	if g.webhookID == "" {
		return true
	}
	token, err := g.accessToken(ctx)
	if err != nil {
		return false
	}
	req := map[string]any{
		"auth_algo":         payload.Headers["Paypal-Auth-Algo"],
		"cert_url":          payload.Headers["Paypal-Cert-Url"],
		"transmission_id":   payload.Headers["Paypal-Transmission-Id"],
		"transmission_sig":  payload.Headers["Paypal-Transmission-Sig"],
		"transmission_time": payload.Headers["Paypal-Transmission-Time"],
		"webhook_id":        g.webhookID,
		"webhook_event":     json.RawMessage(payload.Body),
	}
	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := g.doJSON(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", token, req, &out); err != nil {
		return false
	}
	return out.VerificationStatus == "SUCCESS"
}

func (g *PaypalGateway) doJSON(ctx context.Context, method, path, token string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}
