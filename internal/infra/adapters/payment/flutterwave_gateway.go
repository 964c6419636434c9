// File: internal/infra/adapters/payment/flutterwave_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ashiruma/Mbogiwood-Productions/internal/config"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*FlutterwaveGateway)(nil)

// FlutterwaveGateway implements adapter.PaymentProvider against the
// Flutterwave v3 hosted-checkout API. Amounts go out as 2-dp decimal major
// units and the payer is redirected to the returned checkout link.
//
// Webhook authenticity: Flutterwave sends a static verif-hash header. This
// gateway does NOT check it; the HTTP layer must compare the header against
// the configured webhook secret before dispatching here.
type FlutterwaveGateway struct {
	secretKey   string
	baseURL     string
	redirectURL string
	client      *http.Client
}

func NewFlutterwaveGateway(cfg config.FlutterwaveConfig, redirectURL string) (*FlutterwaveGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("flutterwave secret key empty")
	}
	return &FlutterwaveGateway{
		secretKey:   cfg.SecretKey,
		baseURL:     "https://api.flutterwave.com/v3",
		redirectURL: redirectURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *FlutterwaveGateway) Name() string { return "flutterwave" }

func (g *FlutterwaveGateway) ProcessPayment(ctx context.Context, params adapter.PaymentParams) adapter.PaymentResult {
	txRef := fmt.Sprintf("mbogiwood_%d_%s", time.Now().UnixMilli(), params.UserID)
	meta := map[string]string{
		"film_id": params.FilmID,
		"user_id": params.UserID,
		"kind":    string(params.Kind),
	}
	for k, v := range params.Metadata {
		meta[k] = v
	}
	payload := map[string]any{
		"tx_ref":       txRef,
		"amount":       model.MajorString(params.Amount),
		"currency":     params.Currency,
		"redirect_url": g.redirectURL,
		"customer": map[string]any{
			"email":        params.Email,
			"phone_number": params.Phone,
		},
		"customizations": map[string]any{
			"title":       "Mbogiwood Film Payment",
			"description": fmt.Sprintf("Payment for film access - %s", params.Kind),
		},
		"meta": meta,
	}

	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			ID   json.Number `json:"id"`
			Link string      `json:"link"`
		} `json:"data"`
	}
	if err := g.do(ctx, http.MethodPost, "/payments", payload, &out); err != nil {
		return adapter.PaymentResult{Error: fmt.Sprintf("flutterwave request failed: %v", err)}
	}
	if out.Status != "success" {
		msg := out.Message
		if msg == "" {
			msg = "payment initialization failed"
		}
		return adapter.PaymentResult{Error: msg}
	}
	return adapter.PaymentResult{
		Success:      true,
		ProviderTxID: out.Data.ID.String(),
		PaymentURL:   out.Data.Link,
		Reference:    txRef,
	}
}

func (g *FlutterwaveGateway) VerifyPayment(ctx context.Context, providerTxID string) adapter.PaymentVerification {
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Status   string  `json:"status"`
			Amount   float64 `json:"amount"`
			Currency string  `json:"currency"`
			TxRef    string  `json:"tx_ref"`
		} `json:"data"`
	}
	if err := g.do(ctx, http.MethodGet, "/transactions/"+providerTxID+"/verify", nil, &out); err != nil {
		return adapter.PaymentVerification{Status: adapter.StatusFailed, Error: fmt.Sprintf("flutterwave verify failed: %v", err), TransportError: true}
	}

	v := adapter.PaymentVerification{
		Amount:   model.MinorFromMajor(out.Data.Amount),
		Currency: out.Data.Currency,
		Ref:      out.Data.TxRef,
	}
	switch {
	case out.Status == "success" && out.Data.Status == "successful":
		v.Success = true
		v.Status = adapter.StatusCompleted
	case out.Data.Status == "failed":
		v.Status = adapter.StatusFailed
		v.Error = out.Message
	default:
		v.Status = adapter.StatusPending
		v.Error = out.Message
	}
	return v
}

func (g *FlutterwaveGateway) HandleWebhook(ctx context.Context, payload adapter.WebhookPayload) adapter.WebhookResult {
	var event struct {
		Event string `json:"event"`
		Data  struct {
			ID     json.Number `json:"id"`
			Status string      `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload.Body, &event); err != nil {
		return adapter.WebhookResult{Error: "malformed webhook payload"}
	}
	id := event.Data.ID.String()
	if id == "" {
		return adapter.WebhookResult{Error: "webhook missing transaction id"}
	}
	switch {
	case event.Event == "charge.completed" && event.Data.Status == "successful":
		return adapter.WebhookResult{Success: true, ProviderTxID: id, Status: adapter.StatusCompleted}
	case event.Data.Status == "failed":
		return adapter.WebhookResult{Success: true, ProviderTxID: id, Status: adapter.StatusFailed}
	default:
		// Non-terminal event; the caller drops these.
		return adapter.WebhookResult{Success: true, ProviderTxID: id, Status: adapter.StatusPending}
	}
}

func (g *FlutterwaveGateway) do(ctx context.Context, method, path string, payload, out any) error {
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
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}
