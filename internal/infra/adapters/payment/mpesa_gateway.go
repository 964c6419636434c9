// File: internal/infra/adapters/payment/mpesa_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ashiruma/Mbogiwood-Productions/internal/config"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*MpesaGateway)(nil)

// MpesaGateway implements adapter.PaymentProvider against the Safaricom
// Daraja STK-push API. Amounts go out as whole shillings; the push lands on
// the payer's phone, so Phone is mandatory and there is no checkout URL.
//
// Webhook authenticity: Daraja callbacks are unsigned, so HandleWebhook
// checks the shared callback token this gateway was configured with
// (X-Callback-Token header) itself. The HTTP layer does not need to.
type MpesaGateway struct {
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackToken  string
	callbackURL    string
	baseURL        string
	client         *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewMpesaGateway(cfg config.MpesaConfig, callbackURL string) (*MpesaGateway, error) {
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, errors.New("mpesa consumer key/secret empty")
	}
	if cfg.ShortCode == "" || cfg.Passkey == "" {
		return nil, errors.New("mpesa short code/passkey empty")
	}
	baseURL := "https://api.safaricom.co.ke"
	if cfg.Sandbox {
		baseURL = "https://sandbox.safaricom.co.ke"
	}
	return &MpesaGateway{
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortCode:      cfg.ShortCode,
		passkey:        cfg.Passkey,
		callbackToken:  cfg.CallbackToken,
		callbackURL:    callbackURL,
		baseURL:        baseURL,
		client:         &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *MpesaGateway) Name() string { return "mpesa" }

// accessToken returns a cached Daraja token, refreshing through the Basic-auth
// client-credentials endpoint when the cached one is within a minute of expiry.
func (g *MpesaGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && time.Until(g.tokenExpiry) > time.Minute {
		return g.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(g.consumerKey + ":" + g.consumerSecret))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"` // Daraja returns seconds as a string
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("mpesa auth: empty access token")
	}
	ttl := int64(3599)
	if n, err := strconv.ParseInt(out.ExpiresIn, 10, 64); err == nil && n > 0 {
		ttl = n
	}
	g.token = out.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(ttl) * time.Second)
	return g.token, nil
}

// stkPassword derives the Daraja request password for a timestamp.
func (g *MpesaGateway) stkPassword(ts string) string {
	return base64.StdEncoding.EncodeToString([]byte(g.shortCode + g.passkey + ts))
}

func stkTimestamp(t time.Time) string { return t.Format("20060102150405") }

func (g *MpesaGateway) ProcessPayment(ctx context.Context, params adapter.PaymentParams) adapter.PaymentResult {
	if params.Phone == "" {
		return adapter.PaymentResult{Error: "phone number is required for M-Pesa payments"}
	}

	token, err := g.accessToken(ctx)
	if err != nil {
		return adapter.PaymentResult{Error: fmt.Sprintf("mpesa auth failed: %v", err)}
	}

	ts := stkTimestamp(time.Now())
	payload := map[string]any{
		"BusinessShortCode": g.shortCode,
		"Password":          g.stkPassword(ts),
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            model.WholeUnits(params.Amount),
		"PartyA":            params.Phone,
		"PartyB":            g.shortCode,
		"PhoneNumber":       params.Phone,
		"CallBackURL":       g.callbackURL,
		"AccountReference":  "MBOGIWOOD_" + params.FilmID,
		"TransactionDesc":   fmt.Sprintf("Film %s payment", params.Kind),
	}

	var out struct {
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ErrorMessage        string `json:"errorMessage"`
	}
	if err := g.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", token, payload, &out); err != nil {
		return adapter.PaymentResult{Error: fmt.Sprintf("mpesa stk push failed: %v", err)}
	}
	if out.ResponseCode != "0" {
		msg := out.ResponseDescription
		if msg == "" {
			msg = out.ErrorMessage
		}
		if msg == "" {
			msg = "M-Pesa payment failed"
		}
		return adapter.PaymentResult{Error: msg}
	}
	return adapter.PaymentResult{
		Success:      true,
		ProviderTxID: out.CheckoutRequestID,
		Reference:    out.MerchantRequestID,
	}
}

func (g *MpesaGateway) VerifyPayment(ctx context.Context, providerTxID string) adapter.PaymentVerification {
	token, err := g.accessToken(ctx)
	if err != nil {
		return adapter.PaymentVerification{Status: adapter.StatusFailed, Currency: "KES", Error: fmt.Sprintf("mpesa auth failed: %v", err), TransportError: true}
	}

	ts := stkTimestamp(time.Now())
	payload := map[string]any{
		"BusinessShortCode": g.shortCode,
		"Password":          g.stkPassword(ts),
		"Timestamp":         ts,
		"CheckoutRequestID": providerTxID,
	}

	var out struct {
		ResponseCode       string  `json:"ResponseCode"`
		ResultCode         string  `json:"ResultCode"`
		ResultDesc         string  `json:"ResultDesc"`
		MpesaReceiptNumber string  `json:"MpesaReceiptNumber"`
		Amount             float64 `json:"Amount"`
		ErrorCode          string  `json:"errorCode"`
		ErrorMessage       string  `json:"errorMessage"`
	}
	if err := g.postJSON(ctx, "/mpesa/stkpushquery/v1/query", token, payload, &out); err != nil {
		return adapter.PaymentVerification{Status: adapter.StatusFailed, Currency: "KES", Error: fmt.Sprintf("mpesa query failed: %v", err), TransportError: true}
	}

	// Daraja reports "still being processed" through errorCode 500.001.1001.
	if out.ErrorCode == "500.001.1001" {
		return adapter.PaymentVerification{Status: adapter.StatusPending, Currency: "KES", Error: out.ErrorMessage}
	}

	switch {
	case out.ResponseCode == "0" && out.ResultCode == "0":
		return adapter.PaymentVerification{
			Success:  true,
			Status:   adapter.StatusCompleted,
			Amount:   model.MinorFromMajor(out.Amount),
			Currency: "KES",
			Ref:      out.MpesaReceiptNumber,
		}
	case out.ResultCode == "1032":
		// Push delivered, payer has not acted yet.
		return adapter.PaymentVerification{Status: adapter.StatusPending, Currency: "KES", Error: out.ResultDesc}
	default:
		return adapter.PaymentVerification{Status: adapter.StatusFailed, Currency: "KES", Error: out.ResultDesc}
	}
}

// mpesaCallback mirrors the Daraja STK callback envelope.
type mpesaCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (g *MpesaGateway) HandleWebhook(ctx context.Context, payload adapter.WebhookPayload) adapter.WebhookResult {
	if g.callbackToken != "" && payload.Headers["X-Callback-Token"] != g.callbackToken {
		return adapter.WebhookResult{Error: "invalid callback token"}
	}

	var cb mpesaCallback
	if err := json.Unmarshal(payload.Body, &cb); err != nil {
		return adapter.WebhookResult{Error: "malformed callback payload"}
	}
	id := cb.Body.StkCallback.CheckoutRequestID
	if id == "" {
		return adapter.WebhookResult{Error: "callback missing CheckoutRequestID"}
	}
	if cb.Body.StkCallback.ResultCode == 0 {
		return adapter.WebhookResult{Success: true, ProviderTxID: id, Status: adapter.StatusCompleted}
	}
	return adapter.WebhookResult{Success: true, ProviderTxID: id, Status: adapter.StatusFailed, Error: cb.Body.StkCallback.ResultDesc}
}

func (g *MpesaGateway) postJSON(ctx context.Context, path, token string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(b))
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
