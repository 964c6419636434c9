//go:build !integration

package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashiruma/Mbogiwood-Productions/internal/config"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/adapter"
)

func newTestMpesa(t *testing.T, srvURL string) *MpesaGateway {
	t.Helper()
	g, err := NewMpesaGateway(config.MpesaConfig{
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		ShortCode:      "174379",
		Passkey:        "pk",
		CallbackToken:  "hook-secret",
	}, "https://app.test/api/v1/webhooks/mpesa")
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	g.baseURL = srvURL
	return g
}

func mpesaAuthHandler(tokens *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*tokens++
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok-1",
			"expires_in":   "3599",
		})
	}
}

func TestMpesaStkPassword(t *testing.T) {
	g := &MpesaGateway{shortCode: "174379", passkey: "pk"}
	ts := "20260115093000"
	want := base64.StdEncoding.EncodeToString([]byte("174379pk20260115093000"))
	if got := g.stkPassword(ts); got != want {
		t.Errorf("stkPassword = %q, want %q", got, want)
	}

	at := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	if got := stkTimestamp(at); got != ts {
		t.Errorf("stkTimestamp = %q, want %q", got, ts)
	}
}

func TestMpesaProcessPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a phone number", func(t *testing.T) {
		g := newTestMpesa(t, "http://unused.test")
		res := g.ProcessPayment(ctx, adapter.PaymentParams{Amount: 25_000})
		if res.Success || res.Error == "" {
			t.Fatalf("expected a phone error, got %+v", res)
		}
	})

	t.Run("successful push returns the checkout request id", func(t *testing.T) {
		tokens := 0
		var pushed map[string]any
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/v1/generate", mpesaAuthHandler(&tokens))
		mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
				t.Errorf("expected bearer token, got %q", got)
			}
			json.NewDecoder(r.Body).Decode(&pushed)
			json.NewEncoder(w).Encode(map[string]string{
				"ResponseCode":      "0",
				"MerchantRequestID": "mer-1",
				"CheckoutRequestID": "ws_CO_1",
			})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		g := newTestMpesa(t, srv.URL)
		res := g.ProcessPayment(ctx, adapter.PaymentParams{
			Amount: 25_000, Currency: "KES", Phone: "254712345678", FilmID: "film-1", Kind: "rental",
		})
		if !res.Success {
			t.Fatalf("expected success, got %s", res.Error)
		}
		if res.ProviderTxID != "ws_CO_1" || res.Reference != "mer-1" {
			t.Errorf("unexpected ids: %+v", res)
		}
		// amounts go out as whole shillings
		if pushed["Amount"] != float64(250) {
			t.Errorf("expected Amount 250, got %v", pushed["Amount"])
		}
		if pushed["PhoneNumber"] != "254712345678" || pushed["PartyA"] != "254712345678" {
			t.Errorf("phone not propagated: %v", pushed)
		}
	})

	t.Run("non-zero response code surfaces the description", func(t *testing.T) {
		tokens := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/v1/generate", mpesaAuthHandler(&tokens))
		mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{
				"ResponseCode":        "1",
				"ResponseDescription": "insufficient funds",
			})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		g := newTestMpesa(t, srv.URL)
		res := g.ProcessPayment(ctx, adapter.PaymentParams{Amount: 100, Phone: "254700000000"})
		if res.Success || res.Error != "insufficient funds" {
			t.Errorf("expected the decline reason, got %+v", res)
		}
	})

	t.Run("token is cached across calls", func(t *testing.T) {
		tokens := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/v1/generate", mpesaAuthHandler(&tokens))
		mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"ResponseCode": "0", "CheckoutRequestID": "ws_CO_2"})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		g := newTestMpesa(t, srv.URL)
		g.ProcessPayment(ctx, adapter.PaymentParams{Amount: 100, Phone: "254700000000"})
		g.ProcessPayment(ctx, adapter.PaymentParams{Amount: 100, Phone: "254700000000"})
		if tokens != 1 {
			t.Errorf("expected a single token fetch, got %d", tokens)
		}
	})
}

func TestMpesaVerifyPayment(t *testing.T) {
	ctx := context.Background()

	serve := func(t *testing.T, query map[string]any) *MpesaGateway {
		t.Helper()
		tokens := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/v1/generate", mpesaAuthHandler(&tokens))
		mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(query)
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)
		return newTestMpesa(t, srv.URL)
	}

	t.Run("paid query completes with minor-unit amount", func(t *testing.T) {
		g := serve(t, map[string]any{
			"ResponseCode":       "0",
			"ResultCode":         "0",
			"MpesaReceiptNumber": "QK12XYZ",
			"Amount":             250.0,
		})
		v := g.VerifyPayment(ctx, "ws_CO_1")
		if !v.Success || v.Status != adapter.StatusCompleted {
			t.Fatalf("expected completed, got %+v", v)
		}
		if v.Amount != 25_000 || v.Currency != "KES" || v.Ref != "QK12XYZ" {
			t.Errorf("unexpected verification: %+v", v)
		}
	})

	t.Run("in-flight query stays pending", func(t *testing.T) {
		g := serve(t, map[string]any{
			"errorCode":    "500.001.1001",
			"errorMessage": "The transaction is being processed",
		})
		if v := g.VerifyPayment(ctx, "ws_CO_1"); v.Status != adapter.StatusPending {
			t.Errorf("expected pending, got %+v", v)
		}
	})

	t.Run("push not acted on yet stays pending", func(t *testing.T) {
		g := serve(t, map[string]any{
			"ResponseCode": "0",
			"ResultCode":   "1032",
			"ResultDesc":   "Request cancelled by user",
		})
		if v := g.VerifyPayment(ctx, "ws_CO_1"); v.Status != adapter.StatusPending {
			t.Errorf("expected pending, got %+v", v)
		}
	})

	t.Run("any other result code fails", func(t *testing.T) {
		g := serve(t, map[string]any{
			"ResponseCode": "0",
			"ResultCode":   "2001",
			"ResultDesc":   "Wrong PIN",
		})
		v := g.VerifyPayment(ctx, "ws_CO_1")
		if v.Success || v.Status != adapter.StatusFailed || v.Error != "Wrong PIN" {
			t.Errorf("expected failed with reason, got %+v", v)
		}
	})
}

func TestMpesaHandleWebhook(t *testing.T) {
	ctx := context.Background()
	g := newTestMpesa(t, "http://unused.test")

	body := func(resultCode int) []byte {
		b, _ := json.Marshal(map[string]any{
			"Body": map[string]any{
				"stkCallback": map[string]any{
					"CheckoutRequestID": "ws_CO_1",
					"ResultCode":        resultCode,
					"ResultDesc":        "desc",
				},
			},
		})
		return b
	}
	authed := map[string]string{"X-Callback-Token": "hook-secret"}

	t.Run("rejects a bad callback token", func(t *testing.T) {
		res := g.HandleWebhook(ctx, adapter.WebhookPayload{
			Body:    body(0),
			Headers: map[string]string{"X-Callback-Token": "wrong"},
		})
		if res.Success {
			t.Fatal("expected rejection")
		}
	})

	t.Run("result code 0 completes", func(t *testing.T) {
		res := g.HandleWebhook(ctx, adapter.WebhookPayload{Body: body(0), Headers: authed})
		if !res.Success || res.Status != adapter.StatusCompleted || res.ProviderTxID != "ws_CO_1" {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("non-zero result code fails", func(t *testing.T) {
		res := g.HandleWebhook(ctx, adapter.WebhookPayload{Body: body(1032), Headers: authed})
		if !res.Success || res.Status != adapter.StatusFailed {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("malformed body is an error", func(t *testing.T) {
		res := g.HandleWebhook(ctx, adapter.WebhookPayload{Body: []byte("{"), Headers: authed})
		if res.Success {
			t.Error("expected parse failure")
		}
	})
}
