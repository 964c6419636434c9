//go:build !integration

package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashiruma/Mbogiwood-Productions/internal/config"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/adapter"
)

func newTestPaypal(t *testing.T, srvURL, webhookID string) *PaypalGateway {
	t.Helper()
	g, err := NewPaypalGateway(config.PaypalConfig{
		ClientID:     "cid",
		ClientSecret: "csec",
		WebhookID:    webhookID,
	}, "https://app.test/return", "https://app.test/cancel")
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	g.baseURL = srvURL
	return g
}

func paypalAuthHandler(tokens *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "cid" || pass != "csec" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		*tokens++
		json.NewEncoder(w).Encode(map[string]any{"access_token": "pp-tok", "expires_in": 3600})
	}
}

func TestPaypalProcessPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("created order returns the approve link", func(t *testing.T) {
		tokens := 0
		var order map[string]any
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/oauth2/token", paypalAuthHandler(&tokens))
		mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer pp-tok" {
				t.Errorf("expected bearer token, got %q", got)
			}
			json.NewDecoder(r.Body).Decode(&order)
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "ORDER-1",
				"status": "CREATED",
				"links": []map[string]string{
					{"rel": "self", "href": "https://paypal.test/self"},
					{"rel": "approve", "href": "https://paypal.test/approve"},
				},
			})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		g := newTestPaypal(t, srv.URL, "")
		res := g.ProcessPayment(ctx, adapter.PaymentParams{
			UserID: "user-1", FilmID: "film-1", Kind: "purchase",
			Amount: 1_999, Currency: "USD",
			Metadata: map[string]string{adapter.MetaTransactionID: "tx-1"},
		})
		if !res.Success {
			t.Fatalf("expected success, got %s", res.Error)
		}
		if res.ProviderTxID != "ORDER-1" || res.PaymentURL != "https://paypal.test/approve" {
			t.Errorf("unexpected result: %+v", res)
		}
		unit := order["purchase_units"].([]any)[0].(map[string]any)
		if unit["custom_id"] != "tx-1" {
			t.Errorf("expected our transaction id as custom_id, got %v", unit["custom_id"])
		}
		amt := unit["amount"].(map[string]any)
		if amt["value"] != "19.99" || amt["currency_code"] != "USD" {
			t.Errorf("unexpected amount: %v", amt)
		}
	})

	t.Run("non-created status is a failure", func(t *testing.T) {
		tokens := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/oauth2/token", paypalAuthHandler(&tokens))
		mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"status": "ERROR"})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		g := newTestPaypal(t, srv.URL, "")
		if res := g.ProcessPayment(ctx, adapter.PaymentParams{Amount: 100, Currency: "USD"}); res.Success {
			t.Error("expected failure")
		}
	})

	t.Run("token is cached across calls", func(t *testing.T) {
		tokens := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/oauth2/token", paypalAuthHandler(&tokens))
		mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"id": "ORDER-2", "status": "CREATED"})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		g := newTestPaypal(t, srv.URL, "")
		g.ProcessPayment(ctx, adapter.PaymentParams{Amount: 100, Currency: "USD"})
		g.ProcessPayment(ctx, adapter.PaymentParams{Amount: 100, Currency: "USD"})
		if tokens != 1 {
			t.Errorf("expected a single token fetch, got %d", tokens)
		}
	})
}

func TestPaypalVerifyPayment(t *testing.T) {
	ctx := context.Background()

	serve := func(t *testing.T, resp map[string]any) *PaypalGateway {
		t.Helper()
		tokens := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/oauth2/token", paypalAuthHandler(&tokens))
		mux.HandleFunc("/v2/checkout/orders/ORDER-1", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(resp)
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)
		return newTestPaypal(t, srv.URL, "")
	}

	t.Run("completed order verifies with minor units", func(t *testing.T) {
		g := serve(t, map[string]any{
			"id": "ORDER-1", "status": "COMPLETED",
			"purchase_units": []map[string]any{
				{"amount": map[string]string{"currency_code": "USD", "value": "19.99"}},
			},
		})
		v := g.VerifyPayment(ctx, "ORDER-1")
		if !v.Success || v.Status != adapter.StatusCompleted {
			t.Fatalf("expected completed, got %+v", v)
		}
		if v.Amount != 1_999 || v.Currency != "USD" {
			t.Errorf("unexpected amount: %+v", v)
		}
	})

	t.Run("voided order fails", func(t *testing.T) {
		g := serve(t, map[string]any{"id": "ORDER-1", "status": "VOIDED"})
		if v := g.VerifyPayment(ctx, "ORDER-1"); v.Success || v.Status != adapter.StatusFailed {
			t.Errorf("expected failed, got %+v", v)
		}
	})

	t.Run("approved order is still pending", func(t *testing.T) {
		g := serve(t, map[string]any{"id": "ORDER-1", "status": "APPROVED"})
		if v := g.VerifyPayment(ctx, "ORDER-1"); v.Status != adapter.StatusPending {
			t.Errorf("expected pending, got %+v", v)
		}
	})
}

func TestPaypalHandleWebhook(t *testing.T) {
	ctx := context.Background()

	event := func(eventType string) []byte {
		b, _ := json.Marshal(map[string]any{
			"event_type": eventType,
			"resource":   map[string]string{"id": "ORDER-1"},
		})
		return b
	}

	t.Run("accepts without verification when no webhook id is configured", func(t *testing.T) {
		g := newTestPaypal(t, "http://unused.test", "")
		res := g.HandleWebhook(ctx, adapter.WebhookPayload{Body: event("PAYMENT.CAPTURE.COMPLETED")})
		if !res.Success || res.Status != adapter.StatusCompleted || res.ProviderTxID != "ORDER-1" {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("denied capture fails", func(t *testing.T) {
		g := newTestPaypal(t, "http://unused.test", "")
		res := g.HandleWebhook(ctx, adapter.WebhookPayload{Body: event("PAYMENT.CAPTURE.DENIED")})
		if !res.Success || res.Status != adapter.StatusFailed {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("unrecognized event passes through as pending", func(t *testing.T) {
		g := newTestPaypal(t, "http://unused.test", "")
		res := g.HandleWebhook(ctx, adapter.WebhookPayload{Body: event("CHECKOUT.ORDER.SAVED")})
		if !res.Success || res.Status != adapter.StatusPending {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("verifies the signature against paypal when configured", func(t *testing.T) {
		tokens := 0
		var verifyReq map[string]any
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/oauth2/token", paypalAuthHandler(&tokens))
		mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&verifyReq)
			status := "SUCCESS"
			if verifyReq["transmission_sig"] != "good-sig" {
				status = "FAILURE"
			}
			json.NewEncoder(w).Encode(map[string]string{"verification_status": status})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		g := newTestPaypal(t, srv.URL, "WH-1")

		good := g.HandleWebhook(ctx, adapter.WebhookPayload{
			Body:    event("PAYMENT.CAPTURE.COMPLETED"),
			Headers: map[string]string{"Paypal-Transmission-Sig": "good-sig"},
		})
		if !good.Success || good.Status != adapter.StatusCompleted {
			t.Fatalf("expected verified webhook to settle, got %+v", good)
		}
		if verifyReq["webhook_id"] != "WH-1" {
			t.Errorf("expected configured webhook id in verify call, got %v", verifyReq["webhook_id"])
		}

		bad := g.HandleWebhook(ctx, adapter.WebhookPayload{
			Body:    event("PAYMENT.CAPTURE.COMPLETED"),
			Headers: map[string]string{"Paypal-Transmission-Sig": "forged"},
		})
		if bad.Success {
			t.Error("expected forged signature to be rejected")
		}
	})
}
