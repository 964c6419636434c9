package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/adapter"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/metrics"
	"github.com/ashiruma/Mbogiwood-Productions/internal/usecase"
)

const maxWebhookBody = 1 << 20 // 1 MiB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto the API's status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrFilmNotFound),
		errors.Is(err, domain.ErrNotOwner), // not-owned reads as not-found to the caller
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyHasAccess),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrAllProvidersFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type initiateRequest struct {
	FilmID          string `json:"filmId"`
	TransactionType string `json:"transactionType"` // rental|purchase
	PaymentProvider string `json:"paymentProvider,omitempty"`
	Currency        string `json:"currency,omitempty"`
	Country         string `json:"country,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Email           string `json:"email,omitempty"`
}

type initiateResponse struct {
	Success               bool                      `json:"success"`
	TransactionID         string                    `json:"transactionId"`
	PaymentURL            string                    `json:"paymentUrl,omitempty"`
	ProviderTransactionID string                    `json:"providerTransactionId,omitempty"`
	Provider              string                    `json:"provider,omitempty"`
	Failures              []adapter.ProviderFailure `json:"failures,omitempty"`
	Error                 string                    `json:"error,omitempty"`
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := s.paymentUC.Initiate(ctx, usecase.InitiateInput{
		UserID:   userID(ctx),
		FilmID:   req.FilmID,
		Kind:     model.TransactionKind(req.TransactionType),
		Provider: req.PaymentProvider,
		Country:  req.Country,
		Currency: req.Currency,
		Email:    req.Email,
		Phone:    req.Phone,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAllProvidersFailed) && out != nil {
			writeJSON(w, http.StatusBadGateway, initiateResponse{
				TransactionID: out.Transaction.ID,
				Failures:      out.Failures,
				Error:         err.Error(),
			})
			return
		}
		writeError(w, statusFor(err), err.Error())
		return
	}

	resp := initiateResponse{
		Success:       true,
		TransactionID: out.Transaction.ID,
		PaymentURL:    out.PaymentURL,
		Provider:      out.Provider,
		Failures:      out.Failures,
	}
	if out.Transaction.ProviderTxID != nil {
		resp.ProviderTransactionID = *out.Transaction.ProviderTxID
	}
	writeJSON(w, http.StatusOK, resp)
}

type verifyRequest struct {
	TransactionID string `json:"transactionId"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.PaymentVerifyRequests.WithLabelValues("fail", "bad_json").Inc()
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TransactionID == "" {
		metrics.PaymentVerifyRequests.WithLabelValues("fail", "missing_tx").Inc()
		writeError(w, http.StatusBadRequest, "transactionId is required")
		return
	}

	t, err := s.paymentUC.Verify(ctx, userID(ctx), req.TransactionID)
	if err != nil {
		if errors.Is(err, domain.ErrAmountMismatch) {
			// The transaction was marked failed; report the outcome, not a 5xx.
			metrics.PaymentVerifyRequests.WithLabelValues("fail", "amount_mismatch").Inc()
			metrics.PaymentVerifyDuration.WithLabelValues("fail").Observe(time.Since(start).Seconds())
			writeJSON(w, http.StatusOK, verifyResponse{Status: string(model.TransactionStatusFailed), Error: err.Error()})
			return
		}
		reason := "unknown"
		switch {
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotOwner):
			reason = "not_found"
		}
		metrics.PaymentVerifyRequests.WithLabelValues("fail", reason).Inc()
		metrics.PaymentVerifyDuration.WithLabelValues("fail").Observe(time.Since(start).Seconds())
		writeError(w, statusFor(err), err.Error())
		return
	}

	metrics.PaymentVerifyRequests.WithLabelValues("ok", "").Inc()
	metrics.PaymentVerifyDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, verifyResponse{
		Success: t.Status == model.TransactionStatusCompleted,
		Status:  string(t.Status),
		Error:   t.FailureReason,
	})
}

type accessResponse struct {
	HasAccess bool       `json:"hasAccess"`
	Kind      string     `json:"kind,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filmID := chi.URLParam(r, "filmID")

	g, err := s.accessUC.Get(ctx, userID(ctx), filmID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusOK, accessResponse{})
			return
		}
		writeError(w, statusFor(err), err.Error())
		return
	}
	if !g.Active(time.Now()) {
		writeJSON(w, http.StatusOK, accessResponse{})
		return
	}
	writeJSON(w, http.StatusOK, accessResponse{
		HasAccess: true,
		Kind:      string(g.Kind),
		ExpiresAt: g.ExpiresAt,
	})
}

// handleProviderWebhook dispatches inbound provider notifications. The
// card/regional signature (verif-hash) is checked here, before dispatch;
// other providers authenticate inside their adapters. An accepted payload
// always gets 200 so the provider does not retry what we already took.
func (s *Server) handleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")

	if provider == "flutterwave" {
		sig := r.Header.Get("verif-hash")
		if s.flwWebhookSecret == "" || subtle.ConstantTimeCompare([]byte(sig), []byte(s.flwWebhookSecret)) != 1 {
			metrics.IncWebhook(provider, "invalid")
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	if err := s.paymentUC.HandleWebhook(ctx, provider, adapter.WebhookPayload{Body: body, Headers: headers}); err != nil {
		if errors.Is(err, domain.ErrUnknownProvider) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		// Internal trouble settling: still 200, the reconciler will catch up.
		s.log.Error().Err(err).Str("provider", provider).Msg("webhook processing failed")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
