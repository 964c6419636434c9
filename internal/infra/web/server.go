package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/logging"
	"github.com/ashiruma/Mbogiwood-Productions/internal/usecase"
)

type Server struct {
	paymentUC usecase.PaymentUseCase
	accessUC  usecase.AccessUseCase
	auth      *AuthManager
	log       *zerolog.Logger

	// flwWebhookSecret is compared against the verif-hash header before a
	// card/regional webhook is dispatched; the adapter itself does not check.
	flwWebhookSecret string

	httpSrv *http.Server
}

func NewServer(
	paymentUC usecase.PaymentUseCase,
	accessUC usecase.AccessUseCase,
	auth *AuthManager,
	flwWebhookSecret string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		paymentUC:        paymentUC,
		accessUC:         accessUC,
		auth:             auth,
		flwWebhookSecret: flwWebhookSecret,
		log:              logger,
	}
}

type ctxKey string

const ctxUserID ctxKey = "user_id"

func userID(ctx context.Context) string {
	v, _ := ctx.Value(ctxUserID).(string)
	return v
}

// Routes builds the full router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/payments/initiate", s.handleInitiate)
			r.Post("/payments/verify", s.handleVerify)
			r.Get("/films/{filmID}/access", s.handleAccess)
		})
		// Providers authenticate via signatures/tokens, not sessions.
		r.Post("/webhooks/{provider}", s.handleProviderWebhook)
	})

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, port int) error {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.Info().Int("port", port).Msg("http server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// requireUser authenticates the session and stashes the user id in context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID())
		ctx = logging.WithUserID(ctx, claims.UserID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}
