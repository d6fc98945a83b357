package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/kodisha/payments/internal/auth"
	"github.com/kodisha/payments/internal/payment"
	"github.com/kodisha/payments/internal/payout"
	"github.com/kodisha/payments/internal/transport/middleware"
	"github.com/kodisha/payments/internal/transport/swagger"
)

// RegisterAllRoutes mounts the payment API. The M-Pesa callback stays
// outside the auth group since the provider cannot carry a bearer token.
func RegisterAllRoutes(router *chi.Mux, db *sql.DB, allowedOrigins string, authMiddleware *auth.Middleware, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, payoutHandler *payout.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(allowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Post("/payments/callback", webhookHandler.HandleMpesaCallback)
		}

		if authMiddleware != nil {
			r.Group(func(pr chi.Router) {
				pr.Use(authMiddleware.Authenticate)

				if paymentHandler != nil {
					pr.Post("/payments/initiate", paymentHandler.InitiatePayment)
					pr.Get("/payments/status", paymentHandler.GetStatus)
					pr.Get("/payments/history", paymentHandler.GetHistory)
				}

				if payoutHandler != nil {
					pr.Post("/payments/payout", payoutHandler.SendPayout)
				}
			})
		}
	})
}
