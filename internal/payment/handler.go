package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	errors "github.com/kodisha/payments/internal"
	"github.com/kodisha/payments/internal/auth"
	"github.com/kodisha/payments/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	PaymentService ServiceAPI
	Logger         *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:    baseHandler,
		PaymentService: paymentService,
		Logger:         logger,
	}
}

// InitiatePayment handles POST /api/v1/payments/initiate
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.Logger.Error("InitiatePayment: user not found in context")
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	var req InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("InitiatePayment: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.PaymentService.Initiate(r.Context(), user.ID, &req)
	if err != nil {
		h.Logger.Warn("InitiatePayment: initiation failed",
			"error", err,
			"booking_id", req.BookingID,
			"user_id", user.ID)
		h.HandleError(w, err)
		return
	}

	h.Logger.Info("InitiatePayment: payment initiated",
		"transaction_id", resp.TransactionID,
		"booking_id", req.BookingID,
		"user_id", user.ID)

	h.WriteSuccess(w, http.StatusOK, resp, "Payment initiated. Please complete on your phone.")
}

// GetStatus handles GET /api/v1/payments/status?transactionId=
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	transactionID := r.URL.Query().Get("transactionId")
	if transactionID == "" {
		h.HandleError(w, errors.NewValidationError("transactionId is required", errors.ErrCodeValidationFailed))
		return
	}

	view, err := h.PaymentService.GetStatus(r.Context(), transactionID, user.ID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, view, "Payment status: "+view.Status)
}

// GetHistory handles GET /api/v1/payments/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	views, err := h.PaymentService.History(r.Context(), user.ID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, views, "")
}
