package payout

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
	PayoutService ServiceAPI
	Logger        *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, payoutService ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:   baseHandler,
		PayoutService: payoutService,
		Logger:        logger,
	}
}

// SendPayout handles POST /api/v1/payments/payout
func (h *Handler) SendPayout(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.Logger.Error("SendPayout: user not found in context")
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	var req SendPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("SendPayout: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	view, err := h.PayoutService.SendPayout(r.Context(), user, &req)
	if err != nil {
		h.Logger.Warn("SendPayout: payout failed",
			"error", err,
			"host_id", req.HostID,
			"caller_id", user.ID)
		h.HandleError(w, err)
		return
	}

	h.Logger.Info("SendPayout: payout sent",
		"payout_id", view.PayoutID,
		"host_id", view.HostID,
		"caller_id", user.ID)

	h.WriteSuccess(w, http.StatusOK, view, "Payout sent successfully")
}
