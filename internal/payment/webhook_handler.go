package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kodisha/payments/internal/core/datamodel/mpesa"
	"github.com/kodisha/payments/internal/transport"
)

type WebhookHandler struct {
	*transport.BaseHandler
	paymentService ServiceAPI
	callbackSecret string
	logger         *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, callbackSecret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
		callbackSecret: callbackSecret,
		logger:         logger,
	}
}

// CallbackAck is the fixed acknowledgment Daraja expects. Anything other
// than ResultCode 0 with HTTP 200 makes the provider retry the delivery
// indefinitely.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// HandleMpesaCallback is the single asynchronous entry point the provider
// calls after a charge attempt resolves. The contract here is strict:
// acknowledge unconditionally, never surface an internal error to the
// transport, and rely on the idempotency guard in the service for
// duplicate deliveries.
func (h *WebhookHandler) HandleMpesaCallback(w http.ResponseWriter, r *http.Request) {
	// Daraja publishes no payload signature; when a shared callback secret
	// is configured the URL path carries it and mismatches are rejected
	// before any ledger access. This is the one case that does not ack:
	// the sender is not the provider.
	if h.callbackSecret != "" && r.URL.Query().Get("secret") != h.callbackSecret {
		h.logger.Warn("callback rejected: secret mismatch", "remote_addr", r.RemoteAddr)
		h.WriteJSON(w, http.StatusForbidden, CallbackAck{ResultCode: 1, ResultDesc: "Rejected"})
		return
	}

	defer h.ack(w)

	var envelope mpesa.CallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.logger.Error("malformed mpesa callback payload", "error", err)
		return
	}

	cb := envelope.Body.STKCallback
	h.logger.Info("received mpesa callback",
		"checkout_request_id", cb.CheckoutRequestID,
		"merchant_request_id", cb.MerchantRequestID,
		"result_code", cb.ResultCode,
		"result_desc", cb.ResultDesc)

	if cb.CheckoutRequestID == "" {
		h.logger.Error("mpesa callback missing CheckoutRequestID")
		return
	}

	if err := h.paymentService.ProcessCallback(r.Context(), &cb); err != nil {
		// logged out-of-band; the provider still gets its ack
		h.logger.Error("failed to process mpesa callback",
			"error", err,
			"checkout_request_id", cb.CheckoutRequestID)
	}
}

func (h *WebhookHandler) ack(w http.ResponseWriter) {
	h.WriteJSON(w, http.StatusOK, CallbackAck{
		ResultCode: 0,
		ResultDesc: "Callback received successfully",
	})
}
