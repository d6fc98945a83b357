package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kodisha/payments/internal/core/events"
)

// EventHandler consumes payment lifecycle events and records the
// notifications that would go out to guests and hosts. Actual SMS/email
// delivery lives in a separate service; this subscriber is its in-process
// seam.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandlePaymentCompleted(ctx context.Context, event events.Event) error {
	completedEvent, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentCompletedEvent, got %T", event)
	}

	h.logger.Info("notify: booking payment received",
		"transaction_id", completedEvent.TransactionID,
		"booking_id", completedEvent.BookingID,
		"user_id", completedEvent.UserID,
		"amount", completedEvent.Amount,
		"mpesa_ref", completedEvent.MpesaRef,
		"event_id", completedEvent.EventID())

	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	failedEvent, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	h.logger.Info("notify: booking payment failed",
		"transaction_id", failedEvent.TransactionID,
		"booking_id", failedEvent.BookingID,
		"user_id", failedEvent.UserID,
		"reason", failedEvent.Reason,
		"event_id", failedEvent.EventID())

	return nil
}

func (h *EventHandler) HandlePayoutSent(ctx context.Context, event events.Event) error {
	payoutEvent, ok := event.(*events.PayoutSentEvent)
	if !ok {
		h.logger.Error("invalid event type for payout sent handler", "event_type", event.EventType())
		return fmt.Errorf("expected PayoutSentEvent, got %T", event)
	}

	h.logger.Info("notify: host payout sent",
		"payout_id", payoutEvent.PayoutID,
		"host_id", payoutEvent.HostID,
		"amount", payoutEvent.Amount,
		"event_id", payoutEvent.EventID())

	return nil
}

func (h *EventHandler) HandleBookingUpdateFailed(ctx context.Context, event events.Event) error {
	updateEvent, ok := event.(*events.BookingUpdateFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for booking update failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected BookingUpdateFailedEvent, got %T", event)
	}

	// Money was received but the booking row is stale. This needs an
	// operator, not a customer notification.
	h.logger.Error("alert: completed payment with stale booking",
		"transaction_id", updateEvent.TransactionID,
		"booking_id", updateEvent.BookingID,
		"reason", updateEvent.Reason,
		"event_id", updateEvent.EventID())

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentCompleted)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)
	eventBus.Subscribe(events.EventTypePayoutSent, h.HandlePayoutSent)
	eventBus.Subscribe(events.EventTypeBookingUpdateFailed, h.HandleBookingUpdateFailed)

	h.logger.Info("notification event handlers registered",
		"handlers", []string{
			events.EventTypePaymentCompleted,
			events.EventTypePaymentFailed,
			events.EventTypePayoutSent,
			events.EventTypeBookingUpdateFailed,
		})
}
