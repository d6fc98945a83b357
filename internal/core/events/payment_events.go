package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCompleted    = "payment.completed"
	EventTypePaymentFailed       = "payment.failed"
	EventTypePayoutSent          = "payout.sent"
	EventTypeBookingUpdateFailed = "booking.update_failed"
)

type PaymentCompletedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	BookingID     string `json:"booking_id"`
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	MpesaRef      string `json:"mpesa_ref"`
}

func NewPaymentCompletedEvent(transactionID, bookingID, userID string, amount int64, mpesaRef string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id": transactionID,
				"booking_id":     bookingID,
				"user_id":        userID,
				"amount":         amount,
				"mpesa_ref":      mpesaRef,
			},
		},
		TransactionID: transactionID,
		BookingID:     bookingID,
		UserID:        userID,
		Amount:        amount,
		MpesaRef:      mpesaRef,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	BookingID     string `json:"booking_id"`
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
}

func NewPaymentFailedEvent(transactionID, bookingID, userID string, amount int64, reason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id": transactionID,
				"booking_id":     bookingID,
				"user_id":        userID,
				"amount":         amount,
				"reason":         reason,
			},
		},
		TransactionID: transactionID,
		BookingID:     bookingID,
		UserID:        userID,
		Amount:        amount,
		Reason:        reason,
	}
}

type PayoutSentEvent struct {
	BaseEvent
	PayoutID string `json:"payout_id"`
	HostID   string `json:"host_id"`
	Amount   int64  `json:"amount"`
}

func NewPayoutSentEvent(payoutID, hostID string, amount int64) *PayoutSentEvent {
	return &PayoutSentEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePayoutSent,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payout_id": payoutID,
				"host_id":   hostID,
				"amount":    amount,
			},
		},
		PayoutID: payoutID,
		HostID:   hostID,
		Amount:   amount,
	}
}

// BookingUpdateFailedEvent flags the discrepancy where money was received
// but the booking row could not be marked paid. Consumers queue it for
// reconciliation; the transaction itself stays completed.
type BookingUpdateFailedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	BookingID     string `json:"booking_id"`
	Reason        string `json:"reason"`
}

func NewBookingUpdateFailedEvent(transactionID, bookingID, reason string) *BookingUpdateFailedEvent {
	return &BookingUpdateFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeBookingUpdateFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id": transactionID,
				"booking_id":     bookingID,
				"reason":         reason,
			},
		},
		TransactionID: transactionID,
		BookingID:     bookingID,
		Reason:        reason,
	}
}
