package payment

import (
	"time"

	errors "github.com/kodisha/payments/internal"
	"github.com/kodisha/payments/internal/core/common/validation"
	"github.com/kodisha/payments/internal/core/datamodel/transaction"
)

const defaultChargeDescription = "Booking payment"

// InitiatePaymentRequest is the guest-facing body for POST /payments/initiate.
type InitiatePaymentRequest struct {
	Amount      float64 `json:"amount"`
	PhoneNumber string  `json:"phoneNumber"`
	BookingID   string  `json:"bookingId"`
	Description string  `json:"description,omitempty"`
}

func (r *InitiatePaymentRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("amount", r.Amount).Required()
	validator.Field("phoneNumber", r.PhoneNumber).Required().MinLength(9)
	validator.Field("bookingId", r.BookingID).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	if r.Amount <= 0 {
		return errors.NewValidationError("amount must be positive", errors.ErrCodeInvalidAmount)
	}
	return nil
}

type InitiatePaymentResponse struct {
	TransactionID     string `json:"transactionId"`
	CheckoutRequestID string `json:"checkoutRequestId"`
}

// PaymentStatusView is what pollers see. Raw provider codes are never
// exposed, only the stored human-readable failure reason.
type PaymentStatusView struct {
	TransactionID string `json:"transactionId"`
	BookingID     string `json:"bookingId"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	MpesaRef      string `json:"mpesaRef,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	CreatedAt     string `json:"createdAt"`
	CompletedAt   string `json:"completedAt,omitempty"`
}

func ToStatusView(t *transaction.Transaction) *PaymentStatusView {
	view := &PaymentStatusView{
		TransactionID: t.ID,
		BookingID:     t.BookingID,
		Status:        t.Status,
		Amount:        t.Amount,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
	}
	if t.MpesaRef != nil {
		view.MpesaRef = *t.MpesaRef
	}
	if t.ErrorMessage != nil {
		view.ErrorMessage = *t.ErrorMessage
	}
	if t.CompletedAt != nil {
		view.CompletedAt = t.CompletedAt.UTC().Format(time.RFC3339)
	}
	return view
}
