package payout

import (
	"time"

	errors "github.com/kodisha/payments/internal"
	"github.com/kodisha/payments/internal/core/common/validation"
	payoutdm "github.com/kodisha/payments/internal/core/datamodel/payout"
)

const defaultPayoutDescription = "Earnings Payout"

// SendPayoutRequest is the body for POST /payments/payout. HostID names
// the payee; the disbursement phone comes from the host's profile, never
// from the request.
type SendPayoutRequest struct {
	HostID      string  `json:"hostId"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
}

func (r *SendPayoutRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("hostId", r.HostID).Required()
	validator.Field("amount", r.Amount).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	if r.Amount <= 0 {
		return errors.NewValidationError("amount must be positive", errors.ErrCodeInvalidAmount)
	}
	return nil
}

type PayoutView struct {
	PayoutID     string `json:"payoutId"`
	HostID       string `json:"hostId"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	MpesaRef     string `json:"mpesaRef,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt"`
	CompletedAt  string `json:"completedAt,omitempty"`
}

func ToPayoutView(p *payoutdm.Payout) *PayoutView {
	view := &PayoutView{
		PayoutID:  p.ID,
		HostID:    p.HostID,
		Status:    p.Status,
		Amount:    p.Amount,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.MpesaRef != nil {
		view.MpesaRef = *p.MpesaRef
	}
	if p.ErrorMessage != nil {
		view.ErrorMessage = *p.ErrorMessage
	}
	if p.CompletedAt != nil {
		view.CompletedAt = p.CompletedAt.UTC().Format(time.RFC3339)
	}
	return view
}
