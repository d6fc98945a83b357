package transaction

import (
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction is the ledger row for a single STK-push payment attempt.
// Rows are never deleted; a booking may accumulate several failed attempts
// but at most one pending one per payer.
type Transaction struct {
	ID                string     `gorm:"primaryKey;type:uuid"`
	UserID            string     `gorm:"column:user_id;not null;index"`
	BookingID         string     `gorm:"column:booking_id;not null;index"`
	Amount            int64      `gorm:"column:amount;not null"`
	PhoneNumber       string     `gorm:"column:phone_number;not null"`
	Status            string     `gorm:"column:status;default:pending;index"`
	Description       string     `gorm:"column:description"`
	CheckoutRequestID *string    `gorm:"column:mpesa_checkout_id;index"`
	MpesaRef          *string    `gorm:"column:mpesa_ref"`
	ErrorMessage      *string    `gorm:"column:error_message"`
	CreatedAt         time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;default:now()"`
	CompletedAt       *time.Time `gorm:"column:completed_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// IsTerminal reports whether the transaction has reached a final state.
// Terminal rows must never transition again, callbacks replayed by the
// provider are dropped against this check.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// CanTransitionTo validates a state change against the ledger state machine:
// pending -> completed | failed, nothing out of a terminal state.
func CanTransitionTo(from, to string) bool {
	if from != StatusPending {
		return false
	}
	return to == StatusCompleted || to == StatusFailed
}
