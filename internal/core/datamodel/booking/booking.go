package booking

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

// Booking is owned by the listings subsystem. This service only reads its
// id and mutates payment_status/paid_at when a charge completes.
type Booking struct {
	ID            string     `gorm:"primaryKey;type:uuid"`
	PaymentStatus string     `gorm:"column:payment_status"`
	PaidAt        *time.Time `gorm:"column:paid_at"`
}

func (Booking) TableName() string {
	return "bookings"
}
