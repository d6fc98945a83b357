package payout

import "time"

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Payout records a B2C disbursement of host earnings. Unlike charge
// transactions it is resolved on gateway acceptance; MpesaRef holds the
// conversation id so a payout-result callback can be reconciled later.
type Payout struct {
	ID           string     `gorm:"primaryKey;type:uuid"`
	HostID       string     `gorm:"column:host_id;not null;index"`
	Amount       int64      `gorm:"column:amount;not null"`
	Status       string     `gorm:"column:status;default:pending"`
	Description  string     `gorm:"column:description"`
	MpesaRef     *string    `gorm:"column:mpesa_ref"`
	ErrorMessage *string    `gorm:"column:error_message"`
	CreatedAt    time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;default:now()"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
}

func (Payout) TableName() string {
	return "payouts"
}
