package postgres

import (
	"time"

	bookingdm "github.com/kodisha/payments/internal/core/datamodel/booking"
	paymentpkg "github.com/kodisha/payments/internal/payment"
	"gorm.io/gorm"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) paymentpkg.BookingRepositoryAPI {
	return &BookingRepository{
		db: db,
	}
}

func (r *BookingRepository) MarkPaid(bookingID string, paidAt time.Time) error {
	result := r.db.Model(&bookingdm.Booking{}).
		Where("id = ?", bookingID).
		Updates(map[string]interface{}{
			"payment_status": bookingdm.PaymentStatusCompleted,
			"paid_at":        paidAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
