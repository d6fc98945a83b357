package postgres

import (
	"errors"
	"time"

	apperrors "github.com/kodisha/payments/internal"
	"github.com/kodisha/payments/internal/core/datamodel/transaction"
	paymentpkg "github.com/kodisha/payments/internal/payment"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &TransactionRepository{
		db: db,
	}
}

// Create inserts a pending row. The partial unique index on
// (booking_id, user_id) rejects a second pending attempt, which surfaces
// here when two initiates for the same booking race past the read check.
func (r *TransactionRepository) Create(t *transaction.Transaction) error {
	if err := r.db.Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.ErrDuplicatePendingPayment
		}
		return err
	}
	return nil
}

func (r *TransactionRepository) GetByID(id string) (*transaction.Transaction, error) {
	var t transaction.Transaction
	err := r.db.Where("id = ?", id).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepository) GetByCheckoutRequestID(checkoutRequestID string) (*transaction.Transaction, error) {
	var t transaction.Transaction
	err := r.db.Where("mpesa_checkout_id = ?", checkoutRequestID).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepository) GetPendingForBooking(bookingID, userID string) (*transaction.Transaction, error) {
	var t transaction.Transaction
	err := r.db.Where("booking_id = ? AND user_id = ? AND status = ?", bookingID, userID, transaction.StatusPending).
		Order("created_at DESC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepository) ListByUser(userID string, limit int) ([]*transaction.Transaction, error) {
	var txns []*transaction.Transaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *TransactionRepository) ListPendingOlderThan(age time.Duration, limit int) ([]*transaction.Transaction, error) {
	cutoff := time.Now().UTC().Add(-age)

	var txns []*transaction.Transaction
	err := r.db.Where("status = ? AND created_at < ?", transaction.StatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *TransactionRepository) SetCheckoutRequestID(id, checkoutRequestID string) error {
	return r.db.Model(&transaction.Transaction{}).
		Where("id = ?", id).
		Update("mpesa_checkout_id", checkoutRequestID).Error
}

// MarkCompleted applies pending->completed and reports whether this call
// won the transition. The status predicate in the WHERE clause is what
// makes concurrent callback and reconciler deliveries safe.
func (r *TransactionRepository) MarkCompleted(id, mpesaRef string, completedAt time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":       transaction.StatusCompleted,
		"completed_at": completedAt,
	}
	if mpesaRef != "" {
		updates["mpesa_ref"] = mpesaRef
	}

	result := r.db.Model(&transaction.Transaction{}).
		Where("id = ? AND status = ?", id, transaction.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *TransactionRepository) MarkFailed(id, errorMessage string) (bool, error) {
	result := r.db.Model(&transaction.Transaction{}).
		Where("id = ? AND status = ?", id, transaction.StatusPending).
		Updates(map[string]interface{}{
			"status":        transaction.StatusFailed,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
