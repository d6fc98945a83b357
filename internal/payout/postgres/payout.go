package postgres

import (
	"time"

	payoutdm "github.com/kodisha/payments/internal/core/datamodel/payout"
	payoutpkg "github.com/kodisha/payments/internal/payout"
	"gorm.io/gorm"
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) payoutpkg.RepositoryAPI {
	return &PayoutRepository{
		db: db,
	}
}

func (r *PayoutRepository) Create(p *payoutdm.Payout) error {
	return r.db.Create(p).Error
}

func (r *PayoutRepository) GetByID(id string) (*payoutdm.Payout, error) {
	var p payoutdm.Payout
	err := r.db.Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PayoutRepository) MarkCompleted(id, mpesaRef string, completedAt time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":       payoutdm.StatusCompleted,
		"completed_at": completedAt,
	}
	if mpesaRef != "" {
		updates["mpesa_ref"] = mpesaRef
	}

	result := r.db.Model(&payoutdm.Payout{}).
		Where("id = ? AND status = ?", id, payoutdm.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *PayoutRepository) MarkFailed(id, errorMessage string) (bool, error) {
	result := r.db.Model(&payoutdm.Payout{}).
		Where("id = ? AND status = ?", id, payoutdm.StatusPending).
		Updates(map[string]interface{}{
			"status":        payoutdm.StatusFailed,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
