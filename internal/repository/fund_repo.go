package repository

import (
	"churchcoin-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FundRepository struct {
	db *gorm.DB
}

func NewFundRepository(db *gorm.DB) *FundRepository {
	return &FundRepository{db: db}
}

func (r *FundRepository) GetByID(id uuid.UUID) (*models.Fund, error) {
	var fund models.Fund
	if err := r.db.First(&fund, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &fund, nil
}

// AdjustBalance applies a signed delta to the fund's running balance. It must
// run inside the same gorm transaction as the ledger write that caused it.
func AdjustBalance(tx *gorm.DB, fundID uuid.UUID, delta float64) error {
	return tx.Model(&models.Fund{}).
		Where("id = ?", fundID).
		UpdateColumn("balance", gorm.Expr("balance + ?", delta)).Error
}

func (r *FundRepository) ByChurch(churchID uuid.UUID) ([]models.Fund, error) {
	var funds []models.Fund
	err := r.db.Where("church_id = ?", churchID).Order("name ASC").Find(&funds).Error
	return funds, err
}
