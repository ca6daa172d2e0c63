package repository

import (
	"time"

	"churchcoin-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Expose DB if needed
func (r *TransactionRepository) DB() *gorm.DB {
	return r.db
}

// DuplicateWindow returns existing transactions sharing the exact date and
// amount, newest first. Description similarity is scored in Go by the caller.
func (r *TransactionRepository) DuplicateWindow(churchID uuid.UUID, date time.Time, amount float64) ([]models.Transaction, error) {
	var txs []models.Transaction
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	err := r.db.
		Where("church_id = ?", churchID).
		Where("date >= ? AND date < ?", day, day.AddDate(0, 0, 1)).
		Where("amount = ?", amount).
		Order("created_at DESC").
		Find(&txs).Error
	return txs, err
}

// UnreconciledInPeriod returns ledger entries inside [start, end) that no
// confirmed match has claimed yet.
func (r *TransactionRepository) UnreconciledInPeriod(churchID uuid.UUID, start, end time.Time) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.
		Where("church_id = ?", churchID).
		Where("date >= ? AND date < ?", start, end).
		Where("reconciled = ?", false).
		Order("date ASC").
		Find(&txs).Error
	return txs, err
}

// SumUnreconciledInPeriod totals the signed amounts still unreconciled.
func (r *TransactionRepository) SumUnreconciledInPeriod(churchID uuid.UUID, start, end time.Time) (float64, error) {
	var total float64
	err := r.db.Model(&models.Transaction{}).
		Where("church_id = ?", churchID).
		Where("date >= ? AND date < ?", start, end).
		Where("reconciled = ?", false).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// SumPending totals ledger entries recorded but not yet cleared by the bank.
func (r *TransactionRepository) SumPending(churchID uuid.UUID) (float64, error) {
	var total float64
	err := r.db.Model(&models.Transaction{}).
		Where("church_id = ?", churchID).
		Where("pending_status = ?", models.PendingPending).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// ByBatch returns all ledger entries whose provenance points at the batch.
func (r *TransactionRepository) ByBatch(batchID uuid.UUID) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("csv_batch_id = ?", batchID).Find(&txs).Error
	return txs, err
}
