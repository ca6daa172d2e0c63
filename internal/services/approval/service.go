// Package approval converts reviewed import rows into committed ledger
// transactions, exactly once per row, keeping fund balances in step.
package approval

import (
	"errors"
	"time"

	"churchcoin-backend/internal/models"
	"churchcoin-backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrRowNotFound        = errors.New("import row not found in batch")
	ErrRowAlreadyApproved = errors.New("import row already approved")
	ErrRowIsDuplicate     = errors.New("import row flagged as duplicate, override required")
	ErrNoFund             = errors.New("no fund selected for row")
)

type Service struct {
	db         *gorm.DB
	churchRepo *repository.ChurchRepository
}

func NewService(db *gorm.DB, churchRepo *repository.ChurchRepository) *Service {
	return &Service{db: db, churchRepo: churchRepo}
}

// Selection names the row to approve and where the money goes.
type Selection struct {
	RowID          uuid.UUID  `json:"rowId"`
	FundID         uuid.UUID  `json:"fundId"`
	CategoryID     *uuid.UUID `json:"categoryId,omitempty"`
	DonorID        *uuid.UUID `json:"donorId,omitempty"`
	AllowDuplicate bool       `json:"allowDuplicate,omitempty"`
}

// RowFailure reports one selection that could not be approved.
type RowFailure struct {
	RowID  uuid.UUID `json:"rowId"`
	Reason string    `json:"reason"`
}

type ApproveResult struct {
	Requested int          `json:"requested"`
	Approved  int          `json:"approved"`
	Failures  []RowFailure `json:"failures,omitempty"`
}

// ApproveRows commits each selection independently. A bad row is reported in
// the result and the rest of the batch carries on; rows already committed
// stay committed.
func (s *Service) ApproveRows(batchID, churchID uuid.UUID, selections []Selection) (ApproveResult, error) {
	result := ApproveResult{Requested: len(selections)}

	for _, sel := range selections {
		if err := s.approveOne(batchID, churchID, sel); err != nil {
			result.Failures = append(result.Failures, RowFailure{RowID: sel.RowID, Reason: err.Error()})
			continue
		}
		result.Approved++
	}
	return result, nil
}

// approveOne runs one selection inside one db transaction: row state check,
// ledger write, fund balance update, row status flip. The conditional update
// on row status is what makes approval idempotent per row.
func (s *Service) approveOne(batchID, churchID uuid.UUID, sel Selection) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row models.ImportRow
		if err := tx.First(&row, "id = ?", sel.RowID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRowNotFound
			}
			return err
		}
		if row.BatchID != batchID {
			return ErrRowNotFound
		}
		if row.ChurchID != churchID {
			return models.ErrCrossTenantReference
		}
		if row.Status == models.RowApproved {
			return ErrRowAlreadyApproved
		}
		if row.Status == models.RowDuplicate && !sel.AllowDuplicate {
			return ErrRowIsDuplicate
		}

		var fund models.Fund
		if err := tx.First(&fund, "id = ?", sel.FundID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoFund
			}
			return err
		}
		if fund.ChurchID != churchID {
			return models.ErrCrossTenantReference
		}

		txn := &models.Transaction{
			ID:            uuid.New(),
			ChurchID:      churchID,
			FundID:        sel.FundID,
			Date:          row.Date,
			Description:   row.Description,
			Amount:        row.Amount,
			Type:          models.TransactionType(row.Amount),
			CategoryID:    sel.CategoryID,
			DonorID:       sel.DonorID,
			Source:        models.SourceCSV,
			CSVBatchID:    &batchID,
			ImportRowID:   &row.ID,
			PendingStatus: models.PendingNone,
			CreatedAt:     time.Now(),
		}
		if err := tx.Create(txn).Error; err != nil {
			return err
		}
		if err := repository.AdjustBalance(tx, sel.FundID, row.Amount); err != nil {
			return err
		}

		res := tx.Model(&models.ImportRow{}).
			Where("id = ? AND status <> ?", row.ID, models.RowApproved).
			Update("status", models.RowApproved)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// a concurrent caller got here first; roll back our write
			return ErrRowAlreadyApproved
		}
		return nil
	})
}

type AutoApproveResult struct {
	ApprovedCount int `json:"approvedCount"`
	SkippedCount  int `json:"skippedCount"`
}

// AutoApproveRows approves every ready or pending row whose detector
// confidence clears the church's threshold, using the detector's fund,
// category and donor suggestions. Rows with no usable fund are skipped, never
// forced into an arbitrary one.
func (s *Service) AutoApproveRows(batchID, churchID uuid.UUID) (AutoApproveResult, error) {
	var result AutoApproveResult

	church, err := s.churchRepo.GetByID(churchID)
	if err != nil {
		return result, err
	}
	threshold := church.AutoApproveThreshold
	if threshold <= 0 {
		threshold = 0.95
	}

	var rows []models.ImportRow
	err = s.db.
		Where("batch_id = ? AND church_id = ?", batchID, churchID).
		Where("status IN ?", []models.RowStatus{models.RowPending, models.RowReady}).
		Find(&rows).Error
	if err != nil {
		return result, err
	}

	for _, row := range rows {
		fundID := row.SuggestedFundID
		if fundID == nil {
			fundID = church.DefaultFundID
		}
		if fundID == nil || row.Confidence < threshold {
			result.SkippedCount++
			continue
		}

		sel := Selection{
			RowID:      row.ID,
			FundID:     *fundID,
			CategoryID: row.SuggestedCategoryID,
			DonorID:    row.SuggestedDonorID,
		}
		if err := s.approveOne(batchID, churchID, sel); err != nil {
			result.SkippedCount++
			continue
		}
		result.ApprovedCount++
	}
	return result, nil
}

// SkipRows marks the church's rows skipped and reports how many changed.
// Idempotent: skipping a skipped row is a no-op, and approved rows are never
// touched. A row ID owned by another church fails the whole call.
func (s *Service) SkipRows(churchID uuid.UUID, rowIDs []uuid.UUID) (int64, error) {
	if len(rowIDs) == 0 {
		return 0, nil
	}

	var foreign int64
	err := s.db.Model(&models.ImportRow{}).
		Where("id IN ? AND church_id <> ?", rowIDs, churchID).
		Count(&foreign).Error
	if err != nil {
		return 0, err
	}
	if foreign > 0 {
		return 0, models.ErrCrossTenantReference
	}

	res := s.db.Model(&models.ImportRow{}).
		Where("id IN ? AND church_id = ? AND status <> ?", rowIDs, churchID, models.RowApproved).
		Update("status", models.RowSkipped)
	return res.RowsAffected, res.Error
}
