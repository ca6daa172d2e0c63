// Package imports persists uploaded statement batches and their rows and
// owns the batch lifecycle.
package imports

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"churchcoin-backend/internal/importer"
	"churchcoin-backend/internal/models"
	"churchcoin-backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrBatchNotFound     = errors.New("import batch not found")
	ErrInvalidTransition = errors.New("invalid import status transition")
)

// statusOrder declares the forward-only lifecycle. failed is reachable from
// any non-terminal state and is handled separately.
var statusOrder = []models.ImportStatus{
	models.ImportUploaded,
	models.ImportMapping,
	models.ImportProcessing,
	models.ImportCompleted,
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// RowInput is one confirmed statement line ready to be stored.
type RowInput struct {
	importer.MappedRow
	Raw map[string]string
}

// CreateImportWithRows stores the batch and all of its rows in one
// transaction: everything lands or nothing does. The row count is fixed here
// and never grows.
func (s *Service) CreateImportWithRows(
	churchID uuid.UUID,
	filename string,
	format models.BankFormat,
	mapping importer.MappingConfig,
	rows []RowInput,
) (*models.ImportBatch, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows to import", importer.ErrMalformedCSV)
	}

	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return nil, err
	}

	status := models.ImportUploaded
	if mapping.Valid() {
		status = models.ImportMapping
	}

	batch := &models.ImportBatch{
		ID:         uuid.New(),
		ChurchID:   churchID,
		Filename:   filename,
		BankFormat: format,
		Mapping:    mappingJSON,
		Status:     status,
		RowCount:   len(rows),
		CreatedAt:  time.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		for _, in := range rows {
			rawJSON, err := json.Marshal(in.Raw)
			if err != nil {
				return err
			}
			row := &models.ImportRow{
				ID:          uuid.New(),
				BatchID:     batch.ID,
				ChurchID:    churchID,
				Date:        in.Date,
				Description: in.Description,
				Amount:      in.Amount,
				Reference:   in.Reference,
				RowType:     in.RowType,
				Raw:         rawJSON,
				Status:      models.RowPending,
				CreatedAt:   time.Now(),
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// AdvanceStatus moves the batch one step forward. Only adjacent transitions
// are legal, except into failed, which any non-terminal state may take.
func (s *Service) AdvanceStatus(batchID uuid.UUID, next models.ImportStatus) error {
	batch, err := s.getBatch(batchID)
	if err != nil {
		return err
	}

	current := batch.Status
	if current == models.ImportCompleted || current == models.ImportFailed {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, current)
	}
	if next != models.ImportFailed && !adjacent(current, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	// conditional update so a concurrent transition cannot be overwritten
	res := s.db.Model(&models.ImportBatch{}).
		Where("id = ? AND status = ?", batchID, current).
		Update("status", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: batch moved concurrently", ErrInvalidTransition)
	}
	return nil
}

func adjacent(current, next models.ImportStatus) bool {
	for i, st := range statusOrder {
		if st == current {
			return i+1 < len(statusOrder) && statusOrder[i+1] == next
		}
	}
	return false
}

func (s *Service) GetImportRows(batchID uuid.UUID) ([]models.ImportRow, error) {
	if _, err := s.getBatch(batchID); err != nil {
		return nil, err
	}
	var rows []models.ImportRow
	err := s.db.Where("batch_id = ?", batchID).Order("created_at ASC, id ASC").Find(&rows).Error
	return rows, err
}

// ListRows pages through a batch with a cursor, optionally filtered by status
// or a description/amount search.
func (s *Service) ListRows(batchID uuid.UUID, status, cursor string, limit int, search string) ([]models.ImportRow, string, bool) {
	var rows []models.ImportRow
	query := s.db.
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Limit(limit + 1)

	if status != "" && status != "all" {
		query = query.Where("status = ?", status)
	}
	if cursor != "" {
		query = query.Where("id > ?", cursor)
	}
	if search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(description) LIKE ? OR CAST(amount AS TEXT) LIKE ?",
			like, like,
		)
	}

	query.Find(&rows)

	hasMore := false
	var nextCursor string
	if len(rows) > limit {
		hasMore = true
		nextCursor = rows[limit-1].ID.String()
		rows = rows[:limit]
	}
	return rows, nextCursor, hasMore
}

// BatchStats aggregates row counts and sums per status.
type BatchStats struct {
	Total          int64   `json:"total"`
	TotalAmount    float64 `json:"total_amount"`
	PendingCount   int64   `json:"pending_count"`
	ReadyCount     int64   `json:"ready_count"`
	DuplicateCount int64   `json:"duplicate_count"`
	ApprovedCount  int64   `json:"approved_count"`
	SkippedCount   int64   `json:"skipped_count"`
}

type statRow struct {
	Status models.RowStatus
	Count  int64
	Sum    float64
}

func (s *Service) BatchStats(batchID uuid.UUID) (BatchStats, error) {
	var stats BatchStats
	var rows []statRow

	err := s.db.Model(&models.ImportRow{}).
		Where("batch_id = ?", batchID).
		Select("status, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}

	for _, r := range rows {
		stats.Total += r.Count
		stats.TotalAmount += r.Sum
		switch r.Status {
		case models.RowPending:
			stats.PendingCount = r.Count
		case models.RowReady:
			stats.ReadyCount = r.Count
		case models.RowDuplicate:
			stats.DuplicateCount = r.Count
		case models.RowApproved:
			stats.ApprovedCount = r.Count
		case models.RowSkipped:
			stats.SkippedCount = r.Count
		}
	}
	return stats, nil
}

// DeleteResult reports exactly what a cascade delete removed.
type DeleteResult struct {
	DeletedRows         int64 `json:"deleted_rows"`
	DeletedTransactions int64 `json:"deleted_transactions"`
}

// DeleteImport removes the batch, its rows, and any ledger transactions whose
// provenance points at it, reversing each transaction's effect on its fund
// balance. Destructive and irreversible; the caller gets exact counts back.
func (s *Service) DeleteImport(batchID, churchID uuid.UUID) (DeleteResult, error) {
	var result DeleteResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var batch models.ImportBatch
		if err := tx.First(&batch, "id = ?", batchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBatchNotFound
			}
			return err
		}
		if batch.ChurchID != churchID {
			return models.ErrCrossTenantReference
		}

		var txs []models.Transaction
		if err := tx.Where("csv_batch_id = ?", batchID).Find(&txs).Error; err != nil {
			return err
		}
		for _, t := range txs {
			if err := repository.AdjustBalance(tx, t.FundID, -t.Amount); err != nil {
				return err
			}
		}
		if len(txs) > 0 {
			res := tx.Where("csv_batch_id = ?", batchID).Delete(&models.Transaction{})
			if res.Error != nil {
				return res.Error
			}
			result.DeletedTransactions = res.RowsAffected
		}

		res := tx.Where("batch_id = ?", batchID).Delete(&models.ImportRow{})
		if res.Error != nil {
			return res.Error
		}
		result.DeletedRows = res.RowsAffected

		return tx.Delete(&models.ImportBatch{}, "id = ?", batchID).Error
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return result, nil
}

func (s *Service) getBatch(batchID uuid.UUID) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	if err := s.db.First(&batch, "id = ?", batchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// GetBatch is the exported read used by handlers.
func (s *Service) GetBatch(batchID uuid.UUID) (*models.ImportBatch, error) {
	return s.getBatch(batchID)
}
