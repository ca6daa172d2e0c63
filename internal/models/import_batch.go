package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BankFormat identifies the statement layout an upload came from.
type BankFormat string

const (
	FormatBarclays BankFormat = "barclays"
	FormatHSBC     BankFormat = "hsbc"
	FormatMetro    BankFormat = "metro"
	FormatGeneric  BankFormat = "generic"
)

// ImportStatus is the batch lifecycle. Transitions only move forward, except
// into failed, which is reachable from any non-terminal state.
type ImportStatus string

const (
	ImportUploaded   ImportStatus = "uploaded"
	ImportMapping    ImportStatus = "mapping"
	ImportProcessing ImportStatus = "processing"
	ImportCompleted  ImportStatus = "completed"
	ImportFailed     ImportStatus = "failed"
)

type ImportBatch struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChurchID       uuid.UUID `gorm:"index"`
	Filename       string
	BankFormat     BankFormat
	Mapping        datatypes.JSON // serialized importer.MappingConfig
	Status         ImportStatus   `gorm:"index"`
	RowCount       int            // fixed at creation
	ProcessedCount int
	DuplicateCount int
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// RowStatus is the per-row lifecycle within a batch.
type RowStatus string

const (
	RowPending   RowStatus = "pending"
	RowReady     RowStatus = "ready"
	RowDuplicate RowStatus = "duplicate"
	RowApproved  RowStatus = "approved"
	RowSkipped   RowStatus = "skipped"
)

type ImportRow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	BatchID     uuid.UUID `gorm:"index"`
	ChurchID    uuid.UUID `gorm:"index"`
	Date        time.Time
	Description string
	Amount      float64 // signed: credits positive, debits negative
	Reference   string
	RowType     string
	Raw         datatypes.JSON // original record fields, stored verbatim

	SuggestedFundID     *uuid.UUID
	SuggestedCategoryID *uuid.UUID
	SuggestedDonorID    *uuid.UUID
	Confidence          float64

	DuplicateOfID *uuid.UUID // transaction this row duplicates
	Status        RowStatus  `gorm:"index"`
	CreatedAt     time.Time
}
