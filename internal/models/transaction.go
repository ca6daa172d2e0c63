package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SourceManual = "manual"
	SourceCSV    = "csv"
	SourceAPI    = "api"
)

const (
	PendingNone    = "none"
	PendingPending = "pending"
	PendingCleared = "cleared"
)

// Transaction is a committed ledger entry. Provenance fields (Source,
// CSVBatchID, ImportRowID) never change after creation; categorization and
// reconciliation fields may.
type Transaction struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChurchID    uuid.UUID `gorm:"index"`
	FundID      uuid.UUID `gorm:"index"`
	Date        time.Time `gorm:"index"`
	Description string
	Amount      float64 `gorm:"index"` // signed
	Type        string  // income | expense
	CategoryID  *uuid.UUID
	DonorID     *uuid.UUID

	Source      string     // manual | csv | api
	CSVBatchID  *uuid.UUID `gorm:"index"`
	ImportRowID *uuid.UUID

	Reconciled    bool   `gorm:"index"`
	PendingStatus string `gorm:"default:none"`
	CreatedAt     time.Time
}

// TransactionType derives income/expense from the signed amount.
func TransactionType(amount float64) string {
	if amount < 0 {
		return "expense"
	}
	return "income"
}
