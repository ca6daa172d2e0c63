package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionOpen       SessionStatus = "open"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// ReconciliationSession is one month-end matching period. The variance is
// always bankBalance - (ledgerBalance + adjustments - pendingTotal).
type ReconciliationSession struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey"`
	ChurchID      uuid.UUID     `gorm:"index;uniqueIndex:idx_church_month"`
	Month         string        `gorm:"uniqueIndex:idx_church_month"` // "2006-01"
	Status        SessionStatus `gorm:"index"`
	BankBalance   float64
	LedgerBalance float64
	PendingTotal  float64
	Adjustments   float64
	Variance      float64
	Notes         string
	PreparedBy    string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// ReconciliationMatch pairs one bank statement row with one ledger
// transaction. Each side appears in at most one match per session.
type ReconciliationMatch struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID     uuid.UUID `gorm:"index;uniqueIndex:idx_session_row;uniqueIndex:idx_session_txn"`
	BankRowID     uuid.UUID `gorm:"uniqueIndex:idx_session_row"`
	TransactionID uuid.UUID `gorm:"uniqueIndex:idx_session_txn"`
	Confidence    float64
	CreatedAt     time.Time
}
