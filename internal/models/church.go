package models

import (
	"time"

	"github.com/google/uuid"
)

// Church is the tenant. Every other row is scoped to one church.
type Church struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name                 string
	DefaultFundID        *uuid.UUID
	AutoApproveThreshold float64 `gorm:"default:0.95"`
	AIEnabled            bool
	AIAPIKey             string
	CreatedAt            time.Time
}

type Fund struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChurchID  uuid.UUID `gorm:"index"`
	Name      string
	Type      string  // general | restricted | designated
	Balance   float64 // running balance, updated with every ledger write
	CreatedAt time.Time
}

type Donor struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChurchID      uuid.UUID `gorm:"index"`
	Name          string
	BankReference string // text the donor's standing order carries, used for matching
	GiftAidSigned bool
	CreatedAt     time.Time
}
