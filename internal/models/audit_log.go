package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditLog records who did what to which entity. Payload is an opaque JSON
// blob stored and returned verbatim.
type AuditLog struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChurchID    uuid.UUID `gorm:"index"`
	Action      string
	EntityID    uuid.UUID `gorm:"index"`
	Payload     datatypes.JSON
	PerformedBy string
	CreatedAt   time.Time
}
