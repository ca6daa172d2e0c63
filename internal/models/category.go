package models

import (
	"time"

	"github.com/google/uuid"
)

type Category struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChurchID  uuid.UUID `gorm:"index"`
	Name      string
	Type      string // income | expense
	ParentID  *uuid.UUID
	CreatedAt time.Time
}

// CategoryKeyword maps statement text onto a category. The category's type is
// always reached through the category itself, never duplicated here.
type CategoryKeyword struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChurchID   uuid.UUID `gorm:"index"`
	CategoryID uuid.UUID `gorm:"index"`
	Keyword    string
	Active     bool `gorm:"default:true"`
	CreatedAt  time.Time
}

// AIFeedback records a human correction of a suggested category. Corrections
// outrank a fresh model call for the same description pattern.
type AIFeedback struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChurchID            uuid.UUID `gorm:"index"`
	DescriptionPattern  string    `gorm:"index"` // normalized description text
	Amount              float64
	SuggestedCategoryID *uuid.UUID
	CorrectedCategoryID uuid.UUID
	CreatedAt           time.Time
}
