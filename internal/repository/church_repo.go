package repository

import (
	"churchcoin-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChurchRepository struct {
	db *gorm.DB
}

func NewChurchRepository(db *gorm.DB) *ChurchRepository {
	return &ChurchRepository{db: db}
}

func (r *ChurchRepository) GetByID(id uuid.UUID) (*models.Church, error) {
	var church models.Church
	if err := r.db.First(&church, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &church, nil
}
