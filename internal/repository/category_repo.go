package repository

import (
	"strings"

	"churchcoin-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) ByChurch(churchID uuid.UUID) ([]models.Category, error) {
	var cats []models.Category
	err := r.db.Where("church_id = ?", churchID).Find(&cats).Error
	return cats, err
}

// ActiveKeywords returns the church's enabled keyword rules.
func (r *CategoryRepository) ActiveKeywords(churchID uuid.UUID) ([]models.CategoryKeyword, error) {
	var kws []models.CategoryKeyword
	err := r.db.
		Where("church_id = ? AND active = ?", churchID, true).
		Find(&kws).Error
	return kws, err
}

// FeedbackForPattern returns human corrections recorded for a normalized
// description, newest first.
func (r *CategoryRepository) FeedbackForPattern(churchID uuid.UUID, pattern string) ([]models.AIFeedback, error) {
	var fb []models.AIFeedback
	err := r.db.
		Where("church_id = ?", churchID).
		Where("LOWER(description_pattern) = ?", strings.ToLower(pattern)).
		Order("created_at DESC").
		Find(&fb).Error
	return fb, err
}

func (r *CategoryRepository) RecordFeedback(fb *models.AIFeedback) error {
	return r.db.Create(fb).Error
}

type DonorRepository struct {
	db *gorm.DB
}

func NewDonorRepository(db *gorm.DB) *DonorRepository {
	return &DonorRepository{db: db}
}

func (r *DonorRepository) ByChurch(churchID uuid.UUID) ([]models.Donor, error) {
	var donors []models.Donor
	err := r.db.Where("church_id = ?", churchID).Find(&donors).Error
	return donors, err
}
